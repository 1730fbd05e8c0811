package web

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// ── Currency oracle ───────────────────────────────────────────────────────────

// currencySettings handles GET /api/currency.
func (h *Handler) currencySettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.CurrencySettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, settings)
}

type rateSourceBody struct {
	Source string `json:"source"`
}

// setRateSource handles POST /api/currency/source.
func (h *Handler) setRateSource(w http.ResponseWriter, r *http.Request) {
	var body rateSourceBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.SetRateSource(r.Context(), core.RateSource(body.Source)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

type manualRateBody struct {
	Rate decimal.Decimal `json:"rate"`
}

// setManualRate handles POST /api/currency/manual.
func (h *Handler) setManualRate(w http.ResponseWriter, r *http.Request) {
	var body manualRateBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.SetManualRate(r.Context(), body.Rate); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// refreshCBURate handles POST /api/currency/refresh.
func (h *Handler) refreshCBURate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.svc.RefreshCBURate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]decimal.Decimal{"cbu_rate": rate})
}

// rateOn handles GET /api/currency/rate?date=YYYY-MM-DD.
func (h *Handler) rateOn(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, "invalid date, expected YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	rate, err := h.svc.RateOn(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]decimal.Decimal{"rate": rate})
}

// ── Calculator settings ───────────────────────────────────────────────────────

// calculatorSettings handles GET /api/settings/calculators.
func (h *Handler) calculatorSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.CalculatorSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, settings)
}

// updateCalculatorSettings handles PUT /api/settings/calculators.
func (h *Handler) updateCalculatorSettings(w http.ResponseWriter, r *http.Request) {
	var body core.CalculatorSettings
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.UpdateCalculatorSettings(r.Context(), body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// ── Exclusions ────────────────────────────────────────────────────────────────

// listExcludedUnits handles GET /api/exclusions/units.
func (h *Handler) listExcludedUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.svc.ListExcludedUnits(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, units)
}

type excludeUnitBody struct {
	UnitID  int64  `json:"unit_id"`
	Comment string `json:"comment"`
}

// excludeUnit handles POST /api/exclusions/units.
func (h *Handler) excludeUnit(w http.ResponseWriter, r *http.Request) {
	var body excludeUnitBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.ExcludeUnit(r.Context(), body.UnitID, body.Comment); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "excluded"})
}

// includeUnit handles DELETE /api/exclusions/units/{id}.
func (h *Handler) includeUnit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid unit id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.IncludeUnit(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listExcludedProjects handles GET /api/exclusions/projects.
func (h *Handler) listExcludedProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListExcludedProjects(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, projects)
}

type toggleProjectBody struct {
	Project string `json:"complex_name"`
}

// toggleProjectExclusion handles POST /api/exclusions/projects/toggle.
func (h *Handler) toggleProjectExclusion(w http.ResponseWriter, r *http.Request) {
	var body toggleProjectBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Project == "" {
		writeError(w, r, "complex_name is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	excluded, err := h.svc.ToggleProjectExclusion(r.Context(), body.Project)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"excluded": excluded})
}

// ── Replication ───────────────────────────────────────────────────────────────

type syncBody struct {
	Full bool `json:"full"`
}

// runSync handles POST /api/sync.
func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	var body syncBody
	if !decodeJSON(w, r, &body) {
		return
	}
	outcomes, err := h.svc.RunSync(r.Context(), body.Full)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, outcomes)
}

// syncHistory handles GET /api/sync/history.
func (h *Handler) syncHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, "invalid limit", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.svc.SyncHistory(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, runs)
}

// ── Subscribers ───────────────────────────────────────────────────────────────

// listSubscribers handles GET /api/subscribers.
func (h *Handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	emails, err := h.svc.Subscribers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, emails)
}

type subscribeBody struct {
	Email string `json:"email"`
}

// subscribe handles POST /api/subscribers.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var body subscribeBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.Subscribe(r.Context(), body.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "subscribed"})
}

// unsubscribe handles DELETE /api/subscribers/{email}.
func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		writeError(w, r, "invalid email", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
