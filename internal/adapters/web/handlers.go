package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DieForGlory/portal-analytics-sub000/internal/app"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	// Spreadsheet uploads are multipart; the limit is handled per-handler.
	r.Post("/api/discounts/versions/{id}/import", h.importDiscountWorkbook)
	r.Post("/api/cashback/import", h.importCashbackWorkbook)

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// Offers and selection
		r.Get("/api/units/{id}/offer", h.unitOffer)
		r.Post("/api/selection/budget", h.searchByBudget)

		// Calculators
		r.Post("/api/calculators/installment", h.standardInstallment)
		r.Post("/api/calculators/dp-installment", h.dpInstallment)
		r.Post("/api/calculators/zero-mortgage", h.zeroMortgage)

		// Discount versions
		r.Get("/api/discounts/summary", h.discountSummary)
		r.Get("/api/discounts/template", h.discountTemplate)
		r.Get("/api/discounts/versions", h.listDiscountVersions)
		r.Post("/api/discounts/versions", h.createDiscountDraft)
		r.Post("/api/discounts/versions/clone", h.cloneActiveDiscounts)
		r.Get("/api/discounts/versions/{id}", h.discountVersion)
		r.Patch("/api/discounts/versions/{id}", h.updateDiscountDraft)
		r.Delete("/api/discounts/versions/{id}", h.deleteDiscountDraft)
		r.Post("/api/discounts/versions/{id}/activate", h.activateDiscountVersion)
		r.Post("/api/discounts/versions/{id}/notes", h.setProjectNote)

		// Currency oracle
		r.Get("/api/currency", h.currencySettings)
		r.Post("/api/currency/source", h.setRateSource)
		r.Post("/api/currency/manual", h.setManualRate)
		r.Post("/api/currency/refresh", h.refreshCBURate)
		r.Get("/api/currency/rate", h.rateOn)

		// Calculator settings
		r.Get("/api/settings/calculators", h.calculatorSettings)
		r.Put("/api/settings/calculators", h.updateCalculatorSettings)

		// Exclusions
		r.Get("/api/exclusions/units", h.listExcludedUnits)
		r.Post("/api/exclusions/units", h.excludeUnit)
		r.Delete("/api/exclusions/units/{id}", h.includeUnit)
		r.Get("/api/exclusions/projects", h.listExcludedProjects)
		r.Post("/api/exclusions/projects/toggle", h.toggleProjectExclusion)

		// Replication
		r.Post("/api/sync", h.runSync)
		r.Get("/api/sync/history", h.syncHistory)

		// Funnel
		r.Get("/api/funnel/metrics", h.funnelMetrics)
		r.Get("/api/funnel/flow", h.funnelFlowTree)
		r.Get("/api/funnel/dead-ends", h.funnelDeadEnds)
		r.Post("/api/funnel/leads", h.leadsDetails)

		// Planning
		r.Get("/api/plans/sales", h.salesPlans)
		r.Post("/api/plans/sales", h.saveSalesPlan)
		r.Get("/api/plans/managers", h.managerPlans)
		r.Post("/api/plans/managers", h.saveManagerPlan)
		r.Get("/api/cashback", h.cashbackMatrix)
		r.Put("/api/cashback", h.replaceCashbackMatrix)
		r.Get("/api/cashback/template", h.cashbackTemplate)

		// Reports
		r.Get("/api/reports/plan-fact", h.planFact)
		r.Get("/api/reports/remainders", h.remainderSummary)

		// Subscribers
		r.Get("/api/subscribers", h.listSubscribers)
		r.Post("/api/subscribers", h.subscribe)
		r.Delete("/api/subscribers/{email}", h.unsubscribe)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// idParam extracts the {id} URL parameter as int64.
func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// decodeJSON decodes the request body into v; on failure it writes the error
// response and returns false. Oversized bodies caught by RequestBodyLimit
// come back as HTTP 413.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// dateRange reads optional from/to query params in YYYY-MM-DD form.
func dateRange(r *http.Request) (fromPtr, toPtr *time.Time, err error) {
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, perr := time.Parse("2006-01-02", raw)
		if perr != nil {
			return nil, nil, perr
		}
		fromPtr = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, perr := time.Parse("2006-01-02", raw)
		if perr != nil {
			return nil, nil, perr
		}
		toPtr = &t
	}
	return fromPtr, toPtr, nil
}

// periodParams reads the year and month query params.
func periodParams(r *http.Request) (year, month int, err error) {
	year, err = strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		return 0, 0, err
	}
	month, err = strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		return 0, 0, err
	}
	return year, month, nil
}
