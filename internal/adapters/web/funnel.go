package web

import (
	"net/http"
)

// funnelMetrics handles GET /api/funnel/metrics?from=&to=.
func (h *Handler) funnelMetrics(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, "invalid date, expected YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	metrics, err := h.svc.FunnelMetrics(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, metrics)
}

// funnelFlowTree handles GET /api/funnel/flow?from=&to=.
func (h *Handler) funnelFlowTree(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, "invalid date, expected YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	tree, err := h.svc.FunnelFlowTree(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, tree)
}

// funnelDeadEnds handles GET /api/funnel/dead-ends?from=&to=.
func (h *Handler) funnelDeadEnds(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, "invalid date, expected YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	summary, err := h.svc.FunnelDeadEnds(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

type leadsBody struct {
	IDs []int64 `json:"ids"`
}

// leadsDetails handles POST /api/funnel/leads.
func (h *Handler) leadsDetails(w http.ResponseWriter, r *http.Request) {
	var body leadsBody
	if !decodeJSON(w, r, &body) {
		return
	}
	details, err := h.svc.LeadsDetails(r.Context(), body.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, details)
}
