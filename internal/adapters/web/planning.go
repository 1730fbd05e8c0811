package web

import (
	"net/http"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// salesPlans handles GET /api/plans/sales?year=&month=.
func (h *Handler) salesPlans(w http.ResponseWriter, r *http.Request) {
	year, month, err := periodParams(r)
	if err != nil {
		writeError(w, r, "year and month query params are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	plans, err := h.svc.SalesPlans(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plans)
}

// saveSalesPlan handles POST /api/plans/sales.
func (h *Handler) saveSalesPlan(w http.ResponseWriter, r *http.Request) {
	var body core.SalesPlan
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.SaveSalesPlan(r.Context(), body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "saved"})
}

// managerPlans handles GET /api/plans/managers?year=&month=.
func (h *Handler) managerPlans(w http.ResponseWriter, r *http.Request) {
	year, month, err := periodParams(r)
	if err != nil {
		writeError(w, r, "year and month query params are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	plans, err := h.svc.ManagerPlans(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plans)
}

// saveManagerPlan handles POST /api/plans/managers.
func (h *Handler) saveManagerPlan(w http.ResponseWriter, r *http.Request) {
	var body core.ManagerPlan
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.SaveManagerPlan(r.Context(), body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "saved"})
}

// cashbackMatrix handles GET /api/cashback.
func (h *Handler) cashbackMatrix(w http.ResponseWriter, r *http.Request) {
	cells, err := h.svc.CashbackMatrix(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, cells)
}

type cashbackBody struct {
	Cells []core.CashbackCell `json:"cells"`
}

// replaceCashbackMatrix handles PUT /api/cashback.
func (h *Handler) replaceCashbackMatrix(w http.ResponseWriter, r *http.Request) {
	var body cashbackBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.ReplaceCashbackMatrix(r.Context(), body.Cells); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"cells": len(body.Cells)})
}

// cashbackTemplate handles GET /api/cashback/template.
func (h *Handler) cashbackTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.CashbackTemplate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="cashback_matrix.xlsx"`)
	_, _ = w.Write(data)
}

// planFact handles GET /api/reports/plan-fact?year=&month=.
func (h *Handler) planFact(w http.ResponseWriter, r *http.Request) {
	year, month, err := periodParams(r)
	if err != nil {
		writeError(w, r, "year and month query params are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	rows, err := h.svc.PlanFactReport(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

// remainderSummary handles GET /api/reports/remainders.
func (h *Handler) remainderSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.RemainderSummary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rows)
}
