package web

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// unitOffer handles GET /api/units/{id}/offer.
func (h *Handler) unitOffer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid unit id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	offer, err := h.svc.UnitOffer(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, offer)
}

type budgetSearchBody struct {
	Budget        decimal.Decimal `json:"budget"`
	Currency      string          `json:"currency"`
	PropertyType  string          `json:"property_type"`
	Floor         *int            `json:"floor"`
	Rooms         *int            `json:"rooms"`
	PaymentMethod string          `json:"payment_method"`
}

// searchByBudget handles POST /api/selection/budget.
func (h *Handler) searchByBudget(w http.ResponseWriter, r *http.Request) {
	var body budgetSearchBody
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.SearchByBudget(r.Context(), core.BudgetSearchRequest{
		Budget:        body.Budget,
		Currency:      body.Currency,
		PropertyType:  body.PropertyType,
		Floor:         body.Floor,
		Rooms:         body.Rooms,
		PaymentMethod: body.PaymentMethod,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type installmentBody struct {
	UnitID              int64                      `json:"unit_id"`
	TermMonths          int                        `json:"term_months"`
	DPAmount            decimal.Decimal            `json:"dp_amount"`
	DPKind              string                     `json:"dp_kind"`
	AdditionalDiscounts map[string]decimal.Decimal `json:"additional_discounts"`
	StartDate           *string                    `json:"start_date"`
	Variant             string                     `json:"mortgage_variant"`
	DPPercent           int                        `json:"dp_percent"`
}

func (b *installmentBody) startDate(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	if b.StartDate == nil || *b.StartDate == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", *b.StartDate)
	if err != nil {
		writeError(w, r, "invalid start_date, expected YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
		return nil, false
	}
	return &t, true
}

// standardInstallment handles POST /api/calculators/installment.
func (h *Handler) standardInstallment(w http.ResponseWriter, r *http.Request) {
	var body installmentBody
	if !decodeJSON(w, r, &body) {
		return
	}
	start, ok := body.startDate(w, r)
	if !ok {
		return
	}
	plan, err := h.svc.StandardInstallment(r.Context(), core.StandardInstallmentRequest{
		UnitID:              body.UnitID,
		TermMonths:          body.TermMonths,
		DPAmount:            body.DPAmount,
		DPKind:              core.DPKind(body.DPKind),
		AdditionalDiscounts: body.AdditionalDiscounts,
		StartDate:           start,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plan)
}

// dpInstallment handles POST /api/calculators/dp-installment.
func (h *Handler) dpInstallment(w http.ResponseWriter, r *http.Request) {
	var body installmentBody
	if !decodeJSON(w, r, &body) {
		return
	}
	start, ok := body.startDate(w, r)
	if !ok {
		return
	}
	variant, err := core.ParseMortgageVariant(body.Variant)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	plan, err := h.svc.DPInstallment(r.Context(), core.DPInstallmentRequest{
		UnitID:              body.UnitID,
		TermMonths:          body.TermMonths,
		DPAmount:            body.DPAmount,
		DPKind:              core.DPKind(body.DPKind),
		AdditionalDiscounts: body.AdditionalDiscounts,
		StartDate:           start,
		Variant:             variant,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plan)
}

// zeroMortgage handles POST /api/calculators/zero-mortgage.
func (h *Handler) zeroMortgage(w http.ResponseWriter, r *http.Request) {
	var body installmentBody
	if !decodeJSON(w, r, &body) {
		return
	}
	variant, err := core.ParseMortgageVariant(body.Variant)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	plan, err := h.svc.ZeroMortgage(r.Context(), core.ZeroMortgageRequest{
		UnitID:              body.UnitID,
		TermMonths:          body.TermMonths,
		DPPercent:           body.DPPercent,
		AdditionalDiscounts: body.AdditionalDiscounts,
		Variant:             variant,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plan)
}
