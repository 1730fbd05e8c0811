package web

import (
	"mime/multipart"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// discountSummary handles GET /api/discounts/summary.
func (h *Handler) discountSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.DiscountSummary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// listDiscountVersions handles GET /api/discounts/versions.
func (h *Handler) listDiscountVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ListDiscountVersions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, versions)
}

// discountVersion handles GET /api/discounts/versions/{id}.
func (h *Handler) discountVersion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid version id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	detail, err := h.svc.DiscountVersion(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, detail)
}

type createDraftBody struct {
	Comment string `json:"comment"`
}

// createDiscountDraft handles POST /api/discounts/versions.
func (h *Handler) createDiscountDraft(w http.ResponseWriter, r *http.Request) {
	var body createDraftBody
	if !decodeJSON(w, r, &body) {
		return
	}
	version, err := h.svc.CreateDiscountDraft(r.Context(), body.Comment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, version)
}

// cloneActiveDiscounts handles POST /api/discounts/versions/clone.
func (h *Handler) cloneActiveDiscounts(w http.ResponseWriter, r *http.Request) {
	version, err := h.svc.CloneActiveDiscounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, version)
}

type discountEditBody struct {
	Project       string          `json:"complex_name"`
	PropertyType  string          `json:"property_type"`
	PaymentMethod string          `json:"payment_method"`
	Field         string          `json:"field"`
	ValuePct      decimal.Decimal `json:"value_pct"`
}

type updateDraftBody struct {
	Edits       []discountEditBody `json:"edits"`
	ChangesJSON string             `json:"changes_summary"`
}

// updateDiscountDraft handles PATCH /api/discounts/versions/{id}.
func (h *Handler) updateDiscountDraft(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid version id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body updateDraftBody
	if !decodeJSON(w, r, &body) {
		return
	}

	edits := make([]core.DiscountEdit, 0, len(body.Edits))
	for _, e := range body.Edits {
		pt, err := core.ParsePropertyType(e.PropertyType)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		pm, err := core.ParsePaymentMethod(e.PaymentMethod)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		edits = append(edits, core.DiscountEdit{
			Project:       e.Project,
			PropertyType:  pt,
			PaymentMethod: pm,
			Field:         e.Field,
			ValuePct:      e.ValuePct,
		})
	}

	changed, err := h.svc.UpdateDiscountDraft(r.Context(), id, edits, body.ChangesJSON)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"changed": changed})
}

type activateBody struct {
	Comment string `json:"comment"`
}

// activateDiscountVersion handles POST /api/discounts/versions/{id}/activate.
func (h *Handler) activateDiscountVersion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid version id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body activateBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.ActivateDiscountVersion(r.Context(), id, body.Comment); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "activated"})
}

// deleteDiscountDraft handles DELETE /api/discounts/versions/{id}.
func (h *Handler) deleteDiscountDraft(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid version id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteDiscountDraft(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type projectNoteBody struct {
	Project string `json:"complex_name"`
	Note    string `json:"note"`
}

// setProjectNote handles POST /api/discounts/versions/{id}/notes.
func (h *Handler) setProjectNote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid version id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body projectNoteBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Project == "" {
		writeError(w, r, "complex_name is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.SetProjectNote(r.Context(), id, body.Project, body.Note); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "saved"})
}

// discountTemplate handles GET /api/discounts/template.
func (h *Handler) discountTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.DiscountTemplate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="discount_template.xlsx"`)
	_, _ = w.Write(data)
}

// importDiscountWorkbook handles POST /api/discounts/versions/{id}/import.
// The workbook arrives as a multipart upload under the "file" field.
func (h *Handler) importDiscountWorkbook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid version id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	file, ok := h.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	outcome, err := h.svc.ImportDiscountWorkbook(r.Context(), id, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, outcome)
}

// importCashbackWorkbook handles POST /api/cashback/import.
func (h *Handler) importCashbackWorkbook(w http.ResponseWriter, r *http.Request) {
	file, ok := h.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	count, err := h.svc.ImportCashbackWorkbook(r.Context(), file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"cells": count})
}

const maxUploadBytes = 10 << 20 // 10 MB

// uploadedFile extracts the "file" part of a multipart upload; on failure it
// writes the error response and returns ok = false.
func (h *Handler) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, "invalid multipart upload: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return nil, false
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, `missing "file" form field`, "BAD_REQUEST", http.StatusBadRequest)
		return nil, false
	}
	return f, true
}
