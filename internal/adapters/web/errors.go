package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps core sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with the message suppressed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, r, err.Error(), "INVALID_INPUT", http.StatusBadRequest)
	case errors.Is(err, core.ErrPolicyViolation):
		writeError(w, r, err.Error(), "POLICY_VIOLATION", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrWhitelistReject):
		writeError(w, r, err.Error(), "WHITELIST_REJECT", http.StatusForbidden)
	case errors.Is(err, core.ErrMissingReference):
		writeError(w, r, err.Error(), "MISSING_REFERENCE", http.StatusConflict)
	case errors.Is(err, core.ErrInvalidState):
		writeError(w, r, err.Error(), "INVALID_STATE", http.StatusConflict)
	case errors.Is(err, core.ErrExternalFailure):
		writeError(w, r, err.Error(), "EXTERNAL_FAILURE", http.StatusBadGateway)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
