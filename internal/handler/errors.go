package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pkordes/placetrail/internal/domain"
)

// errorDetail is the machine-readable body of every error response.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorResponse wraps errorDetail so the body shape is {"error": {...}}.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps service-layer errors onto HTTP responses:
// validation → 422, not found → 404, storage → 503 (the store could not
// commit, not a client fault), sync unavailable → 503, anything else → 500.
// notFoundMsg supplies the human-readable 404 text because the handler is
// the layer that knows what was being looked up.
func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", unwrapMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", notFoundMsg)
	case errors.Is(err, domain.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage_error", "could not persist changes")
	case errors.Is(err, domain.ErrSyncUnavailable):
		writeError(w, http.StatusServiceUnavailable, "sync_unavailable", "synchronization service unreachable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// requestError writes a 422 for a request rejected before reaching the
// service layer (missing or malformed body, bad UUID, ...).
func requestError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, "validation_error", message)
}

// unwrapMessage extracts the human-readable part from a wrapped validation
// error, e.g. "service.PlaceService.Create: validation error: name: is
// required" → "name: is required".
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Field + ": " + verr.Reason
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, "validation error: "); i >= 0 {
		return msg[i+len("validation error: "):]
	}
	return msg
}
