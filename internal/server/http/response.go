// Package http exposes the session API over chi: the chat surface streaming
// engine events as SSE and the task surface controlling running sessions.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"taskhive/internal/server/app"
)

type apiErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode JSON response: %v", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.logger.Error("HTTP %d - %s: %v", status, message, err)
	} else {
		h.logger.Warn("HTTP %d - %s", status, message)
	}

	resp := apiErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		h.logger.Error("Failed to encode error response: %v", encodeErr)
	}
}

// writeServiceError maps application sentinels to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		h.writeJSONError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, app.ErrValidation):
		h.writeJSONError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, app.ErrConflict):
		h.writeJSONError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, app.ErrUnavailable):
		h.writeJSONError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		h.writeJSONError(w, http.StatusInternalServerError, "internal error", err)
	}
}
