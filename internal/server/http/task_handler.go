package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskhive/internal/protocol"
)

// handleStart confirms the decomposed plan and begins execution.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Start(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleUpdateTasks replaces the pending plan before execution starts.
func (h *Handler) handleUpdateTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p protocol.UpdateTaskPayload
	if err := decodeBody(r, &p); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.UpdateTasks(r.Context(), id, p); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type takeControlRequest struct {
	Action string `json:"action"`
}

// handleTakeControl pauses or resumes execution.
func (h *Handler) handleTakeControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req takeControlRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	switch req.Action {
	case "pause", "resume":
	default:
		h.writeJSONError(w, http.StatusBadRequest, "action must be pause or resume", nil)
		return
	}
	if err := h.service.TakeControl(r.Context(), id, req.Action == "pause"); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": req.Action + "d"})
}

// handleAddAgent registers an extra agent definition on the session.
func (h *Handler) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p protocol.NewAgentPayload
	if err := decodeBody(r, &p); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.AddAgent(r.Context(), id, p); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// handleStopAll tears down every live session.
func (h *Handler) handleStopAll(w http.ResponseWriter, r *http.Request) {
	stopped := h.service.StopAll(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]int{"stopped": stopped})
}

type beginOAuthRequest struct {
	AuthURL string `json:"auth_url"`
}

// handleBeginOAuth starts an authorization flow for a session and provider.
func (h *Handler) handleBeginOAuth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	provider := chi.URLParam(r, "provider")
	var req beginOAuthRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	flow, err := h.service.BeginOAuth(id, provider, req.AuthURL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, flow)
}

// handleOAuthStatus reports the current flow for a session and provider.
func (h *Handler) handleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	flow, err := h.service.OAuthStatus(chi.URLParam(r, "id"), chi.URLParam(r, "provider"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, flow)
}

// handleHealth reports liveness and the number of active sessions.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.service.SessionCount(),
	})
}
