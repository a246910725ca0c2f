package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskhive/internal/logging"
	"taskhive/internal/observability"
	"taskhive/internal/protocol"
	"taskhive/internal/server/app"
)

// Handler serves the chat and task surfaces.
type Handler struct {
	service     *app.ChatService
	idleTimeout time.Duration
	metrics     *observability.MetricsCollector
	logger      logging.Logger
}

// NewHandler creates the API handler. idleTimeout bounds the lifetime of one
// chat stream.
func NewHandler(service *app.ChatService, idleTimeout time.Duration, metrics *observability.MetricsCollector, logger logging.Logger) *Handler {
	return &Handler{
		service:     service,
		idleTimeout: idleTimeout,
		metrics:     metrics,
		logger:      logging.OrNop(logger),
	}
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(into)
}

// handleChat opens a session and streams its events until the engine
// finishes, the stream deadline passes, or the client goes away.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req app.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	sess, runner, err := h.service.StartChat(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.logger.Info("chat stream opened: session=%s project=%s", sess.ID, req.ProjectID)
	h.streamSession(w, r, sess, runner)
}

// handleImprove feeds a refined prompt into an existing session.
func (h *Handler) handleImprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p protocol.ImprovePayload
	if err := decodeBody(r, &p); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.Improve(r.Context(), id, p); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"task_id": id})
}

// handleSupplement adds information to a finished run.
func (h *Handler) handleSupplement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p protocol.SupplementPayload
	if err := decodeBody(r, &p); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.Supplement(r.Context(), id, p); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

// handleStop tears a session down. Idempotent: stopping a session that is
// already gone still answers 204.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.service.Stop(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type humanReplyRequest struct {
	Agent string `json:"agent"`
	Reply string `json:"data"`
}

// handleHumanReply answers a pending agent question.
func (h *Handler) handleHumanReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req humanReplyRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.HumanReply(r.Context(), id, req.Agent, req.Reply); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

// handleInstallMCP attaches MCP servers to a live session.
func (h *Handler) handleInstallMCP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var servers protocol.McpServers
	if err := decodeBody(r, &servers); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.InstallMCP(r.Context(), id, servers); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "installed"})
}

// handleAddTask appends a task to the running plan.
func (h *Handler) handleAddTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p protocol.AddTaskPayload
	if err := decodeBody(r, &p); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.service.AddTask(r.Context(), id, p); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleRemoveTask removes a pending task from the plan.
func (h *Handler) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	taskID := chi.URLParam(r, "taskID")
	if err := h.service.RemoveTask(r.Context(), projectID, taskID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// handleSkipTask abandons the in-flight task, keeping the session alive.
func (h *Handler) handleSkipTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SkipTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}
