package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"taskhive/internal/logging"
	"taskhive/internal/observability"
)

// RouterConfig carries the transport-level knobs.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter assembles the API surface.
func NewRouter(h *Handler, obs *observability.Observability, logger logging.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(ObservabilityMiddleware(obs))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(LoggingMiddleware(logger))

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", h.handleChat)
		r.Post("/{id}", h.handleImprove)
		r.Put("/{id}", h.handleSupplement)
		r.Delete("/{id}", h.handleStop)
		r.Post("/{id}/human-reply", h.handleHumanReply)
		r.Post("/{id}/install-mcp", h.handleInstallMCP)
		r.Post("/{id}/add-task", h.handleAddTask)
		r.Delete("/{id}/remove-task/{taskID}", h.handleRemoveTask)
		r.Post("/{id}/skip-task", h.handleSkipTask)
	})

	r.Route("/task", func(r chi.Router) {
		r.Delete("/stop-all", h.handleStopAll)
		r.Post("/{id}/start", h.handleStart)
		r.Put("/{id}", h.handleUpdateTasks)
		r.Put("/{id}/take-control", h.handleTakeControl)
		r.Post("/{id}/add-agent", h.handleAddAgent)
		r.Post("/{id}/oauth/{provider}", h.handleBeginOAuth)
		r.Get("/{id}/oauth/{provider}", h.handleOAuthStatus)
	})

	r.Get("/health", h.handleHealth)
	if obs != nil && obs.Metrics != nil {
		if mh := obs.Metrics.Handler(); mh != nil {
			r.Handle("/metrics", mh)
		}
	}

	return r
}
