package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"taskhive/internal/observability"
)

// statusRecorder captures the response status for metrics and tracing. SSE
// responses flush through it unchanged.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ObservabilityMiddleware instruments requests with tracing and metrics.
func ObservabilityMiddleware(obs *observability.Observability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if obs == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			if obs.Tracer != nil {
				spanCtx, span := obs.Tracer.StartSpan(ctx, "http.server.request",
					attribute.String("http.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				)
				ctx = spanCtx
				r = r.WithContext(ctx)
				defer func() {
					span.SetAttributes(attribute.Int("http.status_code", rec.status))
					if rec.status >= http.StatusInternalServerError {
						span.SetStatus(codes.Error, http.StatusText(rec.status))
					}
					span.End()
				}()
			}

			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			obs.Metrics.RecordHTTPRequest(ctx, r.Method, route, rec.status, time.Since(start))
		})
	}
}
