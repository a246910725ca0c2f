package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the task backend
type MetricsCollector struct {
	meter metric.Meter

	// Session metrics
	sessionsActive   metric.Int64UpDownCounter
	sessionsCreated  metric.Int64Counter
	sessionTeardowns metric.Int64Counter
	staleReclaims    metric.Int64Counter

	// Queue metrics
	actionsEnqueued metric.Int64Counter
	queueWait       metric.Float64Histogram

	// SSE metrics
	sseConnections metric.Int64UpDownCounter
	framesDelivered metric.Int64Counter
	idleTimeouts    metric.Int64Counter

	// HTTP metrics
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewMetricsCollector creates a new metrics collector backed by the Prometheus exporter
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("taskhive")

	m := &MetricsCollector{meter: meter}

	if m.sessionsActive, err = meter.Int64UpDownCounter(
		"taskhive.sessions.active",
		metric.WithDescription("Number of live task sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions_active counter: %w", err)
	}

	if m.sessionsCreated, err = meter.Int64Counter(
		"taskhive.sessions.created.total",
		metric.WithDescription("Total task sessions created"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions_created counter: %w", err)
	}

	if m.sessionTeardowns, err = meter.Int64Counter(
		"taskhive.sessions.teardowns.total",
		metric.WithDescription("Total session teardowns by trigger"),
		metric.WithUnit("{teardown}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session_teardowns counter: %w", err)
	}

	if m.staleReclaims, err = meter.Int64Counter(
		"taskhive.sessions.stale_reclaims.total",
		metric.WithDescription("Sessions reclaimed by the staleness sweeper"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stale_reclaims counter: %w", err)
	}

	if m.actionsEnqueued, err = meter.Int64Counter(
		"taskhive.queue.actions.total",
		metric.WithDescription("Actions enqueued per kind"),
		metric.WithUnit("{action}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create actions_enqueued counter: %w", err)
	}

	if m.queueWait, err = meter.Float64Histogram(
		"taskhive.queue.wait.seconds",
		metric.WithDescription("Time the consumer waited for the next action"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create queue_wait histogram: %w", err)
	}

	if m.sseConnections, err = meter.Int64UpDownCounter(
		"taskhive.sse.connections.active",
		metric.WithDescription("Open SSE streams"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sse_connections counter: %w", err)
	}

	if m.framesDelivered, err = meter.Int64Counter(
		"taskhive.sse.frames.total",
		metric.WithDescription("SSE frames delivered to clients"),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create frames_delivered counter: %w", err)
	}

	if m.idleTimeouts, err = meter.Int64Counter(
		"taskhive.sse.idle_timeouts.total",
		metric.WithDescription("SSE streams ended by the idle timeout"),
		metric.WithUnit("{timeout}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create idle_timeouts counter: %w", err)
	}

	if m.httpRequests, err = meter.Int64Counter(
		"taskhive.http.requests.total",
		metric.WithDescription("HTTP requests by route, method and status"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}

	if m.httpLatency, err = meter.Float64Histogram(
		"taskhive.http.latency.seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	return m, nil
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// RecordSessionCreated records a new session.
func (m *MetricsCollector) RecordSessionCreated(ctx context.Context) {
	if m == nil || m.sessionsCreated == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
	m.sessionsActive.Add(ctx, 1)
}

// RecordSessionDeleted records a session teardown with its trigger (stop, timeout, stale, cancel).
func (m *MetricsCollector) RecordSessionDeleted(ctx context.Context, trigger string) {
	if m == nil || m.sessionTeardowns == nil {
		return
	}
	m.sessionTeardowns.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	m.sessionsActive.Add(ctx, -1)
	if trigger == "stale" {
		m.staleReclaims.Add(ctx, 1)
	}
}

// RecordActionEnqueued records an action put on a session queue.
func (m *MetricsCollector) RecordActionEnqueued(ctx context.Context, kind string) {
	if m == nil || m.actionsEnqueued == nil {
		return
	}
	m.actionsEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordQueueWait records how long the consumer blocked for the next action.
func (m *MetricsCollector) RecordQueueWait(ctx context.Context, wait time.Duration) {
	if m == nil || m.queueWait == nil {
		return
	}
	m.queueWait.Record(ctx, wait.Seconds())
}

// RecordSSEConnect records an SSE stream opening.
func (m *MetricsCollector) RecordSSEConnect(ctx context.Context) {
	if m == nil || m.sseConnections == nil {
		return
	}
	m.sseConnections.Add(ctx, 1)
}

// RecordSSEDisconnect records an SSE stream closing.
func (m *MetricsCollector) RecordSSEDisconnect(ctx context.Context) {
	if m == nil || m.sseConnections == nil {
		return
	}
	m.sseConnections.Add(ctx, -1)
}

// RecordFrameDelivered records one SSE frame written to a client.
func (m *MetricsCollector) RecordFrameDelivered(ctx context.Context, kind string) {
	if m == nil || m.framesDelivered == nil {
		return
	}
	m.framesDelivered.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordIdleTimeout records an SSE stream closed by the idle timeout.
func (m *MetricsCollector) RecordIdleTimeout(ctx context.Context) {
	if m == nil || m.idleTimeouts == nil {
		return
	}
	m.idleTimeouts.Add(ctx, 1)
}

// RecordHTTPRequest records a completed HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, status int, latency time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, latency.Seconds(), attrs)
}
