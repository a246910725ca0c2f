package observability

import "context"

// Observability bundles the logger, metrics and tracer handed to subsystems.
type Observability struct {
	Logger  *Logger
	Metrics *MetricsCollector
	Tracer  *TracerProvider
}

// Config aggregates observability configuration.
type Config struct {
	Log     LogConfig
	Metrics MetricsConfig
	Tracing TracingConfig
}

// New builds the observability stack from config.
func New(config Config) (*Observability, error) {
	logger := NewLogger(config.Log)

	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		return nil, err
	}

	return &Observability{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	}, nil
}

// Shutdown flushes exporters. Safe on a nil receiver.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.Tracer == nil {
		return nil
	}
	return o.Tracer.Shutdown(ctx)
}
