package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnknownExporter is returned for an unsupported exporter name
	ErrUnknownExporter = errors.New("unknown exporter")

	// ErrNilContext is returned when Init is called with a nil context
	ErrNilContext = errors.New("nil context")
)

// Exporter names
const (
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// TelemetryConfig controls tracer and meter setup.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter is "otlp", "stdout" or "none"
	TraceExporter string

	// MetricExporter is "prometheus", "stdout" or "none"
	MetricExporter string

	// OTLPEndpoint is the OTLP gRPC receiver, e.g. the Datadog Agent on localhost:4317
	OTLPEndpoint string
	OTLPInsecure bool
}

// Telemetry holds the providers built by Init. Nothing is installed
// globally except the tracer provider and propagator.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagator     propagation.TextMapPropagator

	metricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

// Init builds tracer and meter providers for cfg. The returned Telemetry
// must be shut down on exit.
func Init(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	t := &Telemetry{
		Propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	tp, err := initTracer(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	t.TracerProvider = tp
	t.shutdownFuncs = append(t.shutdownFuncs, tp.Shutdown)

	if cfg.MetricExporter == ExporterNone || cfg.MetricExporter == "" {
		t.MeterProvider = metricnoop.NewMeterProvider()
	} else {
		mp, handler, err := initMeter(ctx, cfg, res)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		t.MeterProvider = mp
		t.metricsHandler = handler
		t.shutdownFuncs = append(t.shutdownFuncs, mp.Shutdown)
	}

	otel.SetTracerProvider(t.TracerProvider)
	otel.SetTextMapPropagator(t.Propagator)

	return t, nil
}

// Tracer returns a named tracer
func (t *Telemetry) Tracer(name string) trace.Tracer {
	return t.TracerProvider.Tracer(name)
}

// Meter returns a named meter
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.MeterProvider.Meter(name)
}

// MetricsHandler returns the /metrics handler, or nil unless the
// prometheus exporter is in use.
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Shutdown flushes and stops every provider. It is safe to call twice.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	funcs := t.shutdownFuncs
	t.shutdownFuncs = nil

	var errs []error
	for _, fn := range funcs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
