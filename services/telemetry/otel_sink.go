package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterSink records signals on OpenTelemetry instruments. The meter's
// exporter decides where they go (prometheus, stdout, nowhere).
type MeterSink struct {
	gauges   map[string]metric.Float64Gauge
	counters map[string]metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewMeterSink creates one instrument per metric in MetricDefs.
func NewMeterSink(meter metric.Meter) (*MeterSink, error) {
	s := &MeterSink{
		gauges:   make(map[string]metric.Float64Gauge),
		counters: make(map[string]metric.Int64Counter),
	}

	for _, def := range MetricDefs {
		switch def.Kind {
		case KindGauge:
			g, err := meter.Float64Gauge(def.Name,
				metric.WithUnit(def.Unit),
				metric.WithDescription(def.Description))
			if err != nil {
				return nil, fmt.Errorf("create gauge %s: %w", def.Name, err)
			}
			s.gauges[def.Name] = g
		case KindCount:
			c, err := meter.Int64Counter(def.Name,
				metric.WithUnit(def.Unit),
				metric.WithDescription(def.Description))
			if err != nil {
				return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
			}
			s.counters[def.Name] = c
		}
	}

	h, err := meter.Float64Histogram(MetricLatencyDistribution,
		metric.WithUnit("ms"),
		metric.WithDescription("Model call latency distribution"))
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", MetricLatencyDistribution, err)
	}
	s.latency = h

	return s, nil
}

// Name implements Sink
func (s *MeterSink) Name() string {
	return "otel"
}

// Emit implements Sink
func (s *MeterSink) Emit(ctx context.Context, sig Signals) error {
	attrs := metric.WithAttributes(
		attribute.String(TagModelName, sig.ModelName),
		attribute.String(TagFinishReason, string(sig.FinishReason)),
	)

	for _, m := range sig.Metrics() {
		switch m.Kind {
		case KindGauge:
			s.gauges[m.Name].Record(ctx, m.Value, attrs)
		case KindCount:
			s.counters[m.Name].Add(ctx, int64(m.Value), attrs)
		}
	}
	s.latency.Record(ctx, sig.LatencyMs, attrs)

	return nil
}
