package telemetry

import (
	"context"

	"github.com/upb/llm-blackbox/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceSink annotates the span active on the context.
type TraceSink struct{}

// NewTraceSink creates a new TraceSink
func NewTraceSink() *TraceSink {
	return &TraceSink{}
}

// Name implements Sink
func (s *TraceSink) Name() string {
	return "trace"
}

// Emit implements Sink. Only the sanitized error message reaches the span.
func (s *TraceSink) Emit(ctx context.Context, sig Signals) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	span.SetAttributes(SpanAttributes(sig)...)

	if sig.ErrorFlag == 1 {
		observability.SetSpanError(span, sig.ErrorMessage)
		return nil
	}
	observability.SetSpanOK(span)
	return nil
}

// SpanAttributes returns the span tags for one call.
func SpanAttributes(sig Signals) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("request_id", sig.RequestID),
		attribute.String(TagModelName, sig.ModelName),
		attribute.String(TagFinishReason, string(sig.FinishReason)),
		attribute.Float64(MetricLatencyMs, sig.LatencyMs),
		attribute.Int(MetricPromptLength, sig.PromptLength),
		attribute.Int(MetricResponseLength, sig.ResponseLength),
		attribute.Int(MetricPromptTokens, sig.PromptTokens),
		attribute.Int(MetricResponseTokens, sig.ResponseTokens),
		attribute.Int(MetricTotalTokens, sig.TotalTokens),
		attribute.String("llm.token_source", string(sig.TokenSource)),
		attribute.Float64(MetricCostEstimated, sig.CostEstimated),
		attribute.Int(MetricSafetyFlag, sig.SafetyFlag),
		attribute.Int(MetricError, sig.ErrorFlag),
	}
	if sig.ErrorFlag == 1 {
		attrs = append(attrs,
			attribute.String("error.category", string(sig.ErrorCategory)),
			attribute.String("error.message", sig.ErrorMessage),
		)
	}
	return attrs
}
