package telemetry

import (
	"context"
	"fmt"

	"github.com/upb/llm-blackbox/internal/observability"
	"github.com/upb/llm-blackbox/services"
	"github.com/upb/llm-blackbox/services/llm"
	"go.uber.org/zap"
)

// Sink receives the signals of every call.
type Sink interface {
	Name() string
	Emit(ctx context.Context, s Signals) error
}

// Recorder normalizes outcomes and fans them out to sinks. A failing or
// panicking sink is logged and skipped; Record itself never fails.
type Recorder struct {
	sinks      []Sink
	pricePer1K float64
	logger     *zap.Logger
}

// NewRecorder creates a new Recorder
func NewRecorder(pricePer1K float64, logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sinks:      sinks,
		pricePer1K: pricePer1K,
		logger:     logger,
	}
}

// Sinks returns the configured sink names
func (r *Recorder) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Record emits outcome to every sink and returns the signals it built.
func (r *Recorder) Record(ctx context.Context, outcome llm.CallOutcome) Signals {
	signals := Normalize(outcome, r.pricePer1K)
	signals.TraceID, signals.SpanID = observability.TraceIDs(ctx)

	for _, sink := range r.sinks {
		if err := r.emit(ctx, sink, signals); err != nil {
			// Don't fail the request
			r.logger.Warn("telemetry sink failed",
				zap.String("request_id", signals.RequestID),
				zap.String("sink", sink.Name()),
				zap.String("error_type", string(services.GetErrorType(err))),
				zap.Error(err))
		}
	}

	return signals
}

func (r *Recorder) emit(ctx context.Context, sink Sink, signals Signals) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = services.ErrTelemetryEmission.Wrap("", fmt.Errorf("panic: %v", p)).
				WithDetail("sink", sink.Name())
		}
	}()

	if emitErr := sink.Emit(ctx, signals); emitErr != nil {
		return services.ErrTelemetryEmission.Wrap("", emitErr).
			WithDetail("sink", sink.Name())
	}
	return nil
}
