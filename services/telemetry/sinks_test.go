package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-blackbox/services/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// collect gathers every metric recorded by reader, keyed by name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, metrics map[string]metricdata.Metrics, name string) int64 {
	t.Helper()
	m, ok := metrics[name]
	require.True(t, ok, "missing metric %s", name)
	s, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", name)

	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMeterSink_Emit(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sink, err := NewMeterSink(mp.Meter("test"))
	require.NoError(t, err)
	assert.Equal(t, "otel", sink.Name())

	require.NoError(t, sink.Emit(context.Background(), Normalize(successOutcome(llm.FinishSafety), DefaultPricePer1K)))
	require.NoError(t, sink.Emit(context.Background(), Normalize(failedOutcome(llm.CategoryTimeout), DefaultPricePer1K)))

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), sumValue(t, metrics, MetricRequests))
	assert.Equal(t, int64(1), sumValue(t, metrics, MetricSafetyFlag))
	assert.Equal(t, int64(1), sumValue(t, metrics, MetricError))

	latency := metrics[MetricLatencyMs].Data.(metricdata.Gauge[float64])
	require.Len(t, latency.DataPoints, 2)
	for _, dp := range latency.DataPoints {
		reason, _ := dp.Attributes.Value(attribute.Key(TagFinishReason))
		switch reason.AsString() {
		case "SAFETY":
			assert.Equal(t, 350.0, dp.Value)
		case "ERROR":
			assert.Equal(t, 30000.0, dp.Value)
		default:
			t.Fatalf("unexpected finish_reason %q", reason.AsString())
		}
	}

	hist, ok := metrics[MetricLatencyDistribution].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

type mockStatsd struct {
	mock.Mock
}

func (m *mockStatsd) Gauge(name string, value float64, tags []string, rate float64) error {
	return m.Called(name, value, tags, rate).Error(0)
}

func (m *mockStatsd) Count(name string, value int64, tags []string, rate float64) error {
	return m.Called(name, value, tags, rate).Error(0)
}

func (m *mockStatsd) Distribution(name string, value float64, tags []string, rate float64) error {
	return m.Called(name, value, tags, rate).Error(0)
}

func (m *mockStatsd) Flush() error {
	return m.Called().Error(0)
}

func (m *mockStatsd) Close() error {
	return m.Called().Error(0)
}

func TestStatsdSink_Emit(t *testing.T) {
	tags := []string{"finish_reason:NORMAL", "model_name:stub-model"}

	client := new(mockStatsd)
	client.On("Gauge", mock.Anything, mock.Anything, tags, 1.0).Return(nil)
	client.On("Count", mock.Anything, mock.Anything, tags, 1.0).Return(nil)
	client.On("Distribution", MetricLatencyDistribution, 350.0, tags, 1.0).Return(nil)

	sink := NewStatsdSinkWithClient(client)
	assert.Equal(t, "dogstatsd", sink.Name())

	require.NoError(t, sink.Emit(context.Background(), Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K)))

	client.AssertCalled(t, "Gauge", MetricLatencyMs, 350.0, tags, 1.0)
	client.AssertCalled(t, "Gauge", MetricTotalTokens, 1000.0, tags, 1.0)
	client.AssertCalled(t, "Count", MetricSafetyFlag, int64(0), tags, 1.0)
	client.AssertCalled(t, "Count", MetricRequests, int64(1), tags, 1.0)
	client.AssertNumberOfCalls(t, "Gauge", 7)
	client.AssertNumberOfCalls(t, "Count", 3)
}

func TestStatsdSink_EmitJoinsErrors(t *testing.T) {
	client := new(mockStatsd)
	client.On("Gauge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("buffer full"))
	client.On("Count", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("Distribution", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := NewStatsdSinkWithClient(client).Emit(context.Background(), Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K))

	require.Error(t, err)
	assert.Contains(t, err.Error(), MetricLatencyMs)
	assert.Contains(t, err.Error(), "buffer full")
}

func TestStatsdSink_Close(t *testing.T) {
	client := new(mockStatsd)
	client.On("Flush").Return(nil)
	client.On("Close").Return(nil)

	require.NoError(t, NewStatsdSinkWithClient(client).Close())
	client.AssertExpectations(t)
}

func TestNewStatsdSink(t *testing.T) {
	sink, err := NewStatsdSink(StatsdConfig{
		Addr:        "127.0.0.1:8125",
		Service:     "llm-blackbox",
		Environment: "test",
		Version:     "dev",
	})
	require.NoError(t, err)

	// UDP is fire and forget, nothing needs to listen.
	assert.NoError(t, sink.Emit(context.Background(), Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K)))
	assert.NoError(t, sink.Close())
}

func TestTraceSink_Emit(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")
	sink := NewTraceSink()

	ctx, span := tracer.Start(context.Background(), "llm.call")
	require.NoError(t, sink.Emit(ctx, Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K)))
	span.End()

	ctx, span = tracer.Start(context.Background(), "llm.call")
	require.NoError(t, sink.Emit(ctx, Normalize(failedOutcome(llm.CategoryNetwork), DefaultPricePer1K)))
	span.End()

	// No span on the context is a no-op.
	require.NoError(t, sink.Emit(context.Background(), Signals{}))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := attrMap(spans[0].Attributes())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "stub-model", ok[TagModelName].AsString())
	assert.Equal(t, "NORMAL", ok[TagFinishReason].AsString())
	assert.Equal(t, 350.0, ok[MetricLatencyMs].AsFloat64())
	assert.Equal(t, int64(1000), ok[MetricTotalTokens].AsInt64())
	assert.Equal(t, int64(0), ok[MetricSafetyFlag].AsInt64())
	assert.NotContains(t, ok, "error.category")

	failed := attrMap(spans[1].Attributes())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "model service unreachable", spans[1].Status().Description)
	assert.Equal(t, "NETWORK", failed["error.category"].AsString())
	assert.NotContains(t, failed["error.message"].AsString(), "10.0.0.1")
	assert.Empty(t, spans[1].Events())
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestLogSink_Emit(t *testing.T) {
	tests := []struct {
		name    string
		outcome llm.CallOutcome
		level   zapcore.Level
	}{
		{name: "normal", outcome: successOutcome(llm.FinishNormal), level: zapcore.InfoLevel},
		{name: "length", outcome: successOutcome(llm.FinishLength), level: zapcore.InfoLevel},
		{name: "safety", outcome: successOutcome(llm.FinishSafety), level: zapcore.WarnLevel},
		{name: "error", outcome: failedOutcome(llm.CategoryTimeout), level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			sink := NewLogSink(zap.New(core))

			require.NoError(t, sink.Emit(context.Background(), Normalize(tt.outcome, DefaultPricePer1K)))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, LogMessage, entry.Message)
			assert.Equal(t, tt.level, entry.Level)

			fields := entry.ContextMap()
			assert.Equal(t, "req-1", fields["request_id"])
			assert.Equal(t, "stub-model", fields["model_name"])
			assert.Equal(t, "What is observability?", fields["question"])
		})
	}
}

func TestLogSink_SafetyRatings(t *testing.T) {
	ratings := map[string]string{"HARM_CATEGORY_DANGEROUS_CONTENT": "HIGH"}

	t.Run("logged when reported", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		sink := NewLogSink(zap.New(core))

		outcome := llm.Succeeded(testCall(80*time.Millisecond), llm.Completion{
			FinishReason:  llm.FinishSafety,
			SafetyRatings: ratings,
		})
		require.NoError(t, sink.Emit(context.Background(), Normalize(outcome, DefaultPricePer1K)))

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, ratings, fields["safety_ratings"])
	})

	t.Run("omitted when absent", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		sink := NewLogSink(zap.New(core))

		require.NoError(t, sink.Emit(context.Background(), Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K)))

		assert.NotContains(t, logs.All()[0].ContextMap(), "safety_ratings")
	})
}

func TestLogSink_ErrorFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Emit(context.Background(), Normalize(failedOutcome(llm.CategoryQuota), DefaultPricePer1K)))

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "QUOTA", fields["error_category"])
	assert.Equal(t, "model quota exceeded", fields["error"])
	assert.Equal(t, int64(1), fields["error_flag"])
	assert.Contains(t, fields["cause"], "i/o timeout")
}

func TestLogSink_Payloads(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sink := NewLogSink(zap.New(core), WithPayloads(false))

		require.NoError(t, sink.Emit(context.Background(), Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K)))

		fields := logs.All()[0].ContextMap()
		assert.NotContains(t, fields, "question")
		assert.NotContains(t, fields, "response")
	})

	t.Run("truncated", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sink := NewLogSink(zap.New(core), WithMaxPayloadChars(4))

		require.NoError(t, sink.Emit(context.Background(), Normalize(successOutcome(llm.FinishNormal), DefaultPricePer1K)))

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "What...", fields["question"])
		assert.Equal(t, "Obse...", fields["response"])
	})

	t.Run("personal data redacted", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sink := NewLogSink(zap.New(core))

		sig := Signals{
			FinishReason: llm.FinishNormal,
			Question:     "Email jane@example.com about it",
			Response:     "Call 555-123-4567 or jane@example.com",
		}
		require.NoError(t, sink.Emit(context.Background(), sig))

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "Email [EMAIL_REDACTED] about it", fields["question"])
		assert.Equal(t, "Call [PHONE_REDACTED] or [EMAIL_REDACTED]", fields["response"])
		assert.Equal(t, []interface{}{"email", "phone"}, fields["pii_redacted"])
	})

	t.Run("redaction disabled", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sink := NewLogSink(zap.New(core), WithRedaction(false))

		sig := Signals{FinishReason: llm.FinishNormal, Question: "Email jane@example.com"}
		require.NoError(t, sink.Emit(context.Background(), sig))

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "Email jane@example.com", fields["question"])
		assert.NotContains(t, fields, "pii_redacted")
	})
}
