package telemetry

import (
	"context"

	"github.com/upb/llm-blackbox/internal/pii"
	"github.com/upb/llm-blackbox/services/llm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogMessage is the message of the per-call log line.
const LogMessage = "LLM_CALL"

// LogSink writes one structured LLM_CALL line per call.
type LogSink struct {
	logger       *zap.Logger
	logPayloads  bool
	redact       bool
	maxPayloadCh int
}

// LogSinkOption configures a LogSink
type LogSinkOption func(*LogSink)

// WithPayloads controls whether the question and response text are logged.
func WithPayloads(enabled bool) LogSinkOption {
	return func(s *LogSink) {
		s.logPayloads = enabled
	}
}

// WithRedaction scrubs personal data from logged payloads.
func WithRedaction(enabled bool) LogSinkOption {
	return func(s *LogSink) {
		s.redact = enabled
	}
}

// WithMaxPayloadChars truncates logged payloads. Zero disables truncation.
func WithMaxPayloadChars(n int) LogSinkOption {
	return func(s *LogSink) {
		s.maxPayloadCh = n
	}
}

// NewLogSink creates a new LogSink. Payloads are logged and redacted by
// default.
func NewLogSink(logger *zap.Logger, opts ...LogSinkOption) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LogSink{logger: logger, logPayloads: true, redact: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Sink
func (s *LogSink) Name() string {
	return "log"
}

// Emit implements Sink
func (s *LogSink) Emit(_ context.Context, sig Signals) error {
	fields := []zap.Field{
		zap.String("request_id", sig.RequestID),
		zap.String("trace_id", sig.TraceID),
		zap.String("span_id", sig.SpanID),
		zap.String(TagModelName, sig.ModelName),
		zap.String(TagFinishReason, string(sig.FinishReason)),
		zap.Float64("latency_ms", sig.LatencyMs),
		zap.Int("prompt_length", sig.PromptLength),
		zap.Int("response_length", sig.ResponseLength),
		zap.Int("prompt_tokens", sig.PromptTokens),
		zap.Int("response_tokens", sig.ResponseTokens),
		zap.Int("total_tokens", sig.TotalTokens),
		zap.String("token_source", string(sig.TokenSource)),
		zap.Float64("cost_estimated", sig.CostEstimated),
		zap.Int("safety_flag", sig.SafetyFlag),
		zap.Int("error_flag", sig.ErrorFlag),
	}

	if len(sig.SafetyRatings) > 0 {
		fields = append(fields, zap.Any("safety_ratings", sig.SafetyRatings))
	}

	if s.logPayloads {
		fields = append(fields, s.payloadFields(sig)...)
	}

	if sig.ErrorFlag == 1 {
		fields = append(fields,
			zap.String("error_category", string(sig.ErrorCategory)),
			zap.String("error", sig.ErrorMessage),
		)
		if sig.Err != nil {
			fields = append(fields, zap.NamedError("cause", sig.Err))
		}
	}

	if ce := s.logger.Check(levelFor(sig.FinishReason), LogMessage); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (s *LogSink) payloadFields(sig Signals) []zap.Field {
	question, response := sig.Question, sig.Response
	if !s.redact {
		return []zap.Field{
			zap.String("question", s.truncate(question)),
			zap.String("response", s.truncate(response)),
		}
	}

	question, inQuestion := pii.Redact(question)
	response, inResponse := pii.Redact(response)
	fields := []zap.Field{
		zap.String("question", s.truncate(question)),
		zap.String("response", s.truncate(response)),
	}
	if kinds := mergeKinds(inQuestion, inResponse); len(kinds) > 0 {
		fields = append(fields, zap.Strings("pii_redacted", kinds))
	}
	return fields
}

func mergeKinds(a, b []pii.Kind) []string {
	seen := make(map[pii.Kind]bool, len(a)+len(b))
	var out []string
	for _, k := range append(a, b...) {
		if !seen[k] {
			seen[k] = true
			out = append(out, string(k))
		}
	}
	return out
}

func (s *LogSink) truncate(text string) string {
	if s.maxPayloadCh <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= s.maxPayloadCh {
		return text
	}
	return string(runes[:s.maxPayloadCh]) + "..."
}

func levelFor(reason llm.FinishReason) zapcore.Level {
	switch reason {
	case llm.FinishError:
		return zapcore.ErrorLevel
	case llm.FinishSafety:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
