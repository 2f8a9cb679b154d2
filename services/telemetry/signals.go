// Package telemetry turns a CallOutcome into the flat set of signals the
// black box exports: span attributes, one LLM_CALL log line and a fixed
// family of llm.* metrics.
package telemetry

import (
	"math"
	"unicode/utf8"

	"github.com/upb/llm-blackbox/services/llm"
)

// Metric names
const (
	MetricLatencyMs      = "llm.latency_ms"
	MetricPromptLength   = "llm.prompt_length"
	MetricResponseLength = "llm.response_length"
	MetricPromptTokens   = "llm.prompt_tokens"
	MetricResponseTokens = "llm.response_tokens"
	MetricTotalTokens    = "llm.tokens.total"
	MetricCostEstimated  = "llm.cost.estimated"
	MetricSafetyFlag     = "llm.safety_flag"
	MetricError          = "llm.error"
	MetricRequests       = "llm.requests.count"

	// MetricLatencyDistribution is the latency histogram used for percentiles.
	MetricLatencyDistribution = "llm.latency.distribution"
)

// Tag keys
const (
	TagModelName    = "model_name"
	TagFinishReason = "finish_reason"
)

// DefaultPricePer1K is the USD price per 1000 tokens used for cost estimates.
const DefaultPricePer1K = 0.002

// MetricKind says how a sink should aggregate a metric.
type MetricKind int

const (
	KindGauge MetricKind = iota
	KindCount
)

// MetricDef describes one exported metric.
type MetricDef struct {
	Name        string
	Kind        MetricKind
	Unit        string
	Description string
}

// Metric is a metric value for one call.
type Metric struct {
	MetricDef
	Value float64
}

// MetricDefs lists every per-call metric in emission order.
var MetricDefs = []MetricDef{
	{MetricLatencyMs, KindGauge, "ms", "Model call latency"},
	{MetricPromptLength, KindGauge, "{char}", "Question length in characters"},
	{MetricResponseLength, KindGauge, "{char}", "Response length in characters"},
	{MetricPromptTokens, KindGauge, "{token}", "Prompt tokens"},
	{MetricResponseTokens, KindGauge, "{token}", "Response tokens"},
	{MetricTotalTokens, KindGauge, "{token}", "Prompt plus response tokens"},
	{MetricCostEstimated, KindGauge, "USD", "Estimated call cost"},
	{MetricSafetyFlag, KindCount, "{call}", "Calls stopped by the safety filter"},
	{MetricError, KindCount, "{call}", "Calls that failed"},
	{MetricRequests, KindCount, "{call}", "Model calls"},
}

// Signals is the normalized, flat view of one CallOutcome.
type Signals struct {
	RequestID string
	TraceID   string
	SpanID    string

	ModelName    string
	FinishReason llm.FinishReason

	Question string
	Response string

	LatencyMs      float64
	PromptLength   int
	ResponseLength int
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
	TokenSource    llm.TokenSource
	CostEstimated  float64

	SafetyFlag int
	ErrorFlag  int

	// SafetyRatings is logged with the call but never exported as a tag.
	SafetyRatings map[string]string

	ErrorCategory llm.ErrorCategory
	ErrorMessage  string

	// Err is the raw failure cause. It is logged but never exported as a tag.
	Err error
}

// Normalize derives Signals from an outcome. Failed calls report zero
// tokens, zero cost and an empty response.
func Normalize(outcome llm.CallOutcome, pricePer1K float64) Signals {
	s := Signals{
		RequestID:      outcome.RequestID,
		ModelName:      outcome.ModelName,
		FinishReason:   outcome.FinishReason(),
		Question:       outcome.Question,
		Response:       outcome.ResponseText(),
		LatencyMs:      outcome.LatencyMs(),
		PromptLength:   utf8.RuneCountInString(outcome.Question),
		ResponseLength: utf8.RuneCountInString(outcome.ResponseText()),
		PromptTokens:   outcome.PromptTokens(),
		ResponseTokens: outcome.ResponseTokens(),
		TotalTokens:    outcome.TotalTokens(),
		TokenSource:    outcome.TokenSource(),
		SafetyRatings:  outcome.SafetyRatings(),
	}

	s.CostEstimated = EstimateCost(s.TotalTokens, pricePer1K)

	if s.FinishReason == llm.FinishSafety {
		s.SafetyFlag = 1
	}

	if failure := outcome.Failure(); failure != nil {
		s.ErrorFlag = 1
		s.ErrorCategory = failure.Category
		s.ErrorMessage = failure.Message
		s.Err = failure.Err
	}

	return s
}

// EstimateCost returns totalTokens * pricePer1K / 1000 rounded to 6 decimals.
func EstimateCost(totalTokens int, pricePer1K float64) float64 {
	if totalTokens <= 0 || pricePer1K <= 0 {
		return 0
	}
	return math.Round(float64(totalTokens)*pricePer1K/1000*1e6) / 1e6
}

// Metrics returns the per-call metric values in MetricDefs order.
func (s Signals) Metrics() []Metric {
	values := map[string]float64{
		MetricLatencyMs:      s.LatencyMs,
		MetricPromptLength:   float64(s.PromptLength),
		MetricResponseLength: float64(s.ResponseLength),
		MetricPromptTokens:   float64(s.PromptTokens),
		MetricResponseTokens: float64(s.ResponseTokens),
		MetricTotalTokens:    float64(s.TotalTokens),
		MetricCostEstimated:  s.CostEstimated,
		MetricSafetyFlag:     float64(s.SafetyFlag),
		MetricError:          float64(s.ErrorFlag),
		MetricRequests:       1,
	}

	metrics := make([]Metric, 0, len(MetricDefs))
	for _, def := range MetricDefs {
		metrics = append(metrics, Metric{MetricDef: def, Value: values[def.Name]})
	}
	return metrics
}

// Tags returns the low-cardinality dimensions attached to every metric.
func (s Signals) Tags() map[string]string {
	return map[string]string{
		TagModelName:    s.ModelName,
		TagFinishReason: string(s.FinishReason),
	}
}
