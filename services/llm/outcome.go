// Package llm wraps a single model provider behind one call that always
// yields a CallOutcome. Failures are values, never panics or bare errors,
// so every request can be turned into telemetry.
package llm

import (
	"fmt"
	"time"
)

// FinishReason is the normalized termination reason of a call.
type FinishReason string

const (
	FinishNormal FinishReason = "NORMAL"
	FinishSafety FinishReason = "SAFETY"
	FinishLength FinishReason = "LENGTH"
	FinishError  FinishReason = "ERROR"
)

// ErrorCategory classifies a failed call.
type ErrorCategory string

const (
	CategoryTimeout   ErrorCategory = "TIMEOUT"
	CategoryNetwork   ErrorCategory = "NETWORK"
	CategoryQuota     ErrorCategory = "QUOTA"
	CategoryMalformed ErrorCategory = "MALFORMED_RESPONSE"
	CategoryProvider  ErrorCategory = "PROVIDER"
	CategoryCanceled  ErrorCategory = "CANCELED"
)

// TokenSource says where token counts came from.
type TokenSource string

const (
	TokenSourceReported  TokenSource = "reported"
	TokenSourceEstimated TokenSource = "estimated"
)

// Call identifies one invocation independent of how it ended.
type Call struct {
	RequestID string
	Question  string
	ModelName string
	StartedAt time.Time
	Latency   time.Duration
}

// Completion is the successful arm of a CallOutcome.
type Completion struct {
	Text           string
	FinishReason   FinishReason
	PromptTokens   int
	ResponseTokens int
	TokenSource    TokenSource
	SafetyRatings  map[string]string
}

// CallError is the failed arm of a CallOutcome. Message is safe to return
// to clients; Err holds the raw cause for logs.
type CallError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// CallOutcome is exactly one of a Completion or a CallError.
// Build it with Succeeded or Failed.
type CallOutcome struct {
	Call

	completion *Completion
	failure    *CallError
}

// Succeeded builds a successful outcome. ERROR or unknown finish reasons
// are coerced to NORMAL and negative counts to zero.
func Succeeded(call Call, c Completion) CallOutcome {
	switch c.FinishReason {
	case FinishNormal, FinishSafety, FinishLength:
	default:
		c.FinishReason = FinishNormal
	}
	if c.PromptTokens < 0 {
		c.PromptTokens = 0
	}
	if c.ResponseTokens < 0 {
		c.ResponseTokens = 0
	}
	if c.TokenSource == "" {
		c.TokenSource = TokenSourceReported
	}

	return CallOutcome{Call: normalizeCall(call), completion: &c}
}

// Failed builds a failed outcome.
func Failed(call Call, e *CallError) CallOutcome {
	if e == nil {
		e = &CallError{Category: CategoryProvider, Message: categoryMessages[CategoryProvider]}
	}
	if e.Category == "" {
		e.Category = CategoryProvider
	}
	if e.Message == "" {
		e.Message = categoryMessages[e.Category]
	}

	return CallOutcome{Call: normalizeCall(call), failure: e}
}

func normalizeCall(call Call) Call {
	if call.Latency < 0 {
		call.Latency = 0
	}
	return call
}

// OK reports whether the call produced a completion.
func (o CallOutcome) OK() bool {
	return o.completion != nil
}

// Completion returns the successful arm.
func (o CallOutcome) Completion() (Completion, bool) {
	if o.completion == nil {
		return Completion{}, false
	}
	return *o.completion, true
}

// Failure returns the failed arm, or nil for a successful call.
func (o CallOutcome) Failure() *CallError {
	return o.failure
}

// FinishReason returns ERROR for failures.
func (o CallOutcome) FinishReason() FinishReason {
	if o.completion == nil {
		return FinishError
	}
	return o.completion.FinishReason
}

// ResponseText is empty for failures.
func (o CallOutcome) ResponseText() string {
	if o.completion == nil {
		return ""
	}
	return o.completion.Text
}

func (o CallOutcome) PromptTokens() int {
	if o.completion == nil {
		return 0
	}
	return o.completion.PromptTokens
}

func (o CallOutcome) ResponseTokens() int {
	if o.completion == nil {
		return 0
	}
	return o.completion.ResponseTokens
}

func (o CallOutcome) TotalTokens() int {
	return o.PromptTokens() + o.ResponseTokens()
}

// SafetyRatings returns the provider's per-category safety verdicts, nil
// for failures or when the provider reported none.
func (o CallOutcome) SafetyRatings() map[string]string {
	if o.completion == nil {
		return nil
	}
	return o.completion.SafetyRatings
}

// TokenSource is empty for failures.
func (o CallOutcome) TokenSource() TokenSource {
	if o.completion == nil {
		return ""
	}
	return o.completion.TokenSource
}

// LatencyMs returns latency in fractional milliseconds.
func (o CallOutcome) LatencyMs() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}

// ErrorMessage is the sanitized failure message, empty on success.
func (o CallOutcome) ErrorMessage() string {
	if o.failure == nil {
		return ""
	}
	return o.failure.Message
}

// ErrorCategory is empty on success.
func (o CallOutcome) ErrorCategory() ErrorCategory {
	if o.failure == nil {
		return ""
	}
	return o.failure.Category
}

var categoryMessages = map[ErrorCategory]string{
	CategoryTimeout:   "model call timed out",
	CategoryNetwork:   "model service unreachable",
	CategoryQuota:     "model quota exceeded",
	CategoryMalformed: "model returned a malformed response",
	CategoryProvider:  "model service returned an error",
	CategoryCanceled:  "request canceled",
}

// NewCallError builds a CallError with the category's sanitized message.
func NewCallError(category ErrorCategory, err error) *CallError {
	return &CallError{Category: category, Message: categoryMessages[category], Err: err}
}
