package providers

import (
	"context"
	"errors"
	"time"
)

// Provider is a single upstream model service the black box can call.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "bedrock", "stub")
	Name() string

	// ChatCompletion performs a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// IsAvailable checks if the provider is currently reachable
	IsAvailable(ctx context.Context) bool
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier (e.g., "gpt-4o-mini", "anthropic.claude-3-haiku-20240307-v1:0")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// LastUserMessage returns the content of the final user message, if any.
func (r *ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	// ID is the unique identifier for this completion
	ID string `json:"id"`

	// Model used for the completion
	Model string `json:"model"`

	// Choices contains the completion results
	Choices []Choice `json:"choices"`

	// Usage statistics as reported by the provider; zero when not reported
	Usage Usage `json:"usage"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Created timestamp
	Created time.Time `json:"created"`
}

// Choice represents a completion choice
type Choice struct {
	// Index of this choice
	Index int `json:"index"`

	// Message contains the response
	Message Message `json:"message"`

	// FinishReason is the provider's raw stop reason
	// (e.g. "stop", "length", "content_filter", "end_turn", "SAFETY")
	FinishReason string `json:"finish_reason"`

	// SafetyRatings holds per-category safety verdicts when the provider returns them
	SafetyRatings map[string]string `json:"safety_ratings,omitempty"`
}

// Usage represents token usage statistics
type Usage struct {
	// PromptTokens used in the request
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens used in the response
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens
	TotalTokens int `json:"total_tokens"`
}

// Reported returns true when the provider filled in token usage.
func (u Usage) Reported() bool {
	return u.PromptTokens > 0 || u.CompletionTokens > 0
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Region for cloud providers
	Region string

	// Timeout for requests
	Timeout time.Duration
}

// Provider error codes
const (
	CodeTimeout        = "TIMEOUT"
	CodeTransport      = "TRANSPORT_ERROR"
	CodeRateLimited    = "RATE_LIMITED"
	CodeMalformed      = "MALFORMED_RESPONSE"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUpstream       = "UPSTREAM_ERROR"
	CodeCanceled       = "CANCELED"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// ContextError converts a context cancellation into a ProviderError,
// or returns nil when ctx is still live.
func ContextError(ctx context.Context, provider string) *ProviderError {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(provider, CodeTimeout, "request deadline exceeded", 0, true, err)
	default:
		return NewProviderError(provider, CodeCanceled, "request canceled", 0, false, err)
	}
}
