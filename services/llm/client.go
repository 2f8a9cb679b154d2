package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/upb/llm-blackbox/internal/observability"
	"github.com/upb/llm-blackbox/services/providers"
	"go.uber.org/zap"
)

// Options configures a Client.
type Options struct {
	// ModelName is sent to the provider and used as the model_name tag
	ModelName string

	// Timeout bounds a single provider call
	Timeout time.Duration

	// MaxTokens caps the completion length; zero leaves it to the provider
	MaxTokens int

	// Temperature is passed through unchanged
	Temperature float64

	// SystemPrompt is prepended when set
	SystemPrompt string

	// Counter decides token counts; defaults to ReportedOrEstimated
	Counter TokenCounter
}

// Client invokes one provider and converts every result into a CallOutcome.
// It is safe for concurrent use.
type Client struct {
	provider providers.Provider
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewClient creates a new model client
func NewClient(provider providers.Provider, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Counter == nil {
		opts.Counter = ReportedOrEstimated{CharsPerToken: DefaultCharsPerToken}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		provider: provider,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// ModelName returns the configured model identifier
func (c *Client) ModelName() string {
	return c.opts.ModelName
}

// ProviderName returns the name of the wrapped provider
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Invoke sends question to the model. It never returns an error or
// panics; failures come back as a Failed outcome.
func (c *Client) Invoke(ctx context.Context, question string) (outcome CallOutcome) {
	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = observability.NewRequestID()
	}

	call := Call{
		RequestID: requestID,
		Question:  question,
		ModelName: c.opts.ModelName,
		StartedAt: c.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			call.Latency = c.now().Sub(call.StartedAt)
			c.logger.Error("model provider panicked",
				zap.String("request_id", requestID),
				zap.String("provider", c.provider.Name()),
				zap.Any("panic", r))
			outcome = Failed(call, NewCallError(CategoryProvider, fmt.Errorf("provider panic: %v", r)))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.provider.ChatCompletion(callCtx, c.buildRequest(question))
	call.Latency = c.now().Sub(call.StartedAt)

	if err != nil {
		callErr := categorize(ctx, err)
		c.logger.Debug("model call failed",
			zap.String("request_id", requestID),
			zap.String("provider", c.provider.Name()),
			zap.String("category", string(callErr.Category)),
			zap.Error(err))
		return Failed(call, callErr)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return Failed(call, NewCallError(CategoryMalformed, errors.New("response contained no choices")))
	}

	choice := resp.Choices[0]
	tokens := c.opts.Counter.Count(question, choice.Message.Content, resp.Usage)

	return Succeeded(call, Completion{
		Text:           choice.Message.Content,
		FinishReason:   MapFinishReason(choice.FinishReason),
		PromptTokens:   tokens.Prompt,
		ResponseTokens: tokens.Response,
		TokenSource:    tokens.Source,
		SafetyRatings:  choice.SafetyRatings,
	})
}

func (c *Client) buildRequest(question string) *providers.ChatRequest {
	messages := make([]providers.Message, 0, 2)
	if c.opts.SystemPrompt != "" {
		messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: c.opts.SystemPrompt})
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: question})

	return &providers.ChatRequest{
		Model:       c.opts.ModelName,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
}

// categorize maps a provider error onto an ErrorCategory. parent is the
// caller's context, used to tell client cancellation from our own timeout.
func categorize(parent context.Context, err error) *CallError {
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		return NewCallError(CategoryCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewCallError(CategoryTimeout, err)
	}

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case providers.CodeTimeout:
			return NewCallError(CategoryTimeout, err)
		case providers.CodeRateLimited:
			return NewCallError(CategoryQuota, err)
		case providers.CodeMalformed:
			return NewCallError(CategoryMalformed, err)
		case providers.CodeTransport:
			return NewCallError(CategoryNetwork, err)
		case providers.CodeCanceled:
			return NewCallError(CategoryCanceled, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewCallError(CategoryTimeout, err)
		}
		return NewCallError(CategoryNetwork, err)
	}

	return NewCallError(CategoryProvider, err)
}
