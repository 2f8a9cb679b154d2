package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/upb/llm-blackbox/services/providers"
)

const (
	// ProviderName is the registry name of this adapter
	ProviderName = "openai"

	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter implements the Provider interface for OpenAI-compatible APIs
type OpenAIAdapter struct {
	config providers.ProviderConfig
	client *goopenai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAIAdapter{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return ProviderName
}

// ChatCompletion performs a chat completion request
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req))
	if err != nil {
		return nil, a.convertError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), providers.CodeMalformed, "response contained no choices", 0, false, nil)
	}

	return a.convertResponse(resp), nil
}

// IsAvailable checks if the provider is currently available
func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.ListModels(ctx)
	return err == nil
}

func (a *OpenAIAdapter) buildRequest(req *providers.ChatRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
}

func (a *OpenAIAdapter) convertResponse(resp goopenai.ChatCompletionResponse) *providers.ChatResponse {
	choices := make([]providers.Choice, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		choices = append(choices, providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: string(choice.FinishReason),
		})
	}

	return &providers.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: choices,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Provider: a.Name(),
		Created:  time.Unix(resp.Created, 0),
	}
}

// convertError maps client errors onto provider error codes. Raw upstream
// messages stay in Cause and are never surfaced to callers.
func (a *OpenAIAdapter) convertError(ctx context.Context, err error) error {
	if ctxErr := providers.ContextError(ctx, a.Name()); ctxErr != nil {
		ctxErr.Cause = err
		return ctxErr
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return a.statusError(apiErr.HTTPStatusCode, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return a.statusError(reqErr.HTTPStatusCode, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return providers.NewProviderError(a.Name(), providers.CodeMalformed, "could not decode response", 0, false, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return providers.NewProviderError(a.Name(), providers.CodeTimeout, "request timed out", 0, true, err)
	}

	return providers.NewProviderError(a.Name(), providers.CodeTransport, "request failed", 0, true, err)
}

func (a *OpenAIAdapter) statusError(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return providers.NewProviderError(a.Name(), providers.CodeRateLimited, "rate limit exceeded", status, true, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return providers.NewProviderError(a.Name(), providers.CodeTimeout, "upstream timed out", status, true, err)
	case status >= 400 && status < 500:
		return providers.NewProviderError(a.Name(), providers.CodeInvalidRequest, "request rejected", status, false, err)
	default:
		return providers.NewProviderError(a.Name(), providers.CodeUpstream, "upstream error", status, status >= 500, err)
	}
}
