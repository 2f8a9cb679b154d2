package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/upb/llm-blackbox/services/providers"
)

// ProviderName is the registry name of this adapter
const ProviderName = "bedrock"

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 1024
)

// InvokeModelAPI is the slice of the Bedrock runtime client the adapter uses.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type claudeMessageRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature,omitempty"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeMessageResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockAdapter implements the Provider interface for Anthropic models on AWS Bedrock
type BedrockAdapter struct {
	client InvokeModelAPI
}

// NewBedrockAdapter loads the default AWS credential chain for the region.
func NewBedrockAdapter(ctx context.Context, config providers.ProviderConfig) (*BedrockAdapter, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewBedrockAdapterWithClient(bedrockruntime.NewFromConfig(awsCfg)), nil
}

// NewBedrockAdapterWithClient wraps an existing runtime client
func NewBedrockAdapterWithClient(client InvokeModelAPI) *BedrockAdapter {
	return &BedrockAdapter{client: client}
}

// Name returns the provider name
func (a *BedrockAdapter) Name() string {
	return ProviderName
}

// IsAvailable reports whether a runtime client is configured.
// Bedrock runtime has no cheap read-only call to probe.
func (a *BedrockAdapter) IsAvailable(ctx context.Context) bool {
	return a.client != nil
}

// ChatCompletion performs a chat completion request
func (a *BedrockAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidRequest, "failed to encode request", 0, false, err)
	}

	output, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, a.convertError(ctx, err)
	}

	var resp claudeMessageResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeMalformed, "could not decode response", 0, false, err)
	}
	if resp.StopReason == "" && len(resp.Content) == 0 {
		return nil, providers.NewProviderError(a.Name(), providers.CodeMalformed, "response contained no content", 0, false, nil)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	return &providers.ChatResponse{
		ID:    resp.ID,
		Model: model,
		Choices: []providers.Choice{
			{
				Message: providers.Message{
					Role:    providers.RoleAssistant,
					Content: text.String(),
				},
				FinishReason: resp.StopReason,
			},
		},
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Provider: a.Name(),
		Created:  time.Now(),
	}, nil
}

func (a *BedrockAdapter) buildRequest(req *providers.ChatRequest) claudeMessageRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := claudeMessageRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
	}

	// Claude takes system prompts out of band.
	for _, msg := range req.Messages {
		if msg.Role == providers.RoleSystem {
			payload.System = msg.Content
			continue
		}
		payload.Messages = append(payload.Messages, claudeMessage{Role: msg.Role, Content: msg.Content})
	}

	return payload
}

func (a *BedrockAdapter) convertError(ctx context.Context, err error) error {
	if ctxErr := providers.ContextError(ctx, a.Name()); ctxErr != nil {
		ctxErr.Cause = err
		return ctxErr
	}

	var (
		throttling *types.ThrottlingException
		quota      *types.ServiceQuotaExceededException
		timeout    *types.ModelTimeoutException
		validation *types.ValidationException
		denied     *types.AccessDeniedException
	)

	switch {
	case errors.As(err, &throttling), errors.As(err, &quota):
		return providers.NewProviderError(a.Name(), providers.CodeRateLimited, "rate limit exceeded", 429, true, err)
	case errors.As(err, &timeout):
		return providers.NewProviderError(a.Name(), providers.CodeTimeout, "model timed out", 408, true, err)
	case errors.As(err, &validation), errors.As(err, &denied):
		return providers.NewProviderError(a.Name(), providers.CodeInvalidRequest, "request rejected", 400, false, err)
	case errors.Is(err, context.DeadlineExceeded):
		return providers.NewProviderError(a.Name(), providers.CodeTimeout, "request timed out", 0, true, err)
	default:
		return providers.NewProviderError(a.Name(), providers.CodeUpstream, "invoke model failed", 0, true, err)
	}
}
