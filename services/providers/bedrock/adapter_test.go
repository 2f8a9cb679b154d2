package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-blackbox/services/providers"
)

type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bedrockruntime.InvokeModelOutput), args.Error(1)
}

const claudeModel = "anthropic.claude-3-haiku-20240307-v1:0"

func TestBedrockAdapter_ChatCompletion(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		runtime := new(mockRuntime)
		adapter := NewBedrockAdapterWithClient(runtime)

		runtime.On("InvokeModel", mock.Anything, mock.MatchedBy(func(in *bedrockruntime.InvokeModelInput) bool {
			var payload claudeMessageRequest
			if err := json.Unmarshal(in.Body, &payload); err != nil {
				return false
			}
			return aws.ToString(in.ModelId) == claudeModel &&
				payload.AnthropicVersion == "bedrock-2023-05-31" &&
				payload.MaxTokens == 512 &&
				payload.System == "be brief" &&
				len(payload.Messages) == 1 &&
				payload.Messages[0].Content == "Capital of France?"
		})).Return(&bedrockruntime.InvokeModelOutput{
			Body: []byte(`{
				"id": "msg_01",
				"model": "claude-3-haiku-20240307",
				"content": [{"type": "text", "text": "Paris."}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 14, "output_tokens": 3}
			}`),
		}, nil)

		resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
			Model: claudeModel,
			Messages: []providers.Message{
				{Role: providers.RoleSystem, Content: "be brief"},
				{Role: providers.RoleUser, Content: "Capital of France?"},
			},
			MaxTokens: 512,
		})
		require.NoError(t, err)

		assert.Equal(t, "bedrock", resp.Provider)
		require.Len(t, resp.Choices, 1)
		assert.Equal(t, "Paris.", resp.Choices[0].Message.Content)
		assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
		assert.Equal(t, 14, resp.Usage.PromptTokens)
		assert.Equal(t, 3, resp.Usage.CompletionTokens)
		assert.Equal(t, 17, resp.Usage.TotalTokens)
		runtime.AssertExpectations(t)
	})

	t.Run("default max tokens", func(t *testing.T) {
		adapter := NewBedrockAdapterWithClient(new(mockRuntime))
		payload := adapter.buildRequest(&providers.ChatRequest{
			Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		})
		assert.Equal(t, defaultMaxTokens, payload.MaxTokens)
		assert.Empty(t, payload.System)
	})

	t.Run("undecodable body is malformed", func(t *testing.T) {
		runtime := new(mockRuntime)
		runtime.On("InvokeModel", mock.Anything, mock.Anything).
			Return(&bedrockruntime.InvokeModelOutput{Body: []byte(`not json`)}, nil)

		_, err := NewBedrockAdapterWithClient(runtime).ChatCompletion(context.Background(), &providers.ChatRequest{Model: claudeModel})
		assertCode(t, err, providers.CodeMalformed)
	})

	t.Run("empty body is malformed", func(t *testing.T) {
		runtime := new(mockRuntime)
		runtime.On("InvokeModel", mock.Anything, mock.Anything).
			Return(&bedrockruntime.InvokeModelOutput{Body: []byte(`{}`)}, nil)

		_, err := NewBedrockAdapterWithClient(runtime).ChatCompletion(context.Background(), &providers.ChatRequest{Model: claudeModel})
		assertCode(t, err, providers.CodeMalformed)
	})
}

func TestBedrockAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"throttling", &types.ThrottlingException{Message: aws.String("slow down")}, providers.CodeRateLimited},
		{"quota", &types.ServiceQuotaExceededException{Message: aws.String("quota")}, providers.CodeRateLimited},
		{"model timeout", &types.ModelTimeoutException{Message: aws.String("took too long")}, providers.CodeTimeout},
		{"validation", &types.ValidationException{Message: aws.String("bad input")}, providers.CodeInvalidRequest},
		{"unknown", errors.New("boom"), providers.CodeUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runtime := new(mockRuntime)
			runtime.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := NewBedrockAdapterWithClient(runtime).ChatCompletion(context.Background(), &providers.ChatRequest{Model: claudeModel})
			assertCode(t, err, tt.wantCode)
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

func TestBedrockAdapter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runtime := new(mockRuntime)
	runtime.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	_, err := NewBedrockAdapterWithClient(runtime).ChatCompletion(ctx, &providers.ChatRequest{Model: claudeModel})
	assertCode(t, err, providers.CodeCanceled)
}

func TestBedrockAdapter_IsAvailable(t *testing.T) {
	assert.True(t, NewBedrockAdapterWithClient(new(mockRuntime)).IsAvailable(context.Background()))
	assert.Equal(t, "bedrock", NewBedrockAdapterWithClient(nil).Name())
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)

	var provErr *providers.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, code, provErr.Code)
}
