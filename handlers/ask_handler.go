package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/llm-blackbox/internal/observability"
	"github.com/upb/llm-blackbox/services"
	"github.com/upb/llm-blackbox/services/llm"
	"github.com/upb/llm-blackbox/services/telemetry"
	"github.com/upb/llm-blackbox/utils"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxAskBodyBytes bounds the /ask request body.
const maxAskBodyBytes = 1 << 20

// AskRequest is the body of POST /ask
type AskRequest struct {
	Question string `json:"question" validate:"required,notblank"`
}

// AskResponse is the body of a successful POST /ask
type AskResponse struct {
	Response       string            `json:"response"`
	FinishReason   string            `json:"finish_reason"`
	Model          string            `json:"model"`
	PromptTokens   int               `json:"prompt_tokens"`
	ResponseTokens int               `json:"response_tokens"`
	TotalTokens    int               `json:"total_tokens"`
	LatencyMs      float64           `json:"latency_ms"`
	SafetyRatings  map[string]string `json:"safety_ratings,omitempty"`
	TraceID        string            `json:"trace_id"`
	RequestID      string            `json:"request_id"`
}

// ModelClient invokes the model and always returns an outcome
type ModelClient interface {
	Invoke(ctx context.Context, question string) llm.CallOutcome
	ModelName() string
}

// OutcomeRecorder turns an outcome into telemetry
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome llm.CallOutcome) telemetry.Signals
}

// AskHandler handles POST /ask
type AskHandler struct {
	client   ModelClient
	recorder OutcomeRecorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewAskHandler creates a new AskHandler
func NewAskHandler(client ModelClient, recorder OutcomeRecorder, tracer trace.Tracer, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		client:   client,
		recorder: recorder,
		tracer:   tracer,
		logger:   logger,
	}
}

// HandleAsk handles POST /ask. Every request that passes validation is
// recorded, whether the model call succeeded or not.
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	requestID := observability.RequestIDFromContext(r.Context())

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, services.ErrInvalidRequestBody, h.logger)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "llm.call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	outcome := h.client.Invoke(ctx, req.Question)
	signals := h.recorder.Record(ctx, outcome)

	if failure := outcome.Failure(); failure != nil {
		HandleServiceError(w, outcomeError(failure), h.logger)
		return
	}

	response := AskResponse{
		Response:       outcome.ResponseText(),
		FinishReason:   string(outcome.FinishReason()),
		Model:          outcome.ModelName,
		PromptTokens:   outcome.PromptTokens(),
		ResponseTokens: outcome.ResponseTokens(),
		TotalTokens:    outcome.TotalTokens(),
		LatencyMs:      outcome.LatencyMs(),
		SafetyRatings:  outcome.SafetyRatings(),
		TraceID:        signals.TraceID,
		RequestID:      outcome.RequestID,
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", outcome.RequestID),
			zap.Error(err))
	}
}

// outcomeError converts a failed call into the domain error that picks
// the HTTP status. The message is the category's sanitized text.
func outcomeError(failure *llm.CallError) error {
	sentinel := services.ErrModelError
	switch failure.Category {
	case llm.CategoryTimeout:
		sentinel = services.ErrModelTimeout
	case llm.CategoryQuota:
		sentinel = services.ErrModelQuota
	case llm.CategoryCanceled:
		sentinel = services.ErrModelUnavailable
	}
	return sentinel.Wrap(failure.Message, failure)
}
