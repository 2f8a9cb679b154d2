// Package stub provides a deterministic local model used when no real
// provider is configured. It reproduces the three failure shapes the
// black box is built to surface: safety blocks, token explosions and
// slow long-form answers.
package stub

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-blackbox/services/providers"
)

// ProviderName is the registry name of this adapter
const ProviderName = "stub"

// Trigger markers understood by the stub.
const (
	ExplodeTokensMarker = "EXPLODE_TOKENS"
	LongFormMarker      = "in exhaustive detail"
)

const (
	// Questions longer than this are treated as a token explosion.
	explodeQuestionChars = 2000

	explodedPromptTokens     = 200000
	explodedCompletionTokens = 50000

	maxPromptTokens = 2000
)

// unsafeKeywords trip the simulated safety filter.
var unsafeKeywords = []string{"kill", "bomb", "illegal", "attack", "violent"}

// Config controls the stub's randomness and simulated latency.
type Config struct {
	// Seed makes token counts reproducible. Zero seeds from the clock.
	Seed uint64

	// BaseLatency is added to every call.
	BaseLatency time.Duration

	// LongFormTokenDelay is added per completion token for long-form answers.
	LongFormTokenDelay time.Duration
}

// DefaultConfig returns the stub settings used by the server.
func DefaultConfig() Config {
	return Config{
		BaseLatency:        50 * time.Millisecond,
		LongFormTokenDelay: 2 * time.Millisecond,
	}
}

// StubAdapter implements the Provider interface without any network calls
type StubAdapter struct {
	config Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStubAdapter creates a new stub adapter
func NewStubAdapter(config Config) *StubAdapter {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &StubAdapter{
		config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Name returns the provider name
func (a *StubAdapter) Name() string {
	return ProviderName
}

// IsAvailable always reports true
func (a *StubAdapter) IsAvailable(ctx context.Context) bool {
	return true
}

// ChatCompletion fabricates a completion for the last user message
func (a *StubAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	question := req.LastUserMessage()
	lower := strings.ToLower(question)

	choice := providers.Choice{
		Message:      providers.Message{Role: providers.RoleAssistant},
		FinishReason: "STOP",
	}
	var usage providers.Usage
	delay := a.config.BaseLatency

	switch {
	case containsAny(lower, unsafeKeywords):
		choice.FinishReason = "SAFETY"
		choice.Message.Content = "Response blocked by safety filters."
		choice.SafetyRatings = map[string]string{
			"HARM_CATEGORY_DANGEROUS_CONTENT": "HIGH",
			"HARM_CATEGORY_HARASSMENT":        "NEGLIGIBLE",
		}
		usage = a.randomUsage(question)
		usage.CompletionTokens = 0

	case strings.Contains(question, ExplodeTokensMarker) || len(question) > explodeQuestionChars:
		choice.Message.Content = a.answer(question)
		usage = providers.Usage{
			PromptTokens:     explodedPromptTokens,
			CompletionTokens: explodedCompletionTokens,
		}

	case strings.Contains(lower, LongFormMarker):
		choice.Message.Content = a.answer(question)
		usage = a.randomUsage(question)
		usage.CompletionTokens = a.intRange(1500, 3000)
		if req.MaxTokens > 0 {
			// Long answers finish within the budget; only the delay grows.
			usage.CompletionTokens = min(usage.CompletionTokens, req.MaxTokens)
		}
		delay += time.Duration(usage.CompletionTokens) * a.config.LongFormTokenDelay

	default:
		choice.Message.Content = a.answer(question)
		usage = a.randomUsage(question)
	}

	if req.MaxTokens > 0 && usage.CompletionTokens > req.MaxTokens && usage.CompletionTokens != explodedCompletionTokens {
		usage.CompletionTokens = req.MaxTokens
		choice.FinishReason = "MAX_TOKENS"
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	return &providers.ChatResponse{
		ID:       "stub-" + uuid.NewString(),
		Model:    req.Model,
		Choices:  []providers.Choice{choice},
		Usage:    usage,
		Provider: a.Name(),
		Created:  time.Now(),
	}, nil
}

func (a *StubAdapter) answer(question string) string {
	return fmt.Sprintf("[LOCAL TEST MODE]\nQuestion received: '%s'\nThis is a stubbed response used for API testing.", question)
}

func (a *StubAdapter) randomUsage(question string) providers.Usage {
	words := len(strings.Fields(question))
	if words == 0 {
		words = 1
	}

	prompt := words * a.intRange(1, 4)
	if prompt > maxPromptTokens {
		prompt = maxPromptTokens
	}

	return providers.Usage{
		PromptTokens:     prompt,
		CompletionTokens: a.intRange(10, 200),
	}
}

// intRange returns a value in [lo, hi].
func (a *StubAdapter) intRange(lo, hi int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return lo + a.rng.IntN(hi-lo+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctxErr := providers.ContextError(ctx, ProviderName); ctxErr != nil {
			return ctxErr
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return providers.ContextError(ctx, ProviderName)
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
