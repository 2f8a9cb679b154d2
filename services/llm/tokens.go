package llm

import (
	"unicode/utf8"

	"github.com/upb/llm-blackbox/services/providers"
)

// DefaultCharsPerToken is the heuristic used when a provider reports no usage.
const DefaultCharsPerToken = 4

// TokenCount is the prompt and response token count for one call.
type TokenCount struct {
	Prompt   int
	Response int
	Source   TokenSource
}

// TokenCounter decides the token counts recorded for a call.
type TokenCounter interface {
	Count(prompt, response string, reported providers.Usage) TokenCount
}

// ReportedOrEstimated trusts provider usage when present and falls back
// to a character heuristic otherwise.
type ReportedOrEstimated struct {
	CharsPerToken int
}

func (c ReportedOrEstimated) Count(prompt, response string, reported providers.Usage) TokenCount {
	if reported.Reported() {
		return TokenCount{
			Prompt:   reported.PromptTokens,
			Response: reported.CompletionTokens,
			Source:   TokenSourceReported,
		}
	}
	return EstimateOnly(c).Count(prompt, response, reported)
}

// EstimateOnly always uses the character heuristic.
type EstimateOnly struct {
	CharsPerToken int
}

func (c EstimateOnly) Count(prompt, response string, _ providers.Usage) TokenCount {
	return TokenCount{
		Prompt:   EstimateTokens(prompt, c.CharsPerToken),
		Response: EstimateTokens(response, c.CharsPerToken),
		Source:   TokenSourceEstimated,
	}
}

// EstimateTokens returns ceil(runes/charsPerToken), with a minimum of 1
// for non-empty text.
func EstimateTokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}

	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + charsPerToken - 1) / charsPerToken
}
