package llm

import "strings"

// finishReasons maps provider stop reasons, lowercased, onto the normalized set.
var finishReasons = map[string]FinishReason{
	// OpenAI
	"stop":           FinishNormal,
	"length":         FinishLength,
	"content_filter": FinishSafety,
	"tool_calls":     FinishNormal,

	// Anthropic / Bedrock
	"end_turn":             FinishNormal,
	"stop_sequence":        FinishNormal,
	"max_tokens":           FinishLength,
	"refusal":              FinishSafety,
	"guardrail_intervened": FinishSafety,

	// Gemini
	"safety": FinishSafety,
}

// MapFinishReason normalizes a provider stop reason. Unknown and empty
// values are NORMAL; ERROR is never produced here.
func MapFinishReason(raw string) FinishReason {
	if reason, ok := finishReasons[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return reason
	}
	return FinishNormal
}
