package provider

import "encoding/json"

// Backends report token usage under different field names. The candidate
// lists below are tried in priority order so the normalization is auditable
// rather than guessed from whatever keys happen to be present.
var (
	inputTokenFields = []string{
		"input_tokens",      // Anthropic
		"prompt_tokens",     // OpenAI-compatible
		"promptTokenCount",  // Gemini
		"inputTokenCount",
	}
	outputTokenFields = []string{
		"output_tokens",          // Anthropic
		"completion_tokens",      // OpenAI-compatible
		"candidatesTokenCount",   // Gemini
		"outputTokenCount",
	}
)

// tokensFromUsage normalizes a backend-specific usage object into input and
// output token counts. Missing fields count as zero.
func tokensFromUsage(raw map[string]any) (inputTokens, outputTokens int) {
	return firstIntField(raw, inputTokenFields), firstIntField(raw, outputTokenFields)
}

func firstIntField(raw map[string]any, keys []string) int {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return 0
}
