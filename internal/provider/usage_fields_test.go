package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokensFromUsage(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantIn  int
		wantOut int
	}{
		{
			name:    "anthropic field names",
			raw:     map[string]any{"input_tokens": float64(120), "output_tokens": float64(45)},
			wantIn:  120,
			wantOut: 45,
		},
		{
			name:    "gemini field names",
			raw:     map[string]any{"promptTokenCount": float64(80), "candidatesTokenCount": float64(30), "totalTokenCount": float64(110)},
			wantIn:  80,
			wantOut: 30,
		},
		{
			name:    "openai-compatible field names",
			raw:     map[string]any{"prompt_tokens": float64(9), "completion_tokens": float64(4)},
			wantIn:  9,
			wantOut: 4,
		},
		{
			name:    "priority order prefers anthropic names",
			raw:     map[string]any{"input_tokens": float64(1), "promptTokenCount": float64(99)},
			wantIn:  1,
			wantOut: 0,
		},
		{
			name: "missing usage",
			raw:  nil,
		},
		{
			name: "non-numeric values ignored",
			raw:  map[string]any{"input_tokens": "a lot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := tokensFromUsage(tt.raw)
			assert.Equal(t, tt.wantIn, in)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}
