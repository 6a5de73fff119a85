// Package provider implements the LLM call layer: a pluggable backend
// interface, a retrying client with token accounting, and the concrete
// HTTP providers.
package provider

import "context"

// GenerateRequest is one logical text-generation request.
type GenerateRequest struct {
	Prompt    string
	System    string // optional system instructions
	MaxTokens int    // output token budget; providers apply a default when 0
}

// Result holds the ephemeral outcome of a single successful provider call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is one text-generation backend. Implementations perform exactly
// one attempt per Generate call; retry behavior lives in Client.
type Provider interface {
	// Name returns the provider identifier used by the factory (e.g. "anthropic").
	Name() string

	// Model returns the model identifier requests are issued against.
	Model() string

	Generate(ctx context.Context, req GenerateRequest) (*Result, error)
}
