package provider

import (
	"fmt"
	"os"
)

// New creates a provider implementation by runtime identifier.
// Supported: anthropic, gemini, mock. Credentials come from the environment;
// a missing key is a configuration error, surfaced immediately and never
// retried.
func New(name, model string) (Provider, error) {
	switch name {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set: %w", ErrMissingCredential)
		}
		return NewAnthropicProvider(apiKey, model), nil

	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set: %w", ErrMissingCredential)
		}
		return NewGeminiProvider(apiKey, model), nil

	case "mock":
		return NewMockProvider(), nil

	default:
		return nil, fmt.Errorf("%w: %s (supported: anthropic, gemini, mock)", ErrUnsupportedProvider, name)
	}
}

// Available returns the provider names usable in the current environment.
func Available() []string {
	names := []string{}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		names = append(names, "anthropic")
	}
	if os.Getenv("GEMINI_API_KEY") != "" {
		names = append(names, "gemini")
	}
	// The mock provider needs no credentials.
	names = append(names, "mock")
	return names
}

// Default returns the default provider name.
func Default() string {
	return "anthropic"
}
