package provider

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedProvider is returned by the factory for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingCredential is returned when a provider's API key is not configured.
	// Configuration errors are fatal and never retried.
	ErrMissingCredential = errors.New("missing credential")
)

// CallError is a failed provider call carrying transport-level detail.
// StatusCode is the normalized HTTP status; RetryAfter is a server-provided
// wait hint (zero when the server gave none).
type CallError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: API error (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: API error: status %d", e.Provider, e.StatusCode)
}

// MalformedResponseError is returned by GenerateStructured when the model's
// output cannot be parsed. It carries the raw text for diagnostics and is
// never retried; retrying the same prompt rarely helps without prompt changes.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed structured response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
