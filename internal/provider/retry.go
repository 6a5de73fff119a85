package provider

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the retry engine. Immutable after construction.
type RetryPolicy struct {
	MaxRetries   int           // retries after the initial attempt
	InitialDelay time.Duration // first self-paced backoff delay
	MaxDelay     time.Duration // cap for self-paced delays
	Multiplier   float64       // exponential growth factor
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
	}
}

// transientStatusCodes is the normalized set of retryable statuses:
// rate-limited, service-unavailable, and Anthropic's 529 "overloaded".
var transientStatusCodes = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
	529:                           true,
}

// transientPhrases match providers that only return a generic "busy" signal
// in the error message rather than a dedicated status code.
var transientPhrases = []string{
	"overloaded",
	"high demand",
	"try again later",
	"temporarily unavailable",
	"rate limit",
	"resource has been exhausted",
}

// IsRetryable classifies an error as transient. Configuration and
// malformed-response errors are always fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredential) {
		return false
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}

	msg := err.Error()
	var callErr *CallError
	if errors.As(err, &callErr) {
		if transientStatusCodes[callErr.StatusCode] {
			return true
		}
		msg = callErr.Message
	}

	lower := strings.ToLower(msg)
	for _, phrase := range transientPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// retryAfterOf extracts a server-provided wait hint, or zero.
func retryAfterOf(err error) time.Duration {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.RetryAfter
	}
	return 0
}

// newBackOff builds the self-paced delay source for one call. Randomization
// is disabled so the delay sequence is exactly
// initialDelay * multiplier^attempt, capped at maxDelay.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialDelay
	bo.MaxInterval = p.MaxDelay
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxRetries, not wall clock
	bo.Reset()
	return bo
}
