package provider

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// structuredMaxTokens is the output budget for GenerateStructured calls.
const structuredMaxTokens = 4096

// validatePrompt asks for a fixed short token so a minimal round trip can
// pre-flight credentials before a long ceremony starts.
const validatePrompt = "Reply with exactly: OK"

// CallUsage is the running token and call accounting of a Client.
type CallUsage struct {
	Calls        int
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input + output.
func (u CallUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Client is the call layer: it wraps one Provider with retry/backoff
// classification and token accounting. Calls are strictly sequential; the
// client never issues overlapping requests on its own.
type Client struct {
	provider Provider
	policy   RetryPolicy
	log      zerolog.Logger

	// sleep is replaceable in tests so retry waits do not consume wall time.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	usage CallUsage
}

// NewClient creates a call-layer client over the given provider.
func NewClient(p Provider, policy RetryPolicy, log zerolog.Logger) *Client {
	return &Client{
		provider: p,
		policy:   policy,
		log:      log.With().Str("provider", p.Name()).Logger(),
		sleep:    sleepCtx,
	}
}

// Provider returns the wrapped backend.
func (c *Client) Provider() Provider {
	return c.provider
}

// Usage returns a snapshot of the accumulated token counters.
func (c *Client) Usage() CallUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Generate issues one logical generation request, retrying transient
// failures per the configured policy, and returns the text content.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, system string) (string, error) {
	res, err := c.generateWithRetry(ctx, GenerateRequest{
		Prompt:    prompt,
		System:    system,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// GenerateStructured issues a generation request and parses the response as
// JSON into out, stripping common code-fence wrapping first. A parse failure
// yields a *MalformedResponseError carrying the raw text and is not retried.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, system string, out any) error {
	res, err := c.generateWithRetry(ctx, GenerateRequest{
		Prompt:    prompt,
		System:    system,
		MaxTokens: structuredMaxTokens,
	})
	if err != nil {
		return err
	}

	raw := stripCodeFence(res.Text)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &MalformedResponseError{Raw: res.Text, Err: err}
	}
	return nil
}

// Validate performs one minimal generate call to pre-flight credentials and
// connectivity. A nil return means the provider is usable.
func (c *Client) Validate(ctx context.Context) error {
	_, err := c.generateWithRetry(ctx, GenerateRequest{
		Prompt:    validatePrompt,
		MaxTokens: 8,
	})
	return err
}

func (c *Client) generateWithRetry(ctx context.Context, req GenerateRequest) (*Result, error) {
	bo := c.policy.newBackOff()

	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := c.provider.Generate(ctx, req)
		if err == nil {
			c.recordUsage(res)
			return res, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		if attempt >= c.policy.MaxRetries {
			return nil, lastErr
		}

		// Server-directed waits are honored exactly and do not advance the
		// exponential counter; self-paced waits consume the backoff sequence.
		wait := retryAfterOf(err)
		directed := wait > 0
		if !directed {
			wait = bo.NextBackOff()
		}

		c.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Bool("server_directed", directed).
			Msg("transient provider error, retrying")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) recordUsage(res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Calls++
	c.usage.InputTokens += res.InputTokens
	c.usage.OutputTokens += res.OutputTokens
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stripCodeFence removes a single wrapping Markdown code fence, with or
// without a language tag, from the model output.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}

	// Drop the opening fence line (``` or ```json) and a closing fence line.
	lines = lines[1:]
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			lines = append(lines[:i], lines[i+1:]...)
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
