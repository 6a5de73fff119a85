package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"

	// DefaultAnthropicModel is used when no model is configured.
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

	anthropicDefaultMaxTokens = 1024
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider. An empty model
// selects DefaultAnthropicModel.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{
		apiKey: apiKey,
		apiURL: anthropicAPIURL,
		model:  model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

// Generate issues a single Messages API call.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	apiReq := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// The status code classifies the failure before anything is decoded:
	// gateways answer 429/503 with HTML or plain text rather than the API's
	// JSON error envelope.
	if httpResp.StatusCode != http.StatusOK {
		var apiResp anthropicResponse
		msg := ""
		if json.Unmarshal(raw, &apiResp) == nil {
			msg = apiResp.Error.Message
		}
		if msg == "" {
			msg = errorBodyMessage(raw, httpResp.StatusCode)
		}
		return nil, &CallError{
			Provider:   p.Name(),
			StatusCode: httpResp.StatusCode,
			Message:    msg,
			RetryAfter: retryAfterHeader(httpResp),
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text string
	if len(apiResp.Content) > 0 {
		text = apiResp.Content[0].Text
	}
	inputTokens, outputTokens := tokensFromUsage(apiResp.Usage)

	return &Result{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// errorBodyMessage turns a non-JSON error body into a short message, falling
// back to the status text when the body is empty.
func errorBodyMessage(raw []byte, statusCode int) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return http.StatusText(statusCode)
	}
	return s
}

// retryAfterHeader parses a Retry-After header given in whole seconds.
func retryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      map[string]any          `json:"usage"`
	Error      anthropicError          `json:"error,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
