package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.0-flash"
)

// GeminiProvider implements Provider for the Gemini generateContent API.
// Gemini reports usage under usageMetadata with camelCase field names; the
// shared normalization table maps them onto the common counters.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGeminiProvider creates a new Gemini provider. An empty model selects
// DefaultGeminiModel.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

// Generate issues a single generateContent call.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	apiReq := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.System != "" {
		apiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		apiReq.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Classify on status before decoding; overload responses from
	// intermediaries are not always the API's JSON error envelope.
	if httpResp.StatusCode != http.StatusOK {
		var apiResp geminiResponse
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

	var apiResp geminiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var parts []string
	if len(apiResp.Candidates) > 0 {
		for _, part := range apiResp.Candidates[0].Content.Parts {
			parts = append(parts, part.Text)
		}
	}
	inputTokens, outputTokens := tokensFromUsage(apiResp.UsageMetadata)

	return &Result{
		Text:         strings.Join(parts, ""),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata map[string]any    `json:"usageMetadata"`
	Error         geminiError       `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
