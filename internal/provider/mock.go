package provider

import (
	"context"
	"sync"
)

// MockResponse is one scripted reply of a MockProvider.
type MockResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Err          error
}

// MockProvider is a scriptable in-process backend used by tests and by the
// "mock" factory entry for offline runs. Responses are consumed in order;
// the last one repeats once the script is exhausted.
type MockProvider struct {
	model string

	mu        sync.Mutex
	responses []MockResponse
	requests  []GenerateRequest
}

// NewMockProvider creates a mock backend with the given scripted responses.
// With no script it echoes a fixed acknowledgment.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	if len(responses) == 0 {
		responses = []MockResponse{{Text: "OK", InputTokens: 1, OutputTokens: 1}}
	}
	return &MockProvider{
		model:     "mock-1",
		responses: responses,
	}
}

func (p *MockProvider) Name() string  { return "mock" }
func (p *MockProvider) Model() string { return p.model }

// Generate returns the next scripted response.
func (p *MockProvider) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)

	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &Result{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// Requests returns the requests seen so far.
func (p *MockProvider) Requests() []GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GenerateRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
