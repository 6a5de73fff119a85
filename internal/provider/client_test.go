package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(p Provider, policy RetryPolicy) (*Client, *[]time.Duration) {
	c := NewClient(p, policy, zerolog.Nop())
	waits := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return c, waits
}

func transientErr(msg string) error {
	return &CallError{Provider: "mock", StatusCode: 529, Message: msg}
}

func TestClient_Generate_Success(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "hello", InputTokens: 10, OutputTokens: 5})
	c, _ := newTestClient(mock, DefaultRetryPolicy())

	got, err := c.Generate(context.Background(), "say hello", 100, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	usage := c.Usage()
	assert.Equal(t, 1, usage.Calls)
	assert.Equal(t, 10, usage.InputTokens)
	assert.Equal(t, 5, usage.OutputTokens)
	assert.Equal(t, 15, usage.TotalTokens())
}

func TestClient_Generate_RetriesTransientThenSucceeds(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: transientErr("overloaded")},
		MockResponse{Err: transientErr("overloaded")},
		MockResponse{Err: transientErr("overloaded")},
		MockResponse{Text: "done", InputTokens: 1, OutputTokens: 1},
	)
	c, waits := newTestClient(mock, RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
	})

	got, err := c.Generate(context.Background(), "p", 0, "")
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	// Self-paced exponential: 1s, 2s, 4s.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *waits)
}

func TestClient_Generate_ExhaustsRetries(t *testing.T) {
	lastErr := transientErr("still overloaded")
	mock := NewMockProvider(
		MockResponse{Err: transientErr("overloaded")},
		MockResponse{Err: lastErr},
	)
	c, waits := newTestClient(mock, RetryPolicy{
		MaxRetries:   1,
		InitialDelay: time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
	})

	_, err := c.Generate(context.Background(), "p", 0, "")
	require.Error(t, err)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "still overloaded", callErr.Message)
	assert.Len(t, *waits, 1)
}

func TestClient_Generate_NonRetryablePropagatesImmediately(t *testing.T) {
	fatal := &CallError{Provider: "mock", StatusCode: 401, Message: "invalid x-api-key"}
	mock := NewMockProvider(MockResponse{Err: fatal})
	c, waits := newTestClient(mock, DefaultRetryPolicy())

	_, err := c.Generate(context.Background(), "p", 0, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, error(fatal))
	assert.Empty(t, *waits)
	assert.Len(t, mock.Requests(), 1)
}

func TestClient_Generate_RetryAfterHonoredExactly(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &CallError{Provider: "mock", StatusCode: 429, Message: "rate limited", RetryAfter: 7 * time.Second}},
		MockResponse{Err: transientErr("overloaded")},
		MockResponse{Text: "ok"},
	)
	c, waits := newTestClient(mock, RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
	})

	_, err := c.Generate(context.Background(), "p", 0, "")
	require.NoError(t, err)

	// The server-directed 7s wait does not advance the exponential counter:
	// the following self-paced wait is still the initial 1s delay.
	assert.Equal(t, []time.Duration{7 * time.Second, time.Second}, *waits)
}

func TestClient_Generate_MaxDelayCapsBackoff(t *testing.T) {
	script := make([]MockResponse, 0, 6)
	for i := 0; i < 5; i++ {
		script = append(script, MockResponse{Err: transientErr("overloaded")})
	}
	script = append(script, MockResponse{Text: "ok"})

	c, waits := newTestClient(NewMockProvider(script...), RetryPolicy{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	})

	_, err := c.Generate(context.Background(), "p", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second,
	}, *waits)
}

func TestClient_GenerateStructured(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "plain JSON",
			text: `{"title":"Release Notes"}`,
			want: map[string]string{"title": "Release Notes"},
		},
		{
			name: "fenced JSON",
			text: "```json\n{\"title\":\"Release Notes\"}\n```",
			want: map[string]string{"title": "Release Notes"},
		},
		{
			name: "fenced without language tag",
			text: "```\n{\"title\":\"x\"}\n```",
			want: map[string]string{"title": "x"},
		},
		{
			name:    "unparseable output",
			text:    "Sorry, I cannot help with that.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(MockResponse{Text: tt.text})
			c, _ := newTestClient(mock, DefaultRetryPolicy())

			var out map[string]string
			err := c.GenerateStructured(context.Background(), "p", "", &out)
			if tt.wantErr {
				var malformed *MalformedResponseError
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, tt.text, malformed.Raw)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestClient_GenerateStructured_NotRetried(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Text: "not json"},
		MockResponse{Text: `{"ok":true}`},
	)
	c, waits := newTestClient(mock, DefaultRetryPolicy())

	var out map[string]bool
	err := c.GenerateStructured(context.Background(), "p", "", &out)

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Empty(t, *waits)
	assert.Len(t, mock.Requests(), 1)
}

func TestClient_Validate(t *testing.T) {
	c, _ := newTestClient(NewMockProvider(MockResponse{Text: "OK"}), DefaultRetryPolicy())
	assert.NoError(t, c.Validate(context.Background()))

	failing := NewMockProvider(MockResponse{Err: &CallError{Provider: "mock", StatusCode: 401, Message: "invalid key"}})
	c, _ = newTestClient(failing, DefaultRetryPolicy())
	assert.Error(t, c.Validate(context.Background()))
}

func TestClient_Generate_ContextCancelledDuringWait(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: transientErr("overloaded")})
	c := NewClient(mock, DefaultRetryPolicy(), zerolog.Nop())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := c.Generate(context.Background(), "p", 0, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1}  "))
	assert.Equal(t, "```", stripCodeFence("```"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited status", &CallError{StatusCode: 429}, true},
		{"service unavailable status", &CallError{StatusCode: 503}, true},
		{"anthropic overloaded status", &CallError{StatusCode: 529}, true},
		{"auth failure", &CallError{StatusCode: 401, Message: "invalid x-api-key"}, false},
		{"bad request", &CallError{StatusCode: 400, Message: "max_tokens required"}, false},
		{"high demand phrase", errors.New("the model is experiencing high demand, try again later"), true},
		{"gemini overloaded phrase", &CallError{StatusCode: 500, Message: "The model is overloaded. Please try again later."}, true},
		{"missing credential", ErrMissingCredential, false},
		{"malformed response", &MalformedResponseError{Raw: "x", Err: errors.New("bad")}, false},
		{"plain error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
