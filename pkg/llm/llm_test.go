package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "  Bonjour le monde  ", "Bonjour le monde"},
		{"code fence", "```\nBonjour\n```", "Bonjour"},
		{"code fence with language", "```text\nBonjour\n```", "Bonjour"},
		{"triple quotes", `"""Bonjour"""`, "Bonjour"},
		{"double quotes", `"Bonjour"`, "Bonjour"},
		{"guillemets", "« Bonjour »", "Bonjour"},
		{"inner quotes kept", `"a" and "b"`, `"a" and "b"`},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanOutput(tt.input))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", errors.Wrap(context.DeadlineExceeded, "call"), false},
		{"empty reply", atmerr.New(atmerr.KindTranslation, "empty", nil), false},
		{"rate limit text", fmt.Errorf("429 Too Many Requests"), true},
		{"overloaded", fmt.Errorf("anthropic: Overloaded"), true},
		{"connection reset", fmt.Errorf("read tcp: connection reset by peer"), true},
		{"net timeout", timeoutErr{}, true},
		{"bad request", fmt.Errorf("invalid model"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func fastRetry(attempts int) config.RetryConfig {
	return config.RetryConfig{Attempts: attempts, InitialDelay: 1, MaxDelay: 2, BackoffType: "fixed"}
}

func TestWithRetry(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		var calls int32
		inner := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return llmtypes.Response{}, fmt.Errorf("service unavailable")
			}
			return llmtypes.Response{Text: "ok"}, nil
		})

		resp, err := WithRetry(inner, fastRetry(3)).Complete(context.Background(), llmtypes.Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text)
		assert.EqualValues(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		var calls int32
		inner := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
			atomic.AddInt32(&calls, 1)
			return llmtypes.Response{}, fmt.Errorf("invalid request")
		})

		_, err := WithRetry(inner, fastRetry(5)).Complete(context.Background(), llmtypes.Request{})
		require.Error(t, err)
		assert.EqualValues(t, 1, calls)
		assert.Equal(t, "invalid request", err.Error())
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		var calls int32
		inner := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
			atomic.AddInt32(&calls, 1)
			return llmtypes.Response{}, fmt.Errorf("rate limit")
		})

		_, err := WithRetry(inner, fastRetry(2)).Complete(context.Background(), llmtypes.Request{})
		require.Error(t, err)
		assert.EqualValues(t, 2, calls)
	})

	t.Run("single attempt is passthrough", func(t *testing.T) {
		inner := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
			return llmtypes.Response{}, nil
		})
		assert.Equal(t, "func", WithRetry(inner, fastRetry(1)).Name())
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), &config.Config{Provider: "mistral"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, atmerr.ErrConfiguration))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), &config.Config{Provider: "anthropic"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, atmerr.ErrConfiguration))
		assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	})

	for _, provider := range []string{"anthropic", "openai"} {
		t.Run(provider, func(t *testing.T) {
			cfg := &config.Config{Provider: provider, Retry: config.DefaultRetryConfig}
			cfg.APIKeys = config.APIKeys{Anthropic: "a", OpenAI: "o"}

			tr, err := NewFromConfig(context.Background(), cfg)
			require.NoError(t, err)
			assert.Equal(t, provider, tr.Name())
		})
	}
}

