package llm

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/llm/anthropic"
	"github.com/agentic-turing/atm/pkg/llm/openai"
	"github.com/agentic-turing/atm/pkg/logger"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"internal error",
	"overloaded",
	"quota exceeded",
	"resource exhausted",
	"rate limit",
	"too many requests",
}

// IsRetryableError reports whether a failed call is worth repeating: rate
// limits, server errors, timeouts and dropped connections. Cancellation and
// empty replies are final.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, atmerr.ErrTranslation) {
		return false
	}

	status := anthropic.StatusCode(err)
	if status == 0 {
		status = openai.StatusCode(err)
	}
	if status != 0 {
		return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type retryingTranslator struct {
	next llmtypes.Translator
	cfg  config.RetryConfig
}

// WithRetry wraps t so that retryable failures are repeated according to cfg.
// Zero attempts disables retrying.
func WithRetry(t llmtypes.Translator, cfg config.RetryConfig) llmtypes.Translator {
	if cfg.Attempts <= 1 {
		return t
	}
	return &retryingTranslator{next: t, cfg: cfg}
}

func (r *retryingTranslator) Name() string {
	return r.next.Name()
}

func (r *retryingTranslator) Complete(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	initialDelay := time.Duration(r.cfg.InitialDelay) * time.Millisecond
	maxDelay := time.Duration(r.cfg.MaxDelay) * time.Millisecond

	var delayType retry.DelayTypeFunc
	switch r.cfg.BackoffType {
	case "fixed":
		delayType = retry.FixedDelay
	default:
		delayType = retry.BackOffDelay
	}

	var resp llmtypes.Response
	err := retry.Do(
		func() error {
			var callErr error
			resp, callErr = r.next.Complete(ctx, req)
			return callErr
		},
		retry.RetryIf(IsRetryableError),
		retry.Attempts(uint(r.cfg.Attempts)),
		retry.Delay(initialDelay),
		retry.DelayType(delayType),
		retry.MaxDelay(maxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithFields(logrus.Fields{
				"provider":     r.next.Name(),
				"attempt":      n + 1,
				"max_attempts": r.cfg.Attempts,
			}).Warn("retrying translator call")
		}),
	)
	if err != nil {
		return llmtypes.Response{}, err
	}
	return resp, nil
}
