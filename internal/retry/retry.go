package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/firetrends/internal/metrics"
)

const (
	DefaultAttempts = 5
	DefaultInterval = 30 * time.Second
)

// Policy is a fixed number of attempts separated by a fixed wait.
type Policy struct {
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger
}

func DefaultPolicy(logger *slog.Logger) Policy {
	return Policy{Attempts: DefaultAttempts, Interval: DefaultInterval, Logger: logger}
}

// Do runs op until it succeeds, returns a backoff.Permanent error, the context
// is done, or the attempts run out. The last error is returned wrapped with the
// operation name and attempt count.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		return op(ctx)
	}
	notify := func(err error, wait time.Duration) {
		metrics.RetryAttempts.WithLabelValues(name).Inc()
		logger.Warn("retry: attempt failed, re-trying", "operation", name, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && attempt < attempts {
			return fmt.Errorf("%s: %w", name, ctxErr)
		}
		return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	return nil
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
