package util

import (
	"context"
	"errors"
	"time"
)

// RetryOption tunes the retry helpers.
type RetryOption func(*retryConfig)

type retryConfig struct {
	backoff time.Duration
	retryIf func(error) bool
}

// WithBackoff waits d before the second attempt and doubles the wait for
// every following attempt.
func WithBackoff(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.backoff = d
	}
}

// RetryIf stops retrying as soon as fn reports false for an error.
func RetryIf(fn func(error) bool) RetryOption {
	return func(c *retryConfig) {
		c.retryIf = fn
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error), opts ...RetryOption) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var cfg retryConfig
	for _, o := range opts {
		o(&cfg)
	}

	var lastErr error
	var zero T
	delay := cfg.backoff
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			if err := wait(ctx, delay); err != nil {
				return zero, err
			}
			delay *= 2
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
		if cfg.retryIf != nil && !cfg.retryIf(err) {
			break
		}
	}
	return zero, lastErr
}
