// Package retry provides bounded, cancellable retry and polling combinators.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrBudgetExhausted is returned by Poll when the attempt budget runs out
// before the condition is met. The true outcome is unknown, not negative.
var ErrBudgetExhausted = errors.New("retry: attempt budget exhausted")

// Config holds retry behavior for WithRetry.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier scales the delay after each attempt.
	Multiplier float64
}

// WithRetry runs fn up to cfg.MaxAttempts times, sleeping with exponential
// backoff between attempts. A retry happens only when retryable returns true
// for the error; other errors are returned immediately. The context cancels
// the wait between attempts.
func WithRetry[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			if cfg.Multiplier > 1 {
				delay = time.Duration(float64(delay) * cfg.Multiplier)
			}
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

// Poll calls fn immediately and then once per interval until fn reports done,
// fn returns an error, the context is cancelled, or maxAttempts calls have
// been made. Exhaustion returns ErrBudgetExhausted so callers can tell
// "unknown" apart from a negative result.
func Poll(ctx context.Context, interval time.Duration, maxAttempts int, fn func(context.Context) (bool, error)) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	return ErrBudgetExhausted
}
