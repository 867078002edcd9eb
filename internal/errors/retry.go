package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig shapes the exponential backoff schedule.
type RetryConfig struct {
	// MaxRetries counts retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the growing delay.
	MaxDelay time.Duration

	// Multiplier scales the delay after every retry.
	Multiplier float64

	// Jitter randomizes delays to spread out concurrent retriers.
	Jitter bool
}

// DefaultRetryConfig is the schedule provider clients use.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryWithResult runs fn under the backoff schedule until it succeeds, a
// non-retryable AskError surfaces, the budget runs out, or ctx is done.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		if result, err = fn(); err == nil {
			return result, nil
		}
		lastErr = err

		var ae *AskError
		if errors.As(err, &ae) && !ae.Retryable {
			return result, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := delay
		if cfg.Jitter {
			// Scale into [0.5, 1.0) of the nominal delay
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}

		if delay = time.Duration(float64(delay) * cfg.Multiplier); delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return result, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Retry is RetryWithResult for functions without a return value.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
