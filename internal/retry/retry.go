// Package retry provides backoff retry and fixed-interval polling for
// transient conditions, with context cancellation support.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config defines the retry behavior for exponential backoff operations.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the maximum number of attempts. Must be greater than 0.
	MaxRetries int

	// InitialBackoff is the base backoff duration. Each retry multiplies
	// this by 2^(attempt-1). Must be greater than 0.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds randomness to backoff (0.0 to 1.0). The jitter amount
	// increases linearly with attempt number. Zero means no jitter.
	Jitter float64
}

// ShouldRetryFunc decides whether an error should trigger a retry.
// If nil is passed to Do, all errors are retried.
type ShouldRetryFunc func(error) bool

// Do executes fn with exponential backoff retry.
//
// fn is called up to cfg.MaxRetries times. A nil return stops immediately.
// If shouldRetry returns false the last error is returned as-is; when all
// attempts are exhausted the last error is wrapped with the attempt count.
// Context cancellation during a backoff period aborts with the context error.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(cfg, attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Poll invokes cond at a fixed interval until it reports done, returns an
// error, or ctx is cancelled. The first check happens immediately. Unlike Do,
// Poll has no attempt bound: callers needing one must bound ctx.
func Poll(ctx context.Context, interval time.Duration, cond func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// calculateBackoff computes the backoff duration for a given attempt:
// InitialBackoff * 2^(attempt-1), capped at MaxBackoff, plus optional jitter
// growing linearly with the attempt number.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt-1))

	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	if cfg.Jitter > 0 && cfg.MaxRetries > 0 {
		amount := backoff * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries)
		backoff += rand.Float64() * amount //nolint:gosec // G404: jitter needs no crypto randomness.
	}

	return time.Duration(backoff)
}
