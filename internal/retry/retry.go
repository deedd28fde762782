// Package retry runs an operation again after transient failures, with
// exponential backoff between attempts.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts includes the first try. Default: 3.
	MaxAttempts int
	// InitialDelay is the wait after the first failure. Default: 250ms.
	InitialDelay time.Duration
	// MaxDelay caps the backoff. Default: 10s.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// nil retries everything.
	Retryable func(error) bool
}

// DefaultConfig returns the standard backoff settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// Do runs op until it succeeds, exhausts attempts, hits a non-retryable
// error, or the context ends. The returned error is op's last error.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err = op(ctx); err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		// Full jitter keeps concurrent retries from synchronizing.
		wait := time.Duration(rand.Int63n(int64(delay)) + 1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
