// Package retry wraps single operations with bounded exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy retries an operation up to MaxAttempts times. The first attempt runs
// immediately, attempt n waits BaseDelay*2^(n-2). MaxDelay caps a single wait
// when set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides which errors are worth another attempt. Nil retries
	// every error.
	Retryable func(error) bool

	Logger *slog.Logger
}

// Do runs fn until it succeeds, returns a non-retryable error or the attempts
// run out. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	b = retry.WithMaxRetries(uint64(attempts-1), b)

	var (
		attempt int
		lastErr error
	)
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if !stop && p.Logger != nil {
			p.Logger.WarnContext(ctx, "operation failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"retry_in", d,
				"error", lastErr,
			)
		}
		return d, stop
	})

	return retry.Do(ctx, next, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err
		return retry.RetryableError(err)
	})
}
