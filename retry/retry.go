// Package retry runs remote store operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fwojciec/hcf"
)

// Policy bounds the retries of one operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the wait between two attempts.
	MaxInterval time.Duration
	// Timeout bounds all attempts together. Zero means no overall timeout.
	Timeout time.Duration
}

// DefaultPolicy returns 5 attempts starting at 500ms, capped at 30s between
// attempts and 2m overall.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Timeout:         2 * time.Minute,
	}
}

// NotifyFunc is called after a failed attempt that will be retried.
type NotifyFunc func(err error, attempt int, wait time.Duration)

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx is done. It returns the last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify NotifyFunc) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	var (
		attempt int
		lastErr error
	)
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !hcf.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempt, wait)
		}
	})
	if err != nil && lastErr != nil && err != lastErr && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", lastErr, err)
	}
	return err
}
