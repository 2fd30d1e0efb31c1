package controller

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// #region backoff
// newBackOff builds the outer retry policy: exponential intervals, at most
// MaxAttempts attempts in total, stopped early by ctx.
func newBackOff(ctx context.Context, cfg RetryConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0 // attempts bound the retry, not wall time
	b.Reset()

	retries := uint64(0)
	if cfg.MaxAttempts > 1 {
		retries = uint64(cfg.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// #endregion backoff

// #region should-retry
// shouldRetry reports whether a failed attempt may be retried. Cancellation
// belongs to the caller and is never retried.
func shouldRetry(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// classify wraps non-retryable errors so backoff stops immediately.
func classify(ctx context.Context, err error) error {
	if err == nil || shouldRetry(ctx, err) {
		return err
	}
	return backoff.Permanent(err)
}

// #endregion should-retry

// #region timeout
// withCallTimeout bounds one external call. A zero timeout leaves ctx as is.
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// #endregion timeout
