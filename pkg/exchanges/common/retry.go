package common

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy retries retryable APIErrors with linear backoff:
// Backoff*(attempt+1) between attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is two extra attempts at 0.5s, 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() || attempt == p.MaxRetries {
			return err
		}
		if serr := sleep(ctx, p.Backoff*time.Duration(attempt+1)); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
