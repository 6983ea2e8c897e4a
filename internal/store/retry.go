package store

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/metrics"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how conflicts are retried.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
}

// DefaultRetryPolicy is used by Retry.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Base: 10 * time.Millisecond}

// Retry runs fn, retrying with exponential backoff while it fails with
// ErrConflict. Any other error is returned immediately. When attempts run
// out the last conflict is returned.
func Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return RetryWith(ctx, DefaultRetryPolicy, op, fn)
}

// RetryWith is Retry with an explicit policy.
func RetryWith(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(p.Base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrConflict) {
			metrics.StoreConflicts.WithLabelValues(op).Inc()
			return retry.RetryableError(err)
		}
		return err
	})
}
