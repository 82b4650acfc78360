// Package retry re-runs operations that failed with a TRANSIENT error.
package retry

import (
	"context"
	apperrors "slotkeeper/pkg/errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultAttempts = 3

type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:        DefaultAttempts,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do calls fn until it succeeds, fails with a non-retryable error or the attempts run out.
// The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil || apperrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
}

// Value is Do for operations returning a result.
func Value[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
