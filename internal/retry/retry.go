// Package retry retries operations that failed with a transient error using
// bounded exponential backoff. Every other error is returned immediately.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/allisson/envsafe/internal/errors"
)

// Policy bounds how many times and how fast an operation is retried.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
	logger *slog.Logger
}

// New creates a Retrier. A zero MaxRetries disables retries.
func New(policy Policy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{policy: policy, logger: logger}
}

// IsTransient reports whether err may succeed when the operation is repeated.
func IsTransient(err error) bool {
	return apperrors.Is(err, apperrors.ErrTransient)
}

// Do runs fn until it succeeds, fails with a non-transient error, the context is
// done, or the retry budget is spent.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := backoff.RetryNotify(
		func() error {
			attempts++
			err := fn(ctx)
			if err == nil {
				return nil
			}
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(max(r.policy.MaxRetries, 0))), ctx),
		func(err error, next time.Duration) {
			r.logger.Warn("transient failure, retrying",
				slog.String("operation", operation),
				slog.Int("attempt", attempts),
				slog.Duration("backoff", next),
				slog.Any("error", err),
			)
		},
	)
	if err != nil && IsTransient(err) && attempts > 1 {
		return apperrors.Wrapf(err, "%s failed after %d attempts", operation, attempts)
	}
	return err
}

// Value is Do for operations that return a result.
func Value[T any](
	ctx context.Context,
	r *Retrier,
	operation string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	err := r.Do(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (r *Retrier) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	// The retry count is the bound, not wall-clock time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
