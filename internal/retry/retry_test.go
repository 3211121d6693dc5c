package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/envsafe/internal/errors"
)

var errFlaky = apperrors.Wrap(apperrors.ErrTransient, "provider timeout")

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetrier_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_FirstAttempt", func(t *testing.T) {
		calls := 0
		err := New(fastPolicy(3), nil).Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Success_AfterTransientFailures", func(t *testing.T) {
		calls := 0
		err := New(fastPolicy(3), nil).Do(ctx, "op", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Error_PermanentNotRetried", func(t *testing.T) {
		permanent := apperrors.Wrap(apperrors.ErrInternal, "key deleted")
		calls := 0
		err := New(fastPolicy(3), nil).Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.Equal(t, permanent, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Error_RetriesExhausted", func(t *testing.T) {
		calls := 0
		err := New(fastPolicy(2), nil).Do(ctx, "decrypt", func(ctx context.Context) error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, apperrors.ErrTransient)
		assert.Contains(t, err.Error(), "decrypt failed after 3 attempts")
		assert.Equal(t, 3, calls)
	})

	t.Run("Error_ZeroRetries", func(t *testing.T) {
		calls := 0
		err := New(Policy{}, nil).Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 1, calls)
	})

	t.Run("Error_ContextCanceled", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		err := New(fastPolicy(5), nil).Do(cancelCtx, "op", func(ctx context.Context) error {
			return errFlaky
		})
		assert.Error(t, err)
	})
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), New(fastPolicy(2), nil), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errFlaky))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(nil))
}
