package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/gcerrors"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	apperrors "github.com/allisson/envsafe/internal/errors"
)

// stubKeeper is a KMSKeeper whose calls can be made to block or fail.
type stubKeeper struct {
	encryptErr error
	decryptErr error
	block      bool
	closed     bool
}

func (s *stubKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.encryptErr != nil {
		return nil, s.encryptErr
	}
	return append([]byte("wrapped:"), plaintext...), nil
}

func (s *stubKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.decryptErr != nil {
		return nil, s.decryptErr
	}
	return ciphertext[len("wrapped:"):], nil
}

func (s *stubKeeper) Close() error {
	s.closed = true
	return nil
}

func TestMasterKeyCustodian(t *testing.T) {
	ctx := context.Background()
	envelope := NewEnvelopeCipher(NewAEADManager())
	chain := cryptoDomain.NewMasterKeyChain("new")
	require.NoError(t, chain.Add("old", randomKey(t)))
	require.NoError(t, chain.Add("new", randomKey(t)))
	custodian := NewMasterKeyCustodian(chain, envelope, cryptoDomain.AESGCM)

	key := randomKey(t)
	ref, blob, err := custodian.Wrap(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "new", ref)

	unwrapped, err := custodian.Unwrap(ctx, ref, blob)
	require.NoError(t, err)
	assert.Equal(t, key, unwrapped)

	t.Run("reference is bound to the blob", func(t *testing.T) {
		_, err := custodian.Unwrap(ctx, "old", blob)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("missing master key is unavailable, not found", func(t *testing.T) {
		_, err := custodian.Unwrap(ctx, "gone", blob)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyUnavailable)
		assert.ErrorIs(t, err, apperrors.ErrInternal)
		assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := custodian.Wrap(canceled, key)
		assert.ErrorIs(t, err, cryptoDomain.ErrTransientProvider)
	})

	t.Run("close zeroes the chain", func(t *testing.T) {
		require.NoError(t, custodian.Close())
		_, err := custodian.Unwrap(ctx, ref, blob)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyUnavailable)
	})
}

func TestKeeperCustodian(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		keeper := &stubKeeper{}
		custodian := NewKeeperCustodian(keeper, "gcpkms", time.Second)

		ref, blob, err := custodian.Wrap(ctx, []byte("key"))
		require.NoError(t, err)
		assert.Equal(t, "gcpkms", ref)

		key, err := custodian.Unwrap(ctx, ref, blob)
		require.NoError(t, err)
		assert.Equal(t, []byte("key"), key)

		require.NoError(t, custodian.Close())
		assert.True(t, keeper.closed)
	})

	t.Run("foreign reference", func(t *testing.T) {
		custodian := NewKeeperCustodian(&stubKeeper{}, "gcpkms", time.Second)
		_, err := custodian.Unwrap(ctx, "awskms", []byte("wrapped:key"))
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyUnavailable)
	})

	t.Run("timeout is transient", func(t *testing.T) {
		custodian := NewKeeperCustodian(&stubKeeper{block: true}, "gcpkms", 10*time.Millisecond)

		start := time.Now()
		_, err := custodian.Unwrap(ctx, "gcpkms", []byte("wrapped:key"))
		assert.ErrorIs(t, err, cryptoDomain.ErrTransientProvider)
		assert.ErrorIs(t, err, apperrors.ErrTransient)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("unknown provider failure is transient", func(t *testing.T) {
		custodian := NewKeeperCustodian(&stubKeeper{encryptErr: errors.New("connection reset")}, "gcpkms", time.Second)
		_, _, err := custodian.Wrap(ctx, []byte("key"))
		assert.ErrorIs(t, err, cryptoDomain.ErrTransientProvider)
	})
}

func TestKeeperErrorClassification(t *testing.T) {
	cause := errors.New("provider said no")

	tests := []struct {
		code gcerrors.ErrorCode
		want error
	}{
		{code: gcerrors.NotFound, want: cryptoDomain.ErrKeyUnavailable},
		{code: gcerrors.PermissionDenied, want: cryptoDomain.ErrKeyUnavailable},
		{code: gcerrors.FailedPrecondition, want: cryptoDomain.ErrKeyUnavailable},
		{code: gcerrors.InvalidArgument, want: cryptoDomain.ErrKeyUnavailable},
		{code: gcerrors.Unimplemented, want: cryptoDomain.ErrKeyUnavailable},
		{code: gcerrors.DeadlineExceeded, want: cryptoDomain.ErrTransientProvider},
		{code: gcerrors.ResourceExhausted, want: cryptoDomain.ErrTransientProvider},
		{code: gcerrors.Internal, want: cryptoDomain.ErrTransientProvider},
		{code: gcerrors.Unknown, want: cryptoDomain.ErrTransientProvider},
		{code: gcerrors.Canceled, want: cryptoDomain.ErrTransientProvider},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := keeperError(tt.code, cause)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, apperrors.ErrNotFound)
			assert.Contains(t, err.Error(), "provider said no")
		})
	}
}
