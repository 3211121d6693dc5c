package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

type mockKMSService struct {
	mock.Mock
}

func (m *mockKMSService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	args := m.Called(ctx, keyURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(cryptoDomain.KMSKeeper), args.Error(1)
}

type mockKMSKeeper struct {
	mock.Mock
}

func (m *mockKMSKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKMSKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKMSKeeper) Close() error {
	return m.Called().Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCreateMasterKey(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("success-kms", func(t *testing.T) {
		mockService := &mockKMSService{}
		mockKeeper := &mockKMSKeeper{}

		mockService.On("OpenKeeper", ctx, "base64key://...").Return(mockKeeper, nil)
		mockKeeper.On("Encrypt", ctx, mock.MatchedBy(func(key []byte) bool {
			return len(key) == 32
		})).Return([]byte("encrypted"), nil)
		mockKeeper.On("Close").Return(nil)

		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, mockService, logger, &out, "test-key", "localsecrets", "base64key://...")
		require.NoError(t, err)
		require.Contains(t, out.String(), "KMS_PROVIDER=\"localsecrets\"")
		require.Contains(t, out.String(), "MASTER_KEYS=\"test-key:ZW5jcnlwdGVk\"")
		require.Contains(t, out.String(), "ACTIVE_MASTER_KEY_ID=\"test-key\"")

		mockService.AssertExpectations(t)
		mockKeeper.AssertExpectations(t)
	})

	t.Run("success-plaintext", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, nil, logger, &out, "dev-key", "", "")
		require.NoError(t, err)
		require.Contains(t, out.String(), "WARNING: plaintext master key")
		require.NotContains(t, out.String(), "KMS_PROVIDER")

		match := regexp.MustCompile(`MASTER_KEYS="dev-key:([^"]+)"`).FindStringSubmatch(out.String())
		require.Len(t, match, 2)
		key, err := base64.StdEncoding.DecodeString(match[1])
		require.NoError(t, err)
		require.Len(t, key, 32)
	})

	t.Run("default-key-id", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, nil, logger, &out, "", "", "")
		require.NoError(t, err)
		require.Regexp(t, `ACTIVE_MASTER_KEY_ID="master-key-\d{4}-\d{2}-\d{2}"`, out.String())
	})

	t.Run("partial-kms-parameters", func(t *testing.T) {
		err := RunCreateMasterKey(ctx, nil, logger, &bytes.Buffer{}, "", "localsecrets", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be set together")
	})

	t.Run("kms-open-error", func(t *testing.T) {
		mockService := &mockKMSService{}
		mockService.On("OpenKeeper", ctx, "invalid").Return(nil, errors.New("kms error"))

		err := RunCreateMasterKey(ctx, mockService, logger, &bytes.Buffer{}, "test-key", "localsecrets", "invalid")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to open KMS keeper")
	})

	t.Run("kms-encrypt-error", func(t *testing.T) {
		mockService := &mockKMSService{}
		mockKeeper := &mockKMSKeeper{}

		mockService.On("OpenKeeper", ctx, "base64key://...").Return(mockKeeper, nil)
		mockKeeper.On("Encrypt", ctx, mock.Anything).Return(nil, errors.New("throttled"))
		mockKeeper.On("Close").Return(nil)

		err := RunCreateMasterKey(ctx, mockService, logger, &bytes.Buffer{}, "test-key", "localsecrets", "base64key://...")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to encrypt master key with KMS")
		mockKeeper.AssertExpectations(t)
	})
}
