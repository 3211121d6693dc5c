package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"

	"github.com/allisson/envsafe/internal/config"
	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// generateLocalSecretsURI generates a base64key:// URI for testing.
func generateLocalSecretsURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKMSService_OpenKeeper(t *testing.T) {
	ctx := context.Background()
	kmsService := NewKMSService()

	t.Run("Success_LocalSecrets", func(t *testing.T) {
		keeper, err := kmsService.OpenKeeper(ctx, generateLocalSecretsURI(t))
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, keeper.Close())
		}()

		_, ok := keeper.(*secrets.Keeper)
		assert.True(t, ok, "keeper should be *secrets.Keeper")

		ciphertext, err := keeper.Encrypt(ctx, []byte("root key"))
		require.NoError(t, err)
		plaintext, err := keeper.Decrypt(ctx, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, []byte("root key"), plaintext)
	})

	t.Run("Error_InvalidURI", func(t *testing.T) {
		keeper, err := kmsService.OpenKeeper(ctx, "invalid://uri")
		assert.Error(t, err)
		assert.Nil(t, keeper)
		assert.Contains(t, err.Error(), "failed to open KMS keeper")
	})
}

func TestLoadMasterKeyChain(t *testing.T) {
	ctx := context.Background()
	kmsService := NewKMSService()
	rawKey := randomKey(t)

	t.Run("Success_Plaintext", func(t *testing.T) {
		cfg := &config.Config{
			MasterKeys:        "k1:" + base64.StdEncoding.EncodeToString(rawKey),
			ActiveMasterKeyID: "k1",
		}
		chain, err := LoadMasterKeyChain(ctx, cfg, kmsService, discardLogger())
		require.NoError(t, err)
		defer chain.Close()

		mk, ok := chain.Get("k1")
		require.True(t, ok)
		assert.Equal(t, rawKey, mk.Key)
	})

	t.Run("Success_KMSEncrypted", func(t *testing.T) {
		uri := generateLocalSecretsURI(t)
		keeper, err := kmsService.OpenKeeper(ctx, uri)
		require.NoError(t, err)
		encrypted, err := keeper.Encrypt(ctx, rawKey)
		require.NoError(t, err)
		require.NoError(t, keeper.Close())

		cfg := &config.Config{
			MasterKeys:        "k1:" + base64.StdEncoding.EncodeToString(encrypted),
			ActiveMasterKeyID: "k1",
			KMSProvider:       "localsecrets",
			KMSKeyURI:         uri,
		}
		chain, err := LoadMasterKeyChain(ctx, cfg, kmsService, discardLogger())
		require.NoError(t, err)
		defer chain.Close()

		mk, ok := chain.Get("k1")
		require.True(t, ok)
		assert.Equal(t, rawKey, mk.Key)
	})

	t.Run("Error_KMSWithoutURI", func(t *testing.T) {
		cfg := &config.Config{MasterKeys: "k1:AAAA", ActiveMasterKeyID: "k1", KMSProvider: "localsecrets"}
		_, err := LoadMasterKeyChain(ctx, cfg, kmsService, discardLogger())
		assert.Error(t, err)
	})

	t.Run("Error_NotSet", func(t *testing.T) {
		_, err := LoadMasterKeyChain(ctx, &config.Config{}, kmsService, discardLogger())
		assert.ErrorIs(t, err, cryptoDomain.ErrMasterKeysNotSet)
	})
}

func TestNewRootCustodian(t *testing.T) {
	ctx := context.Background()
	kmsService := NewKMSService()
	envelope := NewEnvelopeCipher(NewAEADManager())

	t.Run("master key custodian", func(t *testing.T) {
		cfg := &config.Config{
			RootCustodian:     config.RootCustodianMasterKey,
			MasterKeys:        "k1:" + base64.StdEncoding.EncodeToString(randomKey(t)),
			ActiveMasterKeyID: "k1",
			KeyAlgorithm:      "aes-gcm",
		}
		custodian, err := NewRootCustodian(ctx, cfg, kmsService, envelope, discardLogger())
		require.NoError(t, err)
		defer func() { _ = custodian.Close() }()
		assert.IsType(t, &MasterKeyCustodian{}, custodian)
	})

	t.Run("kms custodian", func(t *testing.T) {
		cfg := &config.Config{
			RootCustodian: config.RootCustodianKMS,
			KMSProvider:   "localsecrets",
			KMSKeyURI:     generateLocalSecretsURI(t),
			KeyAlgorithm:  "aes-gcm",
		}
		custodian, err := NewRootCustodian(ctx, cfg, kmsService, envelope, discardLogger())
		require.NoError(t, err)
		defer func() { _ = custodian.Close() }()
		assert.IsType(t, &KeeperCustodian{}, custodian)

		key := randomKey(t)
		ref, blob, err := custodian.Wrap(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "localsecrets", ref)
		unwrapped, err := custodian.Unwrap(ctx, ref, blob)
		require.NoError(t, err)
		assert.Equal(t, key, unwrapped)
	})

	t.Run("unsupported custodian", func(t *testing.T) {
		cfg := &config.Config{RootCustodian: "hsm", KeyAlgorithm: "aes-gcm"}
		_, err := NewRootCustodian(ctx, cfg, kmsService, envelope, discardLogger())
		assert.Error(t, err)
	})

	t.Run("invalid algorithm", func(t *testing.T) {
		cfg := &config.Config{RootCustodian: config.RootCustodianMasterKey, KeyAlgorithm: "des"}
		_, err := NewRootCustodian(ctx, cfg, kmsService, envelope, discardLogger())
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
	})
}
