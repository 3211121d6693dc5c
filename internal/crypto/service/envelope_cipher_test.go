package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	apperrors "github.com/allisson/envsafe/internal/errors"
)

func TestEnvelopeCipher_SealOpen(t *testing.T) {
	envelope := NewEnvelopeCipher(NewAEADManager())
	key := randomKey(t)
	aad := []byte("project:0190a6f4-0000-7000-8000-000000000001")

	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			sealed, err := envelope.Seal(key, alg, []byte("s3cr3t"), aad)
			require.NoError(t, err)

			payload, err := cryptoDomain.ParseSealedPayload(sealed)
			require.NoError(t, err)
			assert.Equal(t, alg, payload.Algorithm)

			plaintext, err := envelope.Open(key, sealed, aad)
			require.NoError(t, err)
			assert.Equal(t, []byte("s3cr3t"), plaintext)
		})
	}
}

func TestEnvelopeCipher_OpenFailures(t *testing.T) {
	envelope := NewEnvelopeCipher(NewAEADManager())
	key := randomKey(t)
	sealed, err := envelope.Seal(key, cryptoDomain.AESGCM, []byte("value"), []byte("aad"))
	require.NoError(t, err)

	t.Run("every flipped byte is detected", func(t *testing.T) {
		for i := range sealed {
			tampered := append([]byte(nil), sealed...)
			tampered[i] ^= 0x01

			_, err := envelope.Open(key, tampered, []byte("aad"))
			require.Error(t, err, "byte %d", i)
			assert.ErrorIs(t, err, cryptoDomain.ErrEncryption, "byte %d", i)
			assert.NotErrorIs(t, err, apperrors.ErrNotFound)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := envelope.Open(randomKey(t), sealed, []byte("aad"))
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("wrong aad", func(t *testing.T) {
		_, err := envelope.Open(key, sealed, []byte("other"))
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := envelope.Open(key, sealed[:4], []byte("aad"))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSealedBlob)
	})

	t.Run("unsupported algorithm on seal", func(t *testing.T) {
		_, err := envelope.Seal(key, "rc4", []byte("value"), nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
	})
}
