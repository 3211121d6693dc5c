package service

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cryptoDomain.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestAEADCiphers(t *testing.T) {
	constructors := map[string]func([]byte) (AEAD, error){
		"aes-gcm": func(key []byte) (AEAD, error) { return NewAESGCM(key) },
		"chacha20-poly1305": func(key []byte) (AEAD, error) {
			return NewChaCha20Poly1305(key)
		},
	}

	for name, newCipher := range constructors {
		t.Run(name, func(t *testing.T) {
			key := randomKey(t)
			aead, err := newCipher(key)
			require.NoError(t, err)

			t.Run("round trip with AAD", func(t *testing.T) {
				plaintext := []byte("postgres://prod:hunter2@db")
				aad := []byte("project:1")

				ciphertext, nonce, err := aead.Encrypt(plaintext, aad)
				require.NoError(t, err)
				assert.Len(t, nonce, 12)
				assert.Len(t, ciphertext, len(plaintext)+cryptoDomain.TagSize)

				decrypted, err := aead.Decrypt(ciphertext, nonce, aad)
				require.NoError(t, err)
				assert.Equal(t, plaintext, decrypted)
			})

			t.Run("empty plaintext", func(t *testing.T) {
				ciphertext, nonce, err := aead.Encrypt(nil, nil)
				require.NoError(t, err)
				decrypted, err := aead.Decrypt(ciphertext, nonce, nil)
				require.NoError(t, err)
				assert.Empty(t, decrypted)
			})

			t.Run("fresh nonce per call", func(t *testing.T) {
				c1, n1, err := aead.Encrypt([]byte("same"), nil)
				require.NoError(t, err)
				c2, n2, err := aead.Encrypt([]byte("same"), nil)
				require.NoError(t, err)
				assert.NotEqual(t, n1, n2)
				assert.NotEqual(t, c1, c2)
			})

			t.Run("wrong AAD fails", func(t *testing.T) {
				ciphertext, nonce, err := aead.Encrypt([]byte("value"), []byte("a"))
				require.NoError(t, err)
				_, err = aead.Decrypt(ciphertext, nonce, []byte("b"))
				assert.Error(t, err)
			})

			t.Run("tampered ciphertext fails", func(t *testing.T) {
				ciphertext, nonce, err := aead.Encrypt([]byte("value"), nil)
				require.NoError(t, err)
				ciphertext[0] ^= 0xFF
				_, err = aead.Decrypt(ciphertext, nonce, nil)
				assert.Error(t, err)
			})

			t.Run("wrong nonce size fails", func(t *testing.T) {
				ciphertext, _, err := aead.Encrypt([]byte("value"), nil)
				require.NoError(t, err)
				_, err = aead.Decrypt(ciphertext, []byte("short"), nil)
				assert.Error(t, err)
			})

			t.Run("invalid key size", func(t *testing.T) {
				for _, size := range []int{0, 16, 24, 64} {
					c, err := newCipher(bytes.Repeat([]byte{1}, size))
					assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
					assert.Nil(t, c)
				}
			})
		})
	}
}

func TestAEADManagerService_CreateCipher(t *testing.T) {
	manager := NewAEADManager()
	key := randomKey(t)

	t.Run("create AES-GCM cipher", func(t *testing.T) {
		cipher, err := manager.CreateCipher(key, cryptoDomain.AESGCM)
		require.NoError(t, err)
		assert.IsType(t, &AESGCMCipher{}, cipher)
	})

	t.Run("create ChaCha20-Poly1305 cipher", func(t *testing.T) {
		cipher, err := manager.CreateCipher(key, cryptoDomain.ChaCha20)
		require.NoError(t, err)
		assert.IsType(t, &ChaCha20Poly1305Cipher{}, cipher)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		cipher, err := manager.CreateCipher(key, cryptoDomain.Algorithm("xor"))
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
		assert.Nil(t, cipher)
	})

	t.Run("invalid key size", func(t *testing.T) {
		cipher, err := manager.CreateCipher(key[:16], cryptoDomain.AESGCM)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
		assert.Nil(t, cipher)
	})
}
