package service

import (
	"fmt"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// EnvelopeCipherService implements EnvelopeCipher on top of an AEADManager.
type EnvelopeCipherService struct {
	aeadManager AEADManager
}

// NewEnvelopeCipher creates an EnvelopeCipherService.
func NewEnvelopeCipher(aeadManager AEADManager) *EnvelopeCipherService {
	return &EnvelopeCipherService{aeadManager: aeadManager}
}

// Seal encrypts plaintext and encodes the result as a version 1 SealedPayload.
func (e *EnvelopeCipherService) Seal(
	key []byte,
	alg cryptoDomain.Algorithm,
	plaintext, aad []byte,
) ([]byte, error) {
	aead, err := e.aeadManager.CreateCipher(key, alg)
	if err != nil {
		return nil, err
	}

	sealed, nonce, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrEncryption, err)
	}
	if len(sealed) < cryptoDomain.TagSize {
		return nil, fmt.Errorf("%w: short AEAD output", cryptoDomain.ErrEncryption)
	}

	payload := cryptoDomain.SealedPayload{
		Algorithm:  alg,
		Nonce:      nonce,
		Ciphertext: sealed[:len(sealed)-cryptoDomain.TagSize],
		Tag:        sealed[len(sealed)-cryptoDomain.TagSize:],
	}
	return payload.Marshal()
}

// Open parses sealed, selects the cipher from the embedded algorithm id and
// decrypts. Any authentication failure is reported as ErrDecryptionFailed without
// detail.
func (e *EnvelopeCipherService) Open(key, sealed, aad []byte) ([]byte, error) {
	payload, err := cryptoDomain.ParseSealedPayload(sealed)
	if err != nil {
		return nil, err
	}

	aead, err := e.aeadManager.CreateCipher(key, payload.Algorithm)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Decrypt(payload.Sealed(), payload.Nonce, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
