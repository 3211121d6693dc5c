package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// BlindIndexSize is the number of HMAC-SHA256 bytes kept in an index.
const BlindIndexSize = 16

// BlindIndexerService implements BlindIndexer with HMAC-SHA256.
//
// Names are hashed exactly as given: the index is case-sensitive and performs no
// Unicode or whitespace normalization. Callers validate names before indexing.
type BlindIndexerService struct{}

// NewBlindIndexer creates a BlindIndexerService.
func NewBlindIndexer() *BlindIndexerService {
	return &BlindIndexerService{}
}

// ComputeIndex returns the lowercase hex encoding of the first 16 bytes of
// HMAC-SHA256(salt, name). The result is always 32 characters.
func (b *BlindIndexerService) ComputeIndex(salt []byte, name string) (string, error) {
	if len(salt) != cryptoDomain.KeySize {
		return "", fmt.Errorf("%w: blind index salt must be %d bytes", cryptoDomain.ErrInvalidKeySize, cryptoDomain.KeySize)
	}

	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil)[:BlindIndexSize]), nil
}
