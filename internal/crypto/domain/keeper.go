package domain

import "context"

// KMSKeeper is the subset of a gocloud.dev secrets keeper used by the root
// custodian and for decrypting KMS-encrypted master keys.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
