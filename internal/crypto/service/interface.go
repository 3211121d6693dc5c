// Package service provides the cryptographic building blocks of the key hierarchy:
// AEAD ciphers, the envelope cipher that produces self-describing sealed payloads,
// key generation and wrapping, blind indexing, and root key custody.
package service

import (
	"context"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext||tag and a fresh nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext||tag using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// EnvelopeCipher seals and opens SealedPayloads.
//
// Nonces are generated inside Seal and never accepted from callers. Open reads the
// algorithm from the payload, so payloads sealed with any supported algorithm stay
// readable after the configured algorithm changes.
type EnvelopeCipher interface {
	// Seal encrypts plaintext under key and returns a marshaled SealedPayload.
	Seal(key []byte, alg cryptoDomain.Algorithm, plaintext, aad []byte) ([]byte, error)

	// Open authenticates and decrypts a marshaled SealedPayload.
	// Returns ErrDecryptionFailed when the tag does not verify.
	Open(key, sealed, aad []byte) ([]byte, error)
}

// KeyManager creates and opens the keys of the hierarchy.
//
// Organization keys are wrapped by a RootCustodian, project keys are sealed under an
// organization key, and data keys are sealed under the scope key that encrypts the
// payload. Every returned plaintext key is owned by the caller, who must zero it.
type KeyManager interface {
	// GenerateKey returns KeySize random bytes.
	GenerateKey() ([]byte, error)

	// CreateOrganizationKey generates an organization key and wraps it with custodian.
	CreateOrganizationKey(
		ctx context.Context,
		custodian RootCustodian,
		organizationID uuid.UUID,
		version uint,
		alg cryptoDomain.Algorithm,
	) (*cryptoDomain.KmsKey, []byte, error)

	// DecryptOrganizationKey unwraps an organization key through custodian.
	DecryptOrganizationKey(
		ctx context.Context,
		custodian RootCustodian,
		key *cryptoDomain.KmsKey,
	) ([]byte, error)

	// CreateProjectKey generates a project key sealed under the given organization key version.
	CreateProjectKey(
		parent *cryptoDomain.KmsKey,
		parentKey []byte,
		projectID uuid.UUID,
		version uint,
		alg cryptoDomain.Algorithm,
	) (*cryptoDomain.KmsKey, []byte, error)

	// DecryptProjectKey opens a project key with the plaintext of its parent key.
	DecryptProjectKey(key *cryptoDomain.KmsKey, parentKey []byte) ([]byte, error)

	// CreateDataKey generates a data key sealed under scopeKey.
	CreateDataKey(
		scopeKey *cryptoDomain.KmsKey,
		scopeKeyPlain []byte,
		alg cryptoDomain.Algorithm,
	) ([]byte, *cryptoDomain.WrappedDataKey, error)

	// WrapDataKey seals an existing data key under scopeKey, used to re-wrap blobs
	// after rotation without touching their payload.
	WrapDataKey(
		scopeKey *cryptoDomain.KmsKey,
		scopeKeyPlain, dataKey []byte,
		alg cryptoDomain.Algorithm,
	) (*cryptoDomain.WrappedDataKey, error)

	// DecryptDataKey opens a wrapped data key with the plaintext of its scope key.
	DecryptDataKey(wrapped *cryptoDomain.WrappedDataKey, scopeKeyPlain []byte) ([]byte, error)

	// SealSalt seals a blind index salt under a project key.
	SealSalt(projectKey *cryptoDomain.KmsKey, projectKeyPlain, salt []byte) ([]byte, error)

	// OpenSalt opens a blind index salt sealed by SealSalt.
	OpenSalt(projectID uuid.UUID, projectKeyPlain, sealed []byte) ([]byte, error)
}

// BlindIndexer computes deterministic, salt-keyed indexes over secret names.
type BlindIndexer interface {
	// ComputeIndex returns hex(HMAC-SHA256(salt, name) truncated to 16 bytes).
	ComputeIndex(salt []byte, name string) (string, error)
}

// RootCustodian holds the keys at the top of the hierarchy and wraps organization keys.
//
// Implementations must not retry; transient failures surface as ErrTransientProvider
// and permanent ones as ErrKeyUnavailable.
type RootCustodian interface {
	// Wrap encrypts key and returns the reference of the root key used plus the blob.
	Wrap(ctx context.Context, key []byte) (ref string, blob []byte, err error)

	// Unwrap decrypts a blob produced by Wrap with the root key named by ref.
	Unwrap(ctx context.Context, ref string, blob []byte) ([]byte, error)

	// Close releases the root key material or provider connection.
	Close() error
}
