package domain

import (
	"github.com/allisson/envsafe/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap the categories from internal/errors. Seal and
// open failures, and references to key material that no longer exists, wrap
// ErrInternal so they can never be mistaken for a missing resource.
var (
	// ErrEncryption is the parent of every seal/open failure. It is always fatal to
	// the operation that raised it.
	ErrEncryption = errors.Wrap(errors.ErrInternal, "encryption error")

	// ErrDecryptionFailed indicates an authentication tag did not verify.
	//
	// This error can occur due to:
	//   - Wrong decryption key used
	//   - Ciphertext or tag has been tampered with
	//   - Associated data does not match (blob moved to another scope)
	//
	// The specific cause is not disclosed.
	ErrDecryptionFailed = errors.Wrap(ErrEncryption, "decryption failed")

	// ErrInvalidSealedBlob indicates a sealed payload or blob could not be parsed.
	ErrInvalidSealedBlob = errors.Wrap(ErrEncryption, "invalid sealed blob")

	// ErrUnsupportedAlgorithm indicates the requested or embedded algorithm is not supported.
	//
	// Supported algorithms: AESGCM (AES-256-GCM), ChaCha20 (ChaCha20-Poly1305)
	ErrUnsupportedAlgorithm = errors.Wrap(ErrEncryption, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(ErrEncryption, "invalid key size")

	// ErrKeyUnavailable indicates a referenced key (retired, deleted, or held by a
	// custodian that reports it gone) cannot be used. It is not retryable and
	// signals data that needs manual key recovery.
	ErrKeyUnavailable = errors.Wrap(errors.ErrInternal, "key unavailable")

	// ErrKmsKeyNotFound indicates a key version referenced by a blob or a child key
	// does not exist.
	ErrKmsKeyNotFound = errors.Wrap(ErrKeyUnavailable, "kms key not found")

	// ErrKeyNotProvisioned indicates a scope has no active key.
	ErrKeyNotProvisioned = errors.Wrap(ErrKeyUnavailable, "scope key not provisioned")

	// ErrScopeMismatch indicates a blob references a key that belongs to another scope.
	ErrScopeMismatch = errors.Wrap(ErrDecryptionFailed, "key does not belong to scope")

	// ErrTransientProvider indicates a network or timeout failure talking to the
	// root key custodian. Callers retry it with backoff.
	ErrTransientProvider = errors.Wrap(errors.ErrTransient, "transient key provider failure")

	// ErrKeyRotationConflict indicates another rotation replaced the active key first.
	ErrKeyRotationConflict = errors.Wrap(errors.ErrConflict, "concurrent key rotation")

	// ErrScopeAlreadyProvisioned indicates a scope already has a key hierarchy.
	ErrScopeAlreadyProvisioned = errors.Wrap(errors.ErrConflict, "scope already provisioned")

	// ErrBlindIndexSaltNotFound indicates a project has no blind index salt.
	ErrBlindIndexSaltNotFound = errors.Wrap(ErrKeyUnavailable, "blind index salt not found")
)

// Master key configuration errors.
var (
	// ErrMasterKeysNotSet indicates MASTER_KEYS is empty.
	ErrMasterKeysNotSet = errors.Wrap(errors.ErrInvalidInput, "MASTER_KEYS not set")

	// ErrActiveMasterKeyIDNotSet indicates ACTIVE_MASTER_KEY_ID is empty.
	ErrActiveMasterKeyIDNotSet = errors.Wrap(errors.ErrInvalidInput, "ACTIVE_MASTER_KEY_ID not set")

	// ErrInvalidMasterKeysFormat indicates an entry is not "id:base64".
	ErrInvalidMasterKeysFormat = errors.Wrap(errors.ErrInvalidInput, "invalid MASTER_KEYS format")

	// ErrInvalidMasterKeyBase64 indicates an entry's key is not valid base64.
	ErrInvalidMasterKeyBase64 = errors.Wrap(errors.ErrInvalidInput, "invalid master key base64")

	// ErrActiveMasterKeyNotFound indicates ACTIVE_MASTER_KEY_ID names no configured key.
	ErrActiveMasterKeyNotFound = errors.Wrap(errors.ErrInvalidInput, "active master key not found")
)
