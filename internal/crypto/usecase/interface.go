// Package usecase defines the business logic interfaces for the key hierarchy.
//
// This package contains the repository contracts and the KMSUseCase, the only
// component that turns scope keys into plaintext. Callers never receive key
// material: they hand plaintext in and get SealedBlobs back, or the reverse.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// KmsKeyRepository defines the interface for KmsKey persistence.
//
// Implementations resolve their querier through database.GetTx so that rotation
// can retire and insert versions in one transaction.
//
// Available implementations:
//   - PostgreSQLKmsKeyRepository: Uses native UUID and BYTEA types
//   - MySQLKmsKeyRepository: Uses BINARY(16) for UUIDs and BLOB for binary data
type KmsKeyRepository interface {
	// Create stores a new key version. Returns ErrKeyRotationConflict when the
	// version or the active slot of the scope is already taken.
	Create(ctx context.Context, key *cryptoDomain.KmsKey) error

	// Get retrieves a key version by id, active or retired.
	// Returns ErrKmsKeyNotFound if it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.KmsKey, error)

	// GetActive retrieves the active key version of a scope.
	// Returns ErrKeyNotProvisioned if the scope has none.
	GetActive(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error)

	// ListByScope returns every key version of a scope, newest first.
	ListByScope(ctx context.Context, scope cryptoDomain.KeyScope) ([]*cryptoDomain.KmsKey, error)

	// Retire deactivates an active key version. Returns ErrKeyRotationConflict if
	// the key was no longer active.
	Retire(ctx context.Context, id uuid.UUID, retiredAt time.Time) error
}

// BlindIndexSaltRepository defines the interface for blind index salt persistence.
type BlindIndexSaltRepository interface {
	// Create stores the salt of a new project. Returns ErrScopeAlreadyProvisioned
	// if the project already has one.
	Create(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error

	// Get retrieves the sealed salt of a project.
	// Returns ErrBlindIndexSaltNotFound if it does not exist.
	Get(ctx context.Context, projectID uuid.UUID) (*cryptoDomain.BlindIndexSalt, error)

	// Update replaces the sealed salt after the project key rotates.
	Update(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error
}

// KMSUseCase owns the key hierarchy: root custodian -> organization key ->
// project key -> per-call data key.
//
// KMSUseCase never retries. Failures of the root custodian surface as
// ErrTransientProvider (retry with backoff) or ErrKeyUnavailable (permanent).
type KMSUseCase interface {
	// ProvisionOrganization creates version 1 of an organization key, wrapped by
	// the root custodian. Returns ErrScopeAlreadyProvisioned if it already exists.
	ProvisionOrganization(ctx context.Context, organizationID uuid.UUID) (*cryptoDomain.KmsKey, error)

	// ProvisionProject creates version 1 of a project key under the active
	// organization key, together with the project's blind index salt.
	ProvisionProject(ctx context.Context, organizationID, projectID uuid.UUID) (*cryptoDomain.KmsKey, error)

	// ActiveKey returns the metadata of the active key of a scope.
	ActiveKey(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error)

	// GenerateDataKey returns a random data key and its form wrapped under the
	// active key of scope. The caller must zero the plaintext key.
	GenerateDataKey(ctx context.Context, scope cryptoDomain.KeyScope) ([]byte, *cryptoDomain.WrappedDataKey, error)

	// EncryptWithScopeKey seals plaintext under a fresh data key and returns a
	// SealedBlob carrying the wrapped data key.
	EncryptWithScopeKey(ctx context.Context, scope cryptoDomain.KeyScope, plaintext []byte) ([]byte, error)

	// DecryptWithScopeKey opens a SealedBlob produced for scope, whether its key
	// version is active or retired.
	//
	// Returns ErrKeyUnavailable when the key version cannot be resolved,
	// ErrScopeMismatch when it belongs to another scope and ErrDecryptionFailed
	// when a tag does not verify.
	DecryptWithScopeKey(ctx context.Context, scope cryptoDomain.KeyScope, blob []byte) ([]byte, error)

	// RewrapBlob re-wraps the data key of blob under the active key of scope. The
	// payload bytes are kept as they are. The boolean is false when the blob was
	// already wrapped by the active key and is returned unchanged.
	RewrapBlob(ctx context.Context, scope cryptoDomain.KeyScope, blob []byte) ([]byte, bool, error)

	// RotateKey creates version N+1 of the scope key and retires version N in one
	// transaction. Project rotations re-seal the blind index salt under the new key.
	// Returns ErrKeyRotationConflict when a concurrent rotation won.
	RotateKey(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error)

	// WithBlindIndexSalt calls fn with the decrypted salt of a project. The salt
	// is zeroed when fn returns and must not be retained.
	WithBlindIndexSalt(ctx context.Context, projectID uuid.UUID, fn func(salt []byte) error) error
}
