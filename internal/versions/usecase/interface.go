// Package usecase implements the versioning engine: the only component that hands
// out version numbers for secrets and folder trees.
package usecase

import (
	"context"

	"github.com/google/uuid"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

// SecretVersionRepository defines the interface for secret version persistence.
// Rows are append-only; (secret_id, version) is unique.
type SecretVersionRepository interface {
	// Create appends a version. Returns ErrVersionConflict when the version number
	// is already taken.
	Create(ctx context.Context, version *versionsDomain.SecretVersion) error

	// Get retrieves a version by id.
	Get(ctx context.Context, id uuid.UUID) (*versionsDomain.SecretVersion, error)

	// GetByVersion retrieves version n of a secret.
	GetByVersion(ctx context.Context, secretID uuid.UUID, version uint) (*versionsDomain.SecretVersion, error)

	// Latest retrieves the highest version of a secret.
	// Returns ErrSecretVersionNotFound if the secret has no history.
	Latest(ctx context.Context, secretID uuid.UUID) (*versionsDomain.SecretVersion, error)

	// ListBySecret returns the history of a secret, oldest first.
	ListBySecret(ctx context.Context, secretID uuid.UUID) ([]*versionsDomain.SecretVersion, error)

	// ListByIDs returns the versions with the given ids in no particular order.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*versionsDomain.SecretVersion, error)
}

// FolderVersionRepository defines the interface for folder version persistence.
// Rows are append-only; (folder_id, version) is unique.
type FolderVersionRepository interface {
	// Create appends a version. Returns ErrVersionConflict when the version number
	// is already taken.
	Create(ctx context.Context, version *versionsDomain.FolderVersion) error

	// Get retrieves a version by id.
	Get(ctx context.Context, id uuid.UUID) (*versionsDomain.FolderVersion, error)

	// Latest retrieves the highest version recorded for a subtree root folder.
	// Returns ErrFolderVersionNotFound if none exists.
	Latest(ctx context.Context, folderID uuid.UUID) (*versionsDomain.FolderVersion, error)
}

// VersioningUseCase appends immutable history records.
//
// Within a process, writers of the same secret are serialized by WithSecretLock
// and writers of the same environment tree by WithTreeLock. Across processes the
// unique (id, version) indexes reject the loser with ErrVersionConflict.
type VersioningUseCase interface {
	// RecordSecretVersion appends version secret.Version, which must be exactly
	// one more than the latest recorded version.
	RecordSecretVersion(
		ctx context.Context,
		secret *secretsDomain.Secret,
		actor scope.Actor,
	) (*versionsDomain.SecretVersion, error)

	// RecordSecretDeletion appends a terminal version flagged deleted.
	RecordSecretDeletion(
		ctx context.Context,
		secret *secretsDomain.Secret,
		actor scope.Actor,
	) (*versionsDomain.SecretVersion, error)

	// RecordFolderVersion appends the next version of the subtree rooted at tree.Root().
	RecordFolderVersion(
		ctx context.Context,
		environmentID uuid.UUID,
		tree *foldersDomain.Tree,
		actor scope.Actor,
	) (*versionsDomain.FolderVersion, error)

	// WithSecretLock runs fn while holding the in-process lock of a secret.
	WithSecretLock(ctx context.Context, secretID uuid.UUID, fn func(ctx context.Context) error) error

	// WithTreeLock runs fn while holding the in-process lock of an environment tree.
	WithTreeLock(ctx context.Context, environmentID uuid.UUID, fn func(ctx context.Context) error) error

	// ListSecretVersions returns the history of a secret, oldest first.
	ListSecretVersions(ctx context.Context, secretID uuid.UUID) ([]*versionsDomain.SecretVersion, error)

	// GetSecretVersion returns version n of a secret.
	GetSecretVersion(ctx context.Context, secretID uuid.UUID, version uint) (*versionsDomain.SecretVersion, error)

	// LatestSecretVersion returns the latest version of a secret.
	LatestSecretVersion(ctx context.Context, secretID uuid.UUID) (*versionsDomain.SecretVersion, error)

	// GetFolderVersion returns a folder version by id.
	GetFolderVersion(ctx context.Context, id uuid.UUID) (*versionsDomain.FolderVersion, error)
}
