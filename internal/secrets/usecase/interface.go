// Package usecase defines the interfaces and implementations for secret management use cases.
// Use cases orchestrate the KMS, the blind indexer and the versioning engine so that
// every mutation of a secret and its version record commit together.
package usecase

import (
	"context"

	"github.com/google/uuid"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

// SecretRepository defines the interface for Secret persistence operations.
//
// (folder_id, blind_index) is unique. Update and Delete use the version column as
// an optimistic predicate.
type SecretRepository interface {
	// Create inserts a secret. Returns ErrDuplicateSecret on a name clash in the folder.
	Create(ctx context.Context, secret *secretsDomain.Secret) error

	// Get retrieves a secret of an environment. Returns ErrSecretNotFound if absent.
	Get(ctx context.Context, environmentID, id uuid.UUID) (*secretsDomain.Secret, error)

	// GetByBlindIndex retrieves the secret of a folder with the given name index.
	GetByBlindIndex(ctx context.Context, folderID uuid.UUID, blindIndex string) (*secretsDomain.Secret, error)

	// ListByFolder returns the secrets of a folder ordered by creation.
	ListByFolder(ctx context.Context, folderID uuid.UUID) ([]*secretsDomain.Secret, error)

	// ListByEnvironment returns every secret of an environment ordered by creation.
	ListByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]*secretsDomain.Secret, error)

	// ListForRewrap returns up to limit secrets of a project whose kms_key_id is
	// not activeKeyID, with id greater than afterID, ordered by id.
	ListForRewrap(
		ctx context.Context,
		projectID, activeKeyID, afterID uuid.UUID,
		limit int,
	) ([]*secretsDomain.Secret, error)

	// Update writes every mutable column of a secret whose stored version is still
	// expectedVersion. Returns ErrSecretModified otherwise.
	Update(ctx context.Context, secret *secretsDomain.Secret, expectedVersion uint) error

	// Delete removes a secret whose stored version is still expectedVersion.
	// Returns ErrSecretModified otherwise.
	Delete(ctx context.Context, id uuid.UUID, expectedVersion uint) error
}

// FolderRepository is the folder lookup SecretUseCase needs to validate targets.
type FolderRepository interface {
	Get(ctx context.Context, environmentID, id uuid.UUID) (*foldersDomain.Folder, error)
}

// SecretUseCase defines the interface for secret management business logic.
//
// Reads return metadata only; plaintext is produced on demand by Reveal and
// RevealAll.
type SecretUseCase interface {
	// Create seals and stores a new secret at version 1.
	Create(ctx context.Context, s scope.Scope, input *secretsDomain.CreateSecretInput) (*secretsDomain.Secret, error)

	// Update applies a patch and appends the next version.
	Update(
		ctx context.Context,
		s scope.Scope,
		secretID uuid.UUID,
		input *secretsDomain.UpdateSecretInput,
	) (*secretsDomain.Secret, error)

	// Delete removes the live secret and appends a terminal deleted version.
	Delete(ctx context.Context, s scope.Scope, secretID uuid.UUID) error

	// Get returns the metadata of a secret.
	Get(ctx context.Context, s scope.Scope, secretID uuid.UUID) (*secretsDomain.Secret, error)

	// ListByFolder returns the metadata of every secret in a folder.
	ListByFolder(ctx context.Context, s scope.Scope, folderID uuid.UUID) ([]*secretsDomain.Secret, error)

	// FindByName looks a secret up by name through the blind index.
	FindByName(ctx context.Context, s scope.Scope, folderID uuid.UUID, name string) (*secretsDomain.Secret, error)

	// Reveal decrypts the name, value and comment of one secret.
	//
	// Security Note: callers MUST zero the returned Value with cryptoDomain.Zero.
	Reveal(ctx context.Context, s scope.Scope, secretID uuid.UUID) (*secretsDomain.RevealedSecret, error)

	// RevealAll decrypts every secret of a folder. A secret that fails to decrypt
	// carries its error in RevealedSecret.Err; the batch itself only fails when the
	// folder cannot be listed.
	RevealAll(ctx context.Context, s scope.Scope, folderID uuid.UUID) ([]*secretsDomain.RevealedSecret, error)

	// PurgeFolder deletes every secret of a folder, versioning each deletion. It
	// must run inside the caller's transaction and takes no secret locks.
	PurgeFolder(ctx context.Context, s scope.Scope, folderID uuid.UUID) (int, error)

	// Rewrap moves the next batch of a project's secrets after afterID onto the
	// active project key, appending a version for each. Secrets that fail are
	// counted and skipped. Pass the returned LastID to continue.
	Rewrap(
		ctx context.Context,
		projectID uuid.UUID,
		actor scope.Actor,
		afterID uuid.UUID,
		batchSize int,
	) (*secretsDomain.RewrapResult, error)
}
