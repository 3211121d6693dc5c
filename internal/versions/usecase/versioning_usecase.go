package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

// versioningUseCase implements VersioningUseCase.
type versioningUseCase struct {
	secretVersionRepo SecretVersionRepository
	folderVersionRepo FolderVersionRepository
	secretLocks       *kmutex.Kmutex
	treeLocks         *kmutex.Kmutex
}

// RecordSecretVersion appends version secret.Version of a secret.
func (v *versioningUseCase) RecordSecretVersion(
	ctx context.Context,
	secret *secretsDomain.Secret,
	actor scope.Actor,
) (*versionsDomain.SecretVersion, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	latest, err := v.latestVersion(ctx, secret.ID)
	if err != nil {
		return nil, err
	}
	if secret.Version != latest+1 {
		return nil, fmt.Errorf("%w: secret %s is at version %d, got %d",
			versionsDomain.ErrVersionConflict, secret.ID, latest, secret.Version)
	}

	version := versionsDomain.NewSecretVersion(secret, secret.Version, false, actor)
	if err := v.secretVersionRepo.Create(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// RecordSecretDeletion appends the terminal deleted version of a secret.
func (v *versioningUseCase) RecordSecretDeletion(
	ctx context.Context,
	secret *secretsDomain.Secret,
	actor scope.Actor,
) (*versionsDomain.SecretVersion, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	latest, err := v.secretVersionRepo.Latest(ctx, secret.ID)
	if err != nil && !errors.Is(err, versionsDomain.ErrSecretVersionNotFound) {
		return nil, err
	}

	next := uint(1)
	if latest != nil {
		if latest.Deleted {
			return nil, fmt.Errorf("%w: secret %s is already deleted", versionsDomain.ErrVersionConflict, secret.ID)
		}
		if latest.Version != secret.Version {
			return nil, fmt.Errorf("%w: secret %s is at version %d, got %d",
				versionsDomain.ErrVersionConflict, secret.ID, latest.Version, secret.Version)
		}
		next = latest.Version + 1
	}

	version := versionsDomain.NewSecretVersion(secret, next, true, actor)
	if err := v.secretVersionRepo.Create(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// RecordFolderVersion appends the next version of the subtree rooted at tree.Root().
func (v *versioningUseCase) RecordFolderVersion(
	ctx context.Context,
	environmentID uuid.UUID,
	tree *foldersDomain.Tree,
	actor scope.Actor,
) (*versionsDomain.FolderVersion, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if tree == nil || tree.Len() == 0 {
		return nil, fmt.Errorf("%w: empty folder tree", foldersDomain.ErrFolderNotFound)
	}

	rootID := tree.Root().FolderID
	next := uint(1)
	latest, err := v.folderVersionRepo.Latest(ctx, rootID)
	switch {
	case err == nil:
		next = latest.Version + 1
	case !errors.Is(err, versionsDomain.ErrFolderVersionNotFound):
		return nil, err
	}

	version := &versionsDomain.FolderVersion{
		ID:            uuid.Must(uuid.NewV7()),
		EnvironmentID: environmentID,
		FolderID:      rootID,
		Version:       next,
		Nodes:         cloneNodes(tree.Nodes),
		Actor:         actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := v.folderVersionRepo.Create(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// WithSecretLock runs fn while holding the lock of secretID.
func (v *versioningUseCase) WithSecretLock(
	ctx context.Context,
	secretID uuid.UUID,
	fn func(ctx context.Context) error,
) error {
	v.secretLocks.Lock(secretID)
	defer v.secretLocks.Unlock(secretID)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// WithTreeLock runs fn while holding the lock of environmentID.
func (v *versioningUseCase) WithTreeLock(
	ctx context.Context,
	environmentID uuid.UUID,
	fn func(ctx context.Context) error,
) error {
	v.treeLocks.Lock(environmentID)
	defer v.treeLocks.Unlock(environmentID)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ListSecretVersions returns the history of a secret.
func (v *versioningUseCase) ListSecretVersions(
	ctx context.Context,
	secretID uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	return v.secretVersionRepo.ListBySecret(ctx, secretID)
}

// GetSecretVersion returns version n of a secret.
func (v *versioningUseCase) GetSecretVersion(
	ctx context.Context,
	secretID uuid.UUID,
	version uint,
) (*versionsDomain.SecretVersion, error) {
	return v.secretVersionRepo.GetByVersion(ctx, secretID, version)
}

// LatestSecretVersion returns the latest version of a secret.
func (v *versioningUseCase) LatestSecretVersion(
	ctx context.Context,
	secretID uuid.UUID,
) (*versionsDomain.SecretVersion, error) {
	return v.secretVersionRepo.Latest(ctx, secretID)
}

// GetFolderVersion returns a folder version by id.
func (v *versioningUseCase) GetFolderVersion(
	ctx context.Context,
	id uuid.UUID,
) (*versionsDomain.FolderVersion, error) {
	return v.folderVersionRepo.Get(ctx, id)
}

// latestVersion returns the latest version number of a secret, 0 when it has no history.
func (v *versioningUseCase) latestVersion(ctx context.Context, secretID uuid.UUID) (uint, error) {
	latest, err := v.secretVersionRepo.Latest(ctx, secretID)
	if err != nil {
		if errors.Is(err, versionsDomain.ErrSecretVersionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return latest.Version, nil
}

func cloneNodes(nodes []foldersDomain.TreeNode) []foldersDomain.TreeNode {
	out := make([]foldersDomain.TreeNode, len(nodes))
	for i, n := range nodes {
		n.Children = slices.Clone(n.Children)
		out[i] = n
	}
	return out
}

// NewVersioningUseCase creates a VersioningUseCase.
func NewVersioningUseCase(
	secretVersionRepo SecretVersionRepository,
	folderVersionRepo FolderVersionRepository,
) VersioningUseCase {
	return &versioningUseCase{
		secretVersionRepo: secretVersionRepo,
		folderVersionRepo: folderVersionRepo,
		secretLocks:       kmutex.New(),
		treeLocks:         kmutex.New(),
	}
}
