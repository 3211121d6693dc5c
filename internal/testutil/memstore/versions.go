package memstore

import (
	"context"
	"slices"

	"github.com/google/uuid"

	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

// SecretVersionRepository stores secret_versions rows.
type SecretVersionRepository struct {
	s *Store
}

// Create appends a secret version.
func (r *SecretVersionRepository) Create(ctx context.Context, version *versionsDomain.SecretVersion) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secret_versions.Create"); err != nil {
		return err
	}

	for _, v := range r.s.t.secretVersions {
		if v.ID == version.ID || (v.SecretID == version.SecretID && v.Version == version.Version) {
			return versionsDomain.ErrVersionConflict
		}
	}
	r.s.t.secretVersions[version.ID] = cloneSecretVersion(version)
	return nil
}

// Get retrieves a secret version by id.
func (r *SecretVersionRepository) Get(ctx context.Context, id uuid.UUID) (*versionsDomain.SecretVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.t.secretVersions[id]
	if !ok {
		return nil, versionsDomain.ErrSecretVersionNotFound
	}
	return cloneSecretVersion(v), nil
}

// GetByVersion retrieves version n of a secret.
func (r *SecretVersionRepository) GetByVersion(
	ctx context.Context,
	secretID uuid.UUID,
	version uint,
) (*versionsDomain.SecretVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, v := range r.s.t.secretVersions {
		if v.SecretID == secretID && v.Version == version {
			return cloneSecretVersion(v), nil
		}
	}
	return nil, versionsDomain.ErrSecretVersionNotFound
}

// Latest retrieves the highest version of a secret.
func (r *SecretVersionRepository) Latest(
	ctx context.Context,
	secretID uuid.UUID,
) (*versionsDomain.SecretVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *versionsDomain.SecretVersion
	for _, v := range r.s.t.secretVersions {
		if v.SecretID == secretID && (latest == nil || v.Version > latest.Version) {
			latest = v
		}
	}
	if latest == nil {
		return nil, versionsDomain.ErrSecretVersionNotFound
	}
	return cloneSecretVersion(latest), nil
}

// ListBySecret returns the history of a secret, oldest first.
func (r *SecretVersionRepository) ListBySecret(
	ctx context.Context,
	secretID uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var versions []*versionsDomain.SecretVersion
	for _, v := range r.s.t.secretVersions {
		if v.SecretID == secretID {
			versions = append(versions, cloneSecretVersion(v))
		}
	}
	slices.SortFunc(versions, func(a, b *versionsDomain.SecretVersion) int {
		return int(a.Version) - int(b.Version)
	})
	return versions, nil
}

// ListByIDs returns the secret versions with the given ids.
func (r *SecretVersionRepository) ListByIDs(
	ctx context.Context,
	ids []uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	versions := make([]*versionsDomain.SecretVersion, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.s.t.secretVersions[id]; ok {
			versions = append(versions, cloneSecretVersion(v))
		}
	}
	return versions, nil
}

// FolderVersionRepository stores folder_versions rows.
type FolderVersionRepository struct {
	s *Store
}

// Create appends a folder version.
func (r *FolderVersionRepository) Create(ctx context.Context, version *versionsDomain.FolderVersion) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("folder_versions.Create"); err != nil {
		return err
	}

	for _, v := range r.s.t.folderVersions {
		if v.ID == version.ID || (v.FolderID == version.FolderID && v.Version == version.Version) {
			return versionsDomain.ErrVersionConflict
		}
	}
	r.s.t.folderVersions[version.ID] = cloneFolderVersion(version)
	return nil
}

// Get retrieves a folder version by id.
func (r *FolderVersionRepository) Get(ctx context.Context, id uuid.UUID) (*versionsDomain.FolderVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.t.folderVersions[id]
	if !ok {
		return nil, versionsDomain.ErrFolderVersionNotFound
	}
	return cloneFolderVersion(v), nil
}

// Latest retrieves the highest version recorded for a subtree root.
func (r *FolderVersionRepository) Latest(
	ctx context.Context,
	folderID uuid.UUID,
) (*versionsDomain.FolderVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *versionsDomain.FolderVersion
	for _, v := range r.s.t.folderVersions {
		if v.FolderID == folderID && (latest == nil || v.Version > latest.Version) {
			latest = v
		}
	}
	if latest == nil {
		return nil, versionsDomain.ErrFolderVersionNotFound
	}
	return cloneFolderVersion(latest), nil
}
