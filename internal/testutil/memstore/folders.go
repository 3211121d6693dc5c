package memstore

import (
	"context"
	"slices"

	"github.com/google/uuid"

	apperrors "github.com/allisson/envsafe/internal/errors"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
)

// FolderRepository stores secret_folders rows.
type FolderRepository struct {
	s *Store
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// clash reports whether another folder of the environment already occupies
// the (parent, name) slot of f. Callers hold s.mu.
func (r *FolderRepository) clash(f *foldersDomain.Folder) bool {
	for _, other := range r.s.t.folders {
		if other.ID == f.ID || other.EnvironmentID != f.EnvironmentID {
			continue
		}
		if f.ParentID == nil && other.ParentID == nil {
			return true
		}
		if sameParent(other.ParentID, f.ParentID) && other.Name == f.Name {
			return true
		}
	}
	return false
}

// Create inserts a folder.
func (r *FolderRepository) Create(ctx context.Context, folder *foldersDomain.Folder) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secret_folders.Create"); err != nil {
		return err
	}

	if _, ok := r.s.t.folders[folder.ID]; ok {
		return foldersDomain.ErrFolderExists
	}
	if folder.ParentID != nil {
		if _, ok := r.s.t.folders[*folder.ParentID]; !ok {
			return apperrors.Wrapf(apperrors.ErrConflict, "foreign key violation: parent %s", *folder.ParentID)
		}
	}
	if r.clash(folder) {
		return foldersDomain.ErrFolderExists
	}
	r.s.t.folders[folder.ID] = folder.Clone()
	return nil
}

// Get retrieves a folder of an environment.
func (r *FolderRepository) Get(ctx context.Context, environmentID, id uuid.UUID) (*foldersDomain.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	f, ok := r.s.t.folders[id]
	if !ok || f.EnvironmentID != environmentID {
		return nil, foldersDomain.ErrFolderNotFound
	}
	return f.Clone(), nil
}

// GetRoot retrieves the root folder of an environment.
func (r *FolderRepository) GetRoot(ctx context.Context, environmentID uuid.UUID) (*foldersDomain.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, f := range r.s.t.folders {
		if f.EnvironmentID == environmentID && f.IsRoot() {
			return f.Clone(), nil
		}
	}
	return nil, foldersDomain.ErrFolderNotFound
}

// GetChild retrieves a child folder by name.
func (r *FolderRepository) GetChild(
	ctx context.Context,
	environmentID, parentID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, f := range r.s.t.folders {
		if f.EnvironmentID == environmentID && f.ParentID != nil && *f.ParentID == parentID && f.Name == name {
			return f.Clone(), nil
		}
	}
	return nil, foldersDomain.ErrFolderNotFound
}

// ListByEnvironment returns the folders of an environment ordered by id.
func (r *FolderRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*foldersDomain.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var folders []*foldersDomain.Folder
	for _, f := range r.s.t.folders {
		if f.EnvironmentID == environmentID {
			folders = append(folders, f.Clone())
		}
	}
	slices.SortFunc(folders, func(a, b *foldersDomain.Folder) int { return compareIDs(a.ID, b.ID) })
	return folders, nil
}

// Update writes a folder whose stored version is expectedVersion.
func (r *FolderRepository) Update(ctx context.Context, folder *foldersDomain.Folder, expectedVersion uint) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secret_folders.Update"); err != nil {
		return err
	}

	stored, ok := r.s.t.folders[folder.ID]
	if !ok || stored.Version != expectedVersion {
		return foldersDomain.ErrFolderModified
	}
	if r.clash(folder) {
		return foldersDomain.ErrFolderExists
	}
	updated := folder.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.ProjectID = stored.ProjectID
	updated.EnvironmentID = stored.EnvironmentID
	r.s.t.folders[folder.ID] = updated
	return nil
}

// Delete removes a folder. Child folders and secrets block the delete like the
// foreign keys of the schema do.
func (r *FolderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secret_folders.Delete"); err != nil {
		return err
	}

	if _, ok := r.s.t.folders[id]; !ok {
		return foldersDomain.ErrFolderNotFound
	}
	for _, f := range r.s.t.folders {
		if f.ParentID != nil && *f.ParentID == id {
			return apperrors.Wrapf(apperrors.ErrConflict, "foreign key violation: folder %s has children", id)
		}
	}
	for _, secret := range r.s.t.secrets {
		if secret.FolderID == id {
			return apperrors.Wrapf(apperrors.ErrConflict, "foreign key violation: folder %s has secrets", id)
		}
	}
	delete(r.s.t.folders, id)
	return nil
}
