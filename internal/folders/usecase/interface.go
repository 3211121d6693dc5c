// Package usecase implements the folder tree of an environment.
package usecase

import (
	"context"

	"github.com/google/uuid"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
)

// FolderRepository defines the interface for folder persistence.
//
// (environment_id, parent_id, name) is unique and each environment has at most
// one folder without a parent.
type FolderRepository interface {
	// Create inserts a folder. Returns ErrFolderExists on a sibling name clash.
	Create(ctx context.Context, folder *foldersDomain.Folder) error

	// Get retrieves a folder of an environment. Returns ErrFolderNotFound if absent.
	Get(ctx context.Context, environmentID, id uuid.UUID) (*foldersDomain.Folder, error)

	// GetRoot retrieves the root folder of an environment.
	GetRoot(ctx context.Context, environmentID uuid.UUID) (*foldersDomain.Folder, error)

	// GetChild retrieves the child of parentID named name.
	GetChild(ctx context.Context, environmentID, parentID uuid.UUID, name string) (*foldersDomain.Folder, error)

	// ListByEnvironment returns every folder of an environment.
	ListByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]*foldersDomain.Folder, error)

	// Update writes name, parent, version and updated_at of a folder whose stored
	// version is still expectedVersion. Returns ErrFolderModified otherwise and
	// ErrFolderExists on a sibling name clash.
	Update(ctx context.Context, folder *foldersDomain.Folder, expectedVersion uint) error

	// Delete removes a folder. Returns ErrFolderNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SecretPurger deletes every secret of a folder, versioning each deletion.
type SecretPurger interface {
	PurgeFolder(ctx context.Context, s scope.Scope, folderID uuid.UUID) (int, error)
}

// FolderUseCase manages the folder tree of an environment.
//
// Every mutation bumps the changed folder's version and records a FolderVersion
// of the environment tree in the same transaction.
type FolderUseCase interface {
	// InitEnvironment creates the root folder. Returns ErrEnvironmentInitialized
	// if it already exists.
	InitEnvironment(ctx context.Context, s scope.Scope) (*foldersDomain.Folder, error)

	// Create adds a folder under parentID.
	Create(ctx context.Context, s scope.Scope, parentID uuid.UUID, name string) (*foldersDomain.Folder, error)

	// Rename changes the name of a folder. The root cannot be renamed.
	Rename(ctx context.Context, s scope.Scope, folderID uuid.UUID, name string) (*foldersDomain.Folder, error)

	// Move places a folder under newParentID. Returns ErrFolderCycle when
	// newParentID is the folder itself or one of its descendants.
	Move(ctx context.Context, s scope.Scope, folderID, newParentID uuid.UUID) (*foldersDomain.Folder, error)

	// Delete removes a folder, its descendants and all their secrets, children first.
	Delete(ctx context.Context, s scope.Scope, folderID uuid.UUID) error

	// Get returns a folder of the environment.
	Get(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Folder, error)

	// ResolvePath walks a slash separated path from the root folder.
	// Returns ErrFolderNotFound on the first missing segment.
	ResolvePath(ctx context.Context, s scope.Scope, path string) (*foldersDomain.Folder, error)

	// Path returns the absolute path of a folder.
	Path(ctx context.Context, s scope.Scope, folderID uuid.UUID) (string, error)

	// Tree returns the subtree rooted at folderID.
	Tree(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Tree, error)
}
