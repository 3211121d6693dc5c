package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/metrics"
	"github.com/allisson/envsafe/internal/scope"
)

// folderUseCaseWithMetrics decorates FolderUseCase with metrics instrumentation.
type folderUseCaseWithMetrics struct {
	next    FolderUseCase
	metrics metrics.BusinessMetrics
}

// NewFolderUseCaseWithMetrics wraps a FolderUseCase with metrics recording.
func NewFolderUseCaseWithMetrics(useCase FolderUseCase, m metrics.BusinessMetrics) FolderUseCase {
	return &folderUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// InitEnvironment records metrics for environment initialization.
func (f *folderUseCaseWithMetrics) InitEnvironment(ctx context.Context, s scope.Scope) (*foldersDomain.Folder, error) {
	start := time.Now()
	folder, err := f.next.InitEnvironment(ctx, s)
	metrics.Observe(ctx, f.metrics, "folders", "folder_init_environment", start, err)
	return folder, err
}

// Create records metrics for folder creation.
func (f *folderUseCaseWithMetrics) Create(
	ctx context.Context,
	s scope.Scope,
	parentID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	start := time.Now()
	folder, err := f.next.Create(ctx, s, parentID, name)
	metrics.Observe(ctx, f.metrics, "folders", "folder_create", start, err)
	return folder, err
}

// Rename records metrics for folder renames.
func (f *folderUseCaseWithMetrics) Rename(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	start := time.Now()
	folder, err := f.next.Rename(ctx, s, folderID, name)
	metrics.Observe(ctx, f.metrics, "folders", "folder_rename", start, err)
	return folder, err
}

// Move records metrics for folder moves.
func (f *folderUseCaseWithMetrics) Move(
	ctx context.Context,
	s scope.Scope,
	folderID, newParentID uuid.UUID,
) (*foldersDomain.Folder, error) {
	start := time.Now()
	folder, err := f.next.Move(ctx, s, folderID, newParentID)
	metrics.Observe(ctx, f.metrics, "folders", "folder_move", start, err)
	return folder, err
}

// Delete records metrics for folder deletion.
func (f *folderUseCaseWithMetrics) Delete(ctx context.Context, s scope.Scope, folderID uuid.UUID) error {
	start := time.Now()
	err := f.next.Delete(ctx, s, folderID)
	metrics.Observe(ctx, f.metrics, "folders", "folder_delete", start, err)
	return err
}

// Get delegates without recording.
func (f *folderUseCaseWithMetrics) Get(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) (*foldersDomain.Folder, error) {
	return f.next.Get(ctx, s, folderID)
}

// ResolvePath records metrics for path resolution.
func (f *folderUseCaseWithMetrics) ResolvePath(
	ctx context.Context,
	s scope.Scope,
	path string,
) (*foldersDomain.Folder, error) {
	start := time.Now()
	folder, err := f.next.ResolvePath(ctx, s, path)
	metrics.Observe(ctx, f.metrics, "folders", "folder_resolve_path", start, err)
	return folder, err
}

// Path delegates without recording.
func (f *folderUseCaseWithMetrics) Path(ctx context.Context, s scope.Scope, folderID uuid.UUID) (string, error) {
	return f.next.Path(ctx, s, folderID)
}

// Tree delegates without recording.
func (f *folderUseCaseWithMetrics) Tree(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) (*foldersDomain.Tree, error) {
	return f.next.Tree(ctx, s, folderID)
}
