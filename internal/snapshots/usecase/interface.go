// Package usecase implements point-in-time capture and rollback of an
// environment's folder subtree.
package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

// SnapshotRepository defines the interface for snapshot persistence.
type SnapshotRepository interface {
	// Create inserts a snapshot in StatusCapturing.
	Create(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error

	// Get retrieves a snapshot of an environment. Returns ErrSnapshotNotFound if absent.
	Get(ctx context.Context, environmentID, id uuid.UUID) (*snapshotsDomain.Snapshot, error)

	// ListByEnvironment returns the snapshots of an environment, newest first.
	ListByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]*snapshotsDomain.Snapshot, error)

	// LatestVersion returns the highest snapshot version of an environment, 0 if none.
	LatestVersion(ctx context.Context, environmentID uuid.UUID) (uint, error)

	// Finish moves a capturing snapshot to its terminal status, writing the
	// captured references or the failure reason. Returns ErrInvalidTransition if
	// the stored snapshot is no longer capturing.
	Finish(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error
}

// SnapshotUseCase captures and restores snapshots.
type SnapshotUseCase interface {
	// Capture records the current state of the subtree at folderPath under one
	// consistent read. Returns ErrSnapshotInconsistent when a live secret is ahead
	// of or behind its recorded history.
	Capture(ctx context.Context, s scope.Scope, folderPath string) (*snapshotsDomain.Snapshot, error)

	// Rollback restores the subtree of a snapshot in one transaction. It deletes
	// secrets and folders absent from the snapshot, restores changed ones and
	// recreates missing ones, appending versions for every change. Nothing is
	// written when the subtree already matches.
	Rollback(ctx context.Context, s scope.Scope, snapshotID uuid.UUID) (*snapshotsDomain.RollbackResult, error)

	// Get returns a snapshot of the environment.
	Get(ctx context.Context, s scope.Scope, snapshotID uuid.UUID) (*snapshotsDomain.Snapshot, error)

	// List returns the snapshots of the environment, newest first.
	List(ctx context.Context, s scope.Scope) ([]*snapshotsDomain.Snapshot, error)
}
