package memstore

import (
	"context"
	"slices"

	"github.com/google/uuid"

	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

// SnapshotRepository stores secret_snapshots rows.
type SnapshotRepository struct {
	s *Store
}

// Create inserts a snapshot.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secret_snapshots.Create"); err != nil {
		return err
	}

	for _, other := range r.s.t.snapshots {
		if other.ID == snapshot.ID ||
			(other.EnvironmentID == snapshot.EnvironmentID && other.Version == snapshot.Version) {
			return snapshotsDomain.ErrSnapshotExists
		}
	}
	r.s.t.snapshots[snapshot.ID] = cloneSnapshot(snapshot)
	return nil
}

// Get retrieves a snapshot of an environment.
func (r *SnapshotRepository) Get(ctx context.Context, environmentID, id uuid.UUID) (*snapshotsDomain.Snapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	snapshot, ok := r.s.t.snapshots[id]
	if !ok || snapshot.EnvironmentID != environmentID {
		return nil, snapshotsDomain.ErrSnapshotNotFound
	}
	return cloneSnapshot(snapshot), nil
}

// ListByEnvironment returns the snapshots of an environment, newest first.
func (r *SnapshotRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*snapshotsDomain.Snapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var snapshots []*snapshotsDomain.Snapshot
	for _, snapshot := range r.s.t.snapshots {
		if snapshot.EnvironmentID == environmentID {
			snapshots = append(snapshots, cloneSnapshot(snapshot))
		}
	}
	slices.SortFunc(snapshots, func(a, b *snapshotsDomain.Snapshot) int {
		return int(b.Version) - int(a.Version)
	})
	return snapshots, nil
}

// LatestVersion returns the highest snapshot version of an environment.
func (r *SnapshotRepository) LatestVersion(ctx context.Context, environmentID uuid.UUID) (uint, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest uint
	for _, snapshot := range r.s.t.snapshots {
		if snapshot.EnvironmentID == environmentID && snapshot.Version > latest {
			latest = snapshot.Version
		}
	}
	return latest, nil
}

// Finish moves a capturing snapshot to its terminal status.
func (r *SnapshotRepository) Finish(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secret_snapshots.Finish"); err != nil {
		return err
	}

	stored, ok := r.s.t.snapshots[snapshot.ID]
	if !ok {
		return snapshotsDomain.ErrSnapshotNotFound
	}
	if stored.Status != snapshotsDomain.StatusCapturing {
		return snapshotsDomain.ErrInvalidTransition
	}
	stored.Status = snapshot.Status
	stored.SecretVersionIDs = slices.Clone(snapshot.SecretVersionIDs)
	stored.FolderVersionID = nil
	if snapshot.FolderVersionID != nil {
		id := *snapshot.FolderVersionID
		stored.FolderVersionID = &id
	}
	stored.FailureReason = snapshot.FailureReason
	stored.UpdatedAt = snapshot.UpdatedAt
	return nil
}
