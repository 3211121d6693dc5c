package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/metrics"
	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

// snapshotUseCaseWithMetrics decorates SnapshotUseCase with metrics instrumentation.
type snapshotUseCaseWithMetrics struct {
	next    SnapshotUseCase
	metrics metrics.BusinessMetrics
}

// NewSnapshotUseCaseWithMetrics wraps a SnapshotUseCase with metrics recording.
func NewSnapshotUseCaseWithMetrics(useCase SnapshotUseCase, m metrics.BusinessMetrics) SnapshotUseCase {
	return &snapshotUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Capture records metrics for snapshot capture.
func (u *snapshotUseCaseWithMetrics) Capture(
	ctx context.Context,
	s scope.Scope,
	folderPath string,
) (*snapshotsDomain.Snapshot, error) {
	start := time.Now()
	snapshot, err := u.next.Capture(ctx, s, folderPath)
	metrics.Observe(ctx, u.metrics, "snapshots", "snapshot_capture", start, err)
	return snapshot, err
}

// Rollback records metrics for snapshot rollback.
func (u *snapshotUseCaseWithMetrics) Rollback(
	ctx context.Context,
	s scope.Scope,
	snapshotID uuid.UUID,
) (*snapshotsDomain.RollbackResult, error) {
	start := time.Now()
	result, err := u.next.Rollback(ctx, s, snapshotID)
	metrics.Observe(ctx, u.metrics, "snapshots", "snapshot_rollback", start, err)
	return result, err
}

// Get delegates without recording.
func (u *snapshotUseCaseWithMetrics) Get(
	ctx context.Context,
	s scope.Scope,
	snapshotID uuid.UUID,
) (*snapshotsDomain.Snapshot, error) {
	return u.next.Get(ctx, s, snapshotID)
}

// List delegates without recording.
func (u *snapshotUseCaseWithMetrics) List(ctx context.Context, s scope.Scope) ([]*snapshotsDomain.Snapshot, error) {
	return u.next.List(ctx, s)
}
