package domain

import (
	"github.com/allisson/envsafe/internal/errors"
)

// Snapshot error definitions.
var (
	// ErrSnapshotNotFound indicates the snapshot does not exist in the environment.
	ErrSnapshotNotFound = errors.Wrap(errors.ErrNotFound, "snapshot not found")

	// ErrSnapshotInconsistent indicates capture or rollback observed an interleaved
	// state and aborted. It is never retried automatically.
	ErrSnapshotInconsistent = errors.Wrap(errors.ErrConflict, "snapshot state is inconsistent")

	// ErrSnapshotNotCaptured indicates a rollback to a snapshot that is not captured.
	ErrSnapshotNotCaptured = errors.Wrap(errors.ErrInvalidInput, "snapshot is not captured")

	// ErrSnapshotExists indicates a concurrent capture took the snapshot version.
	ErrSnapshotExists = errors.Wrap(errors.ErrConflict, "snapshot version already exists")

	// ErrInvalidTransition indicates a status change from a terminal status.
	ErrInvalidTransition = errors.Wrap(errors.ErrConflict, "invalid snapshot status transition")
)
