// Package domain defines point-in-time snapshots of an environment's folder subtree.
//
// A snapshot moves from StatusCapturing to StatusCaptured or StatusFailed and never
// changes afterwards. A failed capture is retried by starting a new one.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/scope"
)

// Status is the capture state of a snapshot.
type Status string

// Snapshot statuses.
const (
	StatusCapturing Status = "capturing"
	StatusCaptured  Status = "captured"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a persisted status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCapturing, StatusCaptured, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid snapshot status: %s", s)
	}
}

// Snapshot references the secret versions and folder version that were current
// when it was captured. It never copies them.
type Snapshot struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	EnvironmentID uuid.UUID
	// FolderID is the root of the captured subtree and FolderPath its path at capture time.
	FolderID   uuid.UUID
	FolderPath string
	// Version numbers captures per environment starting at 1.
	Version          uint
	Status           Status
	SecretVersionIDs []uuid.UUID
	FolderVersionID  *uuid.UUID
	FailureReason    string
	Actor            scope.Actor
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanTransition reports whether the snapshot may move to next.
func (s *Snapshot) CanTransition(next Status) bool {
	return s.Status == StatusCapturing && (next == StatusCaptured || next == StatusFailed)
}

// IsCaptured reports whether the snapshot can be rolled back to.
func (s *Snapshot) IsCaptured() bool {
	return s.Status == StatusCaptured && s.FolderVersionID != nil
}

// RollbackResult counts the changes a rollback applied.
type RollbackResult struct {
	SnapshotID      uuid.UUID
	FoldersCreated  int
	FoldersUpdated  int
	FoldersDeleted  int
	SecretsCreated  int
	SecretsUpdated  int
	SecretsDeleted  int
	FolderVersionID *uuid.UUID
}

// Changed reports whether the rollback wrote anything.
func (r *RollbackResult) Changed() bool {
	return r.FoldersCreated+r.FoldersUpdated+r.FoldersDeleted+
		r.SecretsCreated+r.SecretsUpdated+r.SecretsDeleted > 0
}
