package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

// MySQLSnapshotRepository implements Snapshot persistence for MySQL.
// Secret version references are stored as a JSON array of UUID strings.
type MySQLSnapshotRepository struct {
	db *sql.DB
}

// NewMySQLSnapshotRepository creates a new MySQL Snapshot repository instance.
func NewMySQLSnapshotRepository(db *sql.DB) *MySQLSnapshotRepository {
	return &MySQLSnapshotRepository{db: db}
}

// Create inserts a snapshot.
func (m *MySQLSnapshotRepository) Create(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(
		snapshot.ID, snapshot.ProjectID, snapshot.EnvironmentID, snapshot.FolderID, snapshot.Actor.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal snapshot ids")
	}
	versionIDs, err := json.Marshal(idStrings(snapshot.SecretVersionIDs))
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret version ids")
	}
	folderVersionID, err := nullBinaryUUID(snapshot.FolderVersionID)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder version id")
	}

	query := `INSERT INTO secret_snapshots (` + snapshotColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		ids[0],
		ids[1],
		ids[2],
		ids[3],
		snapshot.FolderPath,
		snapshot.Version,
		snapshot.Status,
		versionIDs,
		folderVersionID,
		snapshot.FailureReason,
		snapshot.Actor.Kind,
		ids[4],
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return snapshotsDomain.ErrSnapshotExists
		}
		return apperrors.Wrap(err, "failed to create snapshot")
	}
	return nil
}

// Get retrieves a snapshot of an environment.
func (m *MySQLSnapshotRepository) Get(
	ctx context.Context,
	environmentID, id uuid.UUID,
) (*snapshotsDomain.Snapshot, error) {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(environmentID, id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal snapshot id")
	}

	query := `SELECT ` + snapshotColumns + ` FROM secret_snapshots WHERE environment_id = ? AND id = ?`

	snapshot, err := m.scan(querier.QueryRowContext(ctx, query, ids...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshotsDomain.ErrSnapshotNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get snapshot")
	}
	return snapshot, nil
}

// ListByEnvironment returns the snapshots of an environment, newest first.
func (m *MySQLSnapshotRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*snapshotsDomain.Snapshot, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal environment id")
	}

	query := `SELECT ` + snapshotColumns + `
			  FROM secret_snapshots
			  WHERE environment_id = ?
			  ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, idBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list snapshots")
	}
	defer func() {
		_ = rows.Close()
	}()

	snapshots := make([]*snapshotsDomain.Snapshot, 0)
	for rows.Next() {
		snapshot, err := m.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan snapshot")
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate snapshots")
	}
	return snapshots, nil
}

// LatestVersion returns the highest snapshot version of an environment, 0 if none.
func (m *MySQLSnapshotRepository) LatestVersion(ctx context.Context, environmentID uuid.UUID) (uint, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal environment id")
	}

	query := `SELECT COALESCE(MAX(version), 0) FROM secret_snapshots WHERE environment_id = ?`

	var latest uint
	if err := querier.QueryRowContext(ctx, query, idBytes).Scan(&latest); err != nil {
		return 0, apperrors.Wrap(err, "failed to get latest snapshot version")
	}
	return latest, nil
}

// Finish writes the terminal status of a capturing snapshot.
func (m *MySQLSnapshotRepository) Finish(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := snapshot.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal snapshot id")
	}
	versionIDs, err := json.Marshal(idStrings(snapshot.SecretVersionIDs))
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret version ids")
	}
	folderVersionID, err := nullBinaryUUID(snapshot.FolderVersionID)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder version id")
	}

	query := `UPDATE secret_snapshots
			  SET status = ?, secret_version_ids = ?, folder_version_id = ?, failure_reason = ?, updated_at = ?
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		snapshot.Status,
		versionIDs,
		folderVersionID,
		snapshot.FailureReason,
		snapshot.UpdatedAt,
		idBytes,
		snapshotsDomain.StatusCapturing,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to finish snapshot")
	}
	return requireAffected(result, snapshotsDomain.ErrInvalidTransition)
}

func (m *MySQLSnapshotRepository) scan(row rowScanner) (*snapshotsDomain.Snapshot, error) {
	var snapshot snapshotsDomain.Snapshot
	var id, projectID, environmentID, folderID, folderVersionID, actorID, versionIDs []byte
	var status, actorKind string

	err := row.Scan(
		&id,
		&projectID,
		&environmentID,
		&folderID,
		&snapshot.FolderPath,
		&snapshot.Version,
		&status,
		&versionIDs,
		&folderVersionID,
		&snapshot.FailureReason,
		&actorKind,
		&actorID,
		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalUUIDs(
		[][]byte{id, projectID, environmentID, folderID, actorID},
		&snapshot.ID, &snapshot.ProjectID, &snapshot.EnvironmentID, &snapshot.FolderID, &snapshot.Actor.ID,
	); err != nil {
		return nil, err
	}
	if folderVersionID != nil {
		var fv uuid.UUID
		if err := fv.UnmarshalBinary(folderVersionID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal folder version id")
		}
		snapshot.FolderVersionID = &fv
	}

	var raw []string
	if err := json.Unmarshal(versionIDs, &raw); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal secret version ids")
	}
	if snapshot.SecretVersionIDs, err = parseIDs(raw); err != nil {
		return nil, err
	}
	if snapshot.Status, err = snapshotsDomain.ParseStatus(status); err != nil {
		return nil, err
	}
	if snapshot.Actor, err = scope.ParseActor(actorKind, snapshot.Actor.ID); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func nullBinaryUUID(id *uuid.UUID) (any, error) {
	if id == nil {
		return nil, nil
	}
	return id.MarshalBinary()
}

func marshalUUIDs(ids ...uuid.UUID) ([]any, error) {
	out := make([]any, len(ids))
	for i, id := range ids {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func unmarshalUUIDs(raw [][]byte, dst ...*uuid.UUID) error {
	for i, b := range raw {
		if err := dst[i].UnmarshalBinary(b); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal uuid")
		}
	}
	return nil
}
