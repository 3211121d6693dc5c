// Package repository implements persistence for snapshots.
//
// A snapshot row only references history: the secret versions and the folder
// version that were current at capture time. Rows are inserted as capturing and
// finished exactly once.
//
// # Database Support
//
//   - PostgreSQL: native UUID and UUID[] for the secret version references
//   - MySQL: BINARY(16) for UUIDs and a JSON array for the secret version references
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

const snapshotColumns = `id, project_id, environment_id, folder_id, folder_path, version, status,
	secret_version_ids, folder_version_id, failure_reason, actor_kind, actor_id, created_at, updated_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLSnapshotRepository implements Snapshot persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - project_id, environment_id: UUID
//   - folder_id: UUID (no foreign key so snapshots outlive the folder)
//   - folder_path: TEXT
//   - version: INTEGER, UNIQUE (environment_id, version)
//   - status: VARCHAR ('capturing', 'captured' or 'failed')
//   - secret_version_ids: UUID[]
//   - folder_version_id: UUID NULL REFERENCES folder_versions(id)
//   - failure_reason: TEXT
//   - actor_kind: VARCHAR, actor_id: UUID
//   - created_at, updated_at: TIMESTAMPTZ
type PostgreSQLSnapshotRepository struct {
	db *sql.DB
}

// NewPostgreSQLSnapshotRepository creates a new PostgreSQL Snapshot repository instance.
func NewPostgreSQLSnapshotRepository(db *sql.DB) *PostgreSQLSnapshotRepository {
	return &PostgreSQLSnapshotRepository{db: db}
}

// Create inserts a snapshot.
//
// Returns ErrSnapshotExists when (environment_id, version) is already taken.
func (p *PostgreSQLSnapshotRepository) Create(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_snapshots (` + snapshotColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := querier.ExecContext(
		ctx,
		query,
		snapshot.ID,
		snapshot.ProjectID,
		snapshot.EnvironmentID,
		snapshot.FolderID,
		snapshot.FolderPath,
		snapshot.Version,
		snapshot.Status,
		pq.Array(idStrings(snapshot.SecretVersionIDs)),
		nullUUID(snapshot.FolderVersionID),
		snapshot.FailureReason,
		snapshot.Actor.Kind,
		snapshot.Actor.ID,
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
//
// Returns ErrSnapshotNotFound if no row matches.
func (p *PostgreSQLSnapshotRepository) Get(
	ctx context.Context,
	environmentID, id uuid.UUID,
) (*snapshotsDomain.Snapshot, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + snapshotColumns + ` FROM secret_snapshots WHERE environment_id = $1 AND id = $2`

	snapshot, err := p.scan(querier.QueryRowContext(ctx, query, environmentID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshotsDomain.ErrSnapshotNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get snapshot")
	}
	return snapshot, nil
}

// ListByEnvironment returns the snapshots of an environment, newest first.
func (p *PostgreSQLSnapshotRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*snapshotsDomain.Snapshot, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + snapshotColumns + `
			  FROM secret_snapshots
			  WHERE environment_id = $1
			  ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list snapshots")
	}
	defer func() {
		_ = rows.Close()
	}()

	snapshots := make([]*snapshotsDomain.Snapshot, 0)
	for rows.Next() {
		snapshot, err := p.scan(rows)
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
func (p *PostgreSQLSnapshotRepository) LatestVersion(ctx context.Context, environmentID uuid.UUID) (uint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COALESCE(MAX(version), 0) FROM secret_snapshots WHERE environment_id = $1`

	var latest uint
	if err := querier.QueryRowContext(ctx, query, environmentID).Scan(&latest); err != nil {
		return 0, apperrors.Wrap(err, "failed to get latest snapshot version")
	}
	return latest, nil
}

// Finish writes the terminal status of a capturing snapshot.
//
// Returns ErrInvalidTransition when the row is missing or no longer capturing.
func (p *PostgreSQLSnapshotRepository) Finish(ctx context.Context, snapshot *snapshotsDomain.Snapshot) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_snapshots
			  SET status = $1, secret_version_ids = $2, folder_version_id = $3, failure_reason = $4, updated_at = $5
			  WHERE id = $6 AND status = $7`

	result, err := querier.ExecContext(
		ctx,
		query,
		snapshot.Status,
		pq.Array(idStrings(snapshot.SecretVersionIDs)),
		nullUUID(snapshot.FolderVersionID),
		snapshot.FailureReason,
		snapshot.UpdatedAt,
		snapshot.ID,
		snapshotsDomain.StatusCapturing,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to finish snapshot")
	}
	return requireAffected(result, snapshotsDomain.ErrInvalidTransition)
}

func (p *PostgreSQLSnapshotRepository) scan(row rowScanner) (*snapshotsDomain.Snapshot, error) {
	var snapshot snapshotsDomain.Snapshot
	var status, actorKind string
	var versionIDs pq.StringArray
	var folderVersionID uuid.NullUUID
	var actorID uuid.UUID

	err := row.Scan(
		&snapshot.ID,
		&snapshot.ProjectID,
		&snapshot.EnvironmentID,
		&snapshot.FolderID,
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

	if snapshot.Status, err = snapshotsDomain.ParseStatus(status); err != nil {
		return nil, err
	}
	if snapshot.SecretVersionIDs, err = parseIDs(versionIDs); err != nil {
		return nil, err
	}
	if folderVersionID.Valid {
		snapshot.FolderVersionID = &folderVersionID.UUID
	}
	if snapshot.Actor, err = scope.ParseActor(actorKind, actorID); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse secret version id")
		}
		ids[i] = id
	}
	return ids, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func requireAffected(result sql.Result, notMatched error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return notMatched
	}
	return nil
}
