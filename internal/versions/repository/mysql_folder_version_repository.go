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
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

// MySQLFolderVersionRepository implements FolderVersion persistence for MySQL.
// The tree arena is stored in a JSON column.
type MySQLFolderVersionRepository struct {
	db *sql.DB
}

// NewMySQLFolderVersionRepository creates a new MySQL FolderVersion repository instance.
func NewMySQLFolderVersionRepository(db *sql.DB) *MySQLFolderVersionRepository {
	return &MySQLFolderVersionRepository{db: db}
}

// Create appends a folder version.
func (m *MySQLFolderVersionRepository) Create(ctx context.Context, version *versionsDomain.FolderVersion) error {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(version.ID, version.EnvironmentID, version.FolderID, version.Actor.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder version ids")
	}
	nodes, err := json.Marshal(version.Nodes)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder tree")
	}

	query := `INSERT INTO folder_versions (` + folderVersionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		ids[0],
		ids[1],
		ids[2],
		version.Version,
		nodes,
		version.Actor.Kind,
		ids[3],
		version.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return versionsDomain.ErrVersionConflict
		}
		return apperrors.Wrap(err, "failed to create folder version")
	}
	return nil
}

// Get retrieves a folder version by id.
func (m *MySQLFolderVersionRepository) Get(ctx context.Context, id uuid.UUID) (*versionsDomain.FolderVersion, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal folder version id")
	}

	query := `SELECT ` + folderVersionColumns + ` FROM folder_versions WHERE id = ?`

	version, err := m.scan(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionsDomain.ErrFolderVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get folder version")
	}
	return version, nil
}

// Latest retrieves the highest version recorded for a subtree root.
func (m *MySQLFolderVersionRepository) Latest(
	ctx context.Context,
	folderID uuid.UUID,
) (*versionsDomain.FolderVersion, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := folderID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal folder id")
	}

	query := `SELECT ` + folderVersionColumns + `
			  FROM folder_versions
			  WHERE folder_id = ?
			  ORDER BY version DESC
			  LIMIT 1`

	version, err := m.scan(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionsDomain.ErrFolderVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get latest folder version")
	}
	return version, nil
}

func (m *MySQLFolderVersionRepository) scan(row rowScanner) (*versionsDomain.FolderVersion, error) {
	var version versionsDomain.FolderVersion
	var id, environmentID, folderID, actorID, nodes []byte
	var actorKind string

	err := row.Scan(
		&id,
		&environmentID,
		&folderID,
		&version.Version,
		&nodes,
		&actorKind,
		&actorID,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalUUIDs(
		[][]byte{id, environmentID, folderID, actorID},
		&version.ID, &version.EnvironmentID, &version.FolderID, &version.Actor.ID,
	); err != nil {
		return nil, err
	}
	if err := decodeNodes(nodes, &version); err != nil {
		return nil, err
	}
	if version.Actor, err = scope.ParseActor(actorKind, version.Actor.ID); err != nil {
		return nil, err
	}
	return &version, nil
}
