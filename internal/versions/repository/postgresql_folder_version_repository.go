package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

const folderVersionColumns = `id, environment_id, folder_id, version, nodes, actor_kind, actor_id, created_at`

// PostgreSQLFolderVersionRepository implements FolderVersion persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - environment_id: UUID
//   - folder_id: UUID (subtree root; no foreign key so history survives deletes)
//   - version: INTEGER, UNIQUE (folder_id, version)
//   - nodes: JSONB (the tree arena: folder_id, name, parent and children per node)
//   - actor_kind: VARCHAR, actor_id: UUID
//   - created_at: TIMESTAMPTZ
type PostgreSQLFolderVersionRepository struct {
	db *sql.DB
}

// NewPostgreSQLFolderVersionRepository creates a new PostgreSQL FolderVersion repository instance.
func NewPostgreSQLFolderVersionRepository(db *sql.DB) *PostgreSQLFolderVersionRepository {
	return &PostgreSQLFolderVersionRepository{db: db}
}

// Create appends a folder version.
//
// Returns ErrVersionConflict when (folder_id, version) is already taken.
func (p *PostgreSQLFolderVersionRepository) Create(ctx context.Context, version *versionsDomain.FolderVersion) error {
	querier := database.GetTx(ctx, p.db)

	nodes, err := json.Marshal(version.Nodes)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder tree")
	}

	query := `INSERT INTO folder_versions (` + folderVersionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = querier.ExecContext(
		ctx,
		query,
		version.ID,
		version.EnvironmentID,
		version.FolderID,
		version.Version,
		nodes,
		version.Actor.Kind,
		version.Actor.ID,
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
//
// Returns ErrFolderVersionNotFound if no row matches.
func (p *PostgreSQLFolderVersionRepository) Get(ctx context.Context, id uuid.UUID) (*versionsDomain.FolderVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + folderVersionColumns + ` FROM folder_versions WHERE id = $1`

	version, err := p.scan(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionsDomain.ErrFolderVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get folder version")
	}
	return version, nil
}

// Latest retrieves the highest version recorded for a subtree root.
//
// Returns ErrFolderVersionNotFound if none exists.
func (p *PostgreSQLFolderVersionRepository) Latest(
	ctx context.Context,
	folderID uuid.UUID,
) (*versionsDomain.FolderVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + folderVersionColumns + `
			  FROM folder_versions
			  WHERE folder_id = $1
			  ORDER BY version DESC
			  LIMIT 1`

	version, err := p.scan(querier.QueryRowContext(ctx, query, folderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionsDomain.ErrFolderVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get latest folder version")
	}
	return version, nil
}

func (p *PostgreSQLFolderVersionRepository) scan(row rowScanner) (*versionsDomain.FolderVersion, error) {
	var version versionsDomain.FolderVersion
	var nodes []byte
	var actorKind string
	var actorID uuid.UUID

	err := row.Scan(
		&version.ID,
		&version.EnvironmentID,
		&version.FolderID,
		&version.Version,
		&nodes,
		&actorKind,
		&actorID,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeNodes(nodes, &version); err != nil {
		return nil, err
	}
	if version.Actor, err = scope.ParseActor(actorKind, actorID); err != nil {
		return nil, err
	}
	return &version, nil
}

// decodeNodes unmarshals the JSON tree arena of a folder version.
func decodeNodes(raw []byte, version *versionsDomain.FolderVersion) error {
	if err := json.Unmarshal(raw, &version.Nodes); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal folder tree")
	}
	if version.Nodes == nil {
		version.Nodes = []foldersDomain.TreeNode{}
	}
	return nil
}
