// Package repository implements persistence for the folder tree of an environment.
//
// Each environment has at most one row with a NULL parent_id (its root) and
// sibling names are unique. Renames and moves are compare-and-swap updates on the
// folder version.
//
// # Database Support
//
//   - PostgreSQL: native UUID, partial unique index for the root folder
//   - MySQL: BINARY(16) UUIDs, a generated column emulates the partial index
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
)

const folderColumns = `id, project_id, environment_id, parent_id, name, version, created_at, updated_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLFolderRepository implements Folder persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - project_id, environment_id: UUID
//   - parent_id: UUID NULL REFERENCES secret_folders(id)
//   - name: VARCHAR(255), UNIQUE (environment_id, parent_id, name)
//   - version: INTEGER
//   - created_at, updated_at: TIMESTAMPTZ
//   - UNIQUE (environment_id) WHERE parent_id IS NULL
type PostgreSQLFolderRepository struct {
	db *sql.DB
}

// NewPostgreSQLFolderRepository creates a new PostgreSQL Folder repository instance.
func NewPostgreSQLFolderRepository(db *sql.DB) *PostgreSQLFolderRepository {
	return &PostgreSQLFolderRepository{db: db}
}

// Create inserts a folder.
//
// Returns ErrFolderExists when a sibling has the same name or the environment
// already has a root.
func (p *PostgreSQLFolderRepository) Create(ctx context.Context, folder *foldersDomain.Folder) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_folders (` + folderColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(
		ctx,
		query,
		folder.ID,
		folder.ProjectID,
		folder.EnvironmentID,
		nullUUID(folder.ParentID),
		folder.Name,
		folder.Version,
		folder.CreatedAt,
		folder.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return foldersDomain.ErrFolderExists
		}
		return apperrors.Wrap(err, "failed to create folder")
	}
	return nil
}

// Get retrieves a folder of an environment.
//
// Returns ErrFolderNotFound if the folder does not exist in the environment.
func (p *PostgreSQLFolderRepository) Get(
	ctx context.Context,
	environmentID, id uuid.UUID,
) (*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + folderColumns + ` FROM secret_folders WHERE environment_id = $1 AND id = $2`

	return p.scanOne(querier.QueryRowContext(ctx, query, environmentID, id), "failed to get folder")
}

// GetRoot retrieves the root folder of an environment.
func (p *PostgreSQLFolderRepository) GetRoot(ctx context.Context, environmentID uuid.UUID) (*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + folderColumns + ` FROM secret_folders WHERE environment_id = $1 AND parent_id IS NULL`

	return p.scanOne(querier.QueryRowContext(ctx, query, environmentID), "failed to get root folder")
}

// GetChild retrieves the child of parentID named name.
func (p *PostgreSQLFolderRepository) GetChild(
	ctx context.Context,
	environmentID, parentID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + folderColumns + `
			  FROM secret_folders
			  WHERE environment_id = $1 AND parent_id = $2 AND name = $3`

	return p.scanOne(querier.QueryRowContext(ctx, query, environmentID, parentID, name), "failed to get child folder")
}

// ListByEnvironment returns every folder of an environment ordered by id.
func (p *PostgreSQLFolderRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + folderColumns + ` FROM secret_folders WHERE environment_id = $1 ORDER BY id`

	rows, err := querier.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list folders")
	}
	defer func() {
		_ = rows.Close()
	}()

	folders := make([]*foldersDomain.Folder, 0)
	for rows.Next() {
		folder, err := p.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan folder")
		}
		folders = append(folders, folder)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate folders")
	}
	return folders, nil
}

// Update writes name, parent, version and updated_at of a folder whose stored
// version is still expectedVersion.
//
// Returns ErrFolderModified when no row matched and ErrFolderExists on a sibling
// name clash.
func (p *PostgreSQLFolderRepository) Update(
	ctx context.Context,
	folder *foldersDomain.Folder,
	expectedVersion uint,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_folders
			  SET parent_id = $1, name = $2, version = $3, updated_at = $4
			  WHERE id = $5 AND version = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		nullUUID(folder.ParentID),
		folder.Name,
		folder.Version,
		folder.UpdatedAt,
		folder.ID,
		expectedVersion,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return foldersDomain.ErrFolderExists
		}
		return apperrors.Wrap(err, "failed to update folder")
	}
	return requireAffected(result, foldersDomain.ErrFolderModified)
}

// Delete removes a folder.
//
// Child folders and secrets reference the row, so they must be deleted first.
func (p *PostgreSQLFolderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM secret_folders WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete folder")
	}
	return requireAffected(result, foldersDomain.ErrFolderNotFound)
}

func (p *PostgreSQLFolderRepository) scanOne(row rowScanner, msg string) (*foldersDomain.Folder, error) {
	folder, err := p.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, foldersDomain.ErrFolderNotFound
		}
		return nil, apperrors.Wrap(err, msg)
	}
	return folder, nil
}

func (p *PostgreSQLFolderRepository) scan(row rowScanner) (*foldersDomain.Folder, error) {
	var folder foldersDomain.Folder
	var parentID uuid.NullUUID

	err := row.Scan(
		&folder.ID,
		&folder.ProjectID,
		&folder.EnvironmentID,
		&parentID,
		&folder.Name,
		&folder.Version,
		&folder.CreatedAt,
		&folder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		folder.ParentID = &parentID.UUID
	}
	return &folder, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// requireAffected returns notMatched when the statement changed no row.
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
