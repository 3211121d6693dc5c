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

// MySQLFolderRepository implements Folder persistence for MySQL.
type MySQLFolderRepository struct {
	db *sql.DB
}

// NewMySQLFolderRepository creates a new MySQL Folder repository instance.
func NewMySQLFolderRepository(db *sql.DB) *MySQLFolderRepository {
	return &MySQLFolderRepository{db: db}
}

// Create inserts a folder.
func (m *MySQLFolderRepository) Create(ctx context.Context, folder *foldersDomain.Folder) error {
	querier := database.GetTx(ctx, m.db)

	id, err := folder.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder id")
	}
	projectID, err := folder.ProjectID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal project id")
	}
	environmentID, err := folder.EnvironmentID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal environment id")
	}
	parentID, err := binaryParent(folder.ParentID)
	if err != nil {
		return err
	}

	query := `INSERT INTO secret_folders (` + folderColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		projectID,
		environmentID,
		parentID,
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
func (m *MySQLFolderRepository) Get(ctx context.Context, environmentID, id uuid.UUID) (*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, m.db)

	envBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal environment id")
	}
	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal folder id")
	}

	query := `SELECT ` + folderColumns + ` FROM secret_folders WHERE environment_id = ? AND id = ?`

	return m.scanOne(querier.QueryRowContext(ctx, query, envBytes, idBytes), "failed to get folder")
}

// GetRoot retrieves the root folder of an environment.
func (m *MySQLFolderRepository) GetRoot(ctx context.Context, environmentID uuid.UUID) (*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, m.db)

	envBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal environment id")
	}

	query := `SELECT ` + folderColumns + ` FROM secret_folders WHERE environment_id = ? AND parent_id IS NULL`

	return m.scanOne(querier.QueryRowContext(ctx, query, envBytes), "failed to get root folder")
}

// GetChild retrieves the child of parentID named name.
func (m *MySQLFolderRepository) GetChild(
	ctx context.Context,
	environmentID, parentID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, m.db)

	envBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal environment id")
	}
	parentBytes, err := parentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal parent id")
	}

	query := `SELECT ` + folderColumns + `
			  FROM secret_folders
			  WHERE environment_id = ? AND parent_id = ? AND name = ?`

	return m.scanOne(querier.QueryRowContext(ctx, query, envBytes, parentBytes, name), "failed to get child folder")
}

// ListByEnvironment returns every folder of an environment ordered by id.
func (m *MySQLFolderRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*foldersDomain.Folder, error) {
	querier := database.GetTx(ctx, m.db)

	envBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal environment id")
	}

	query := `SELECT ` + folderColumns + ` FROM secret_folders WHERE environment_id = ? ORDER BY id`

	rows, err := querier.QueryContext(ctx, query, envBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list folders")
	}
	defer func() {
		_ = rows.Close()
	}()

	folders := make([]*foldersDomain.Folder, 0)
	for rows.Next() {
		folder, err := m.scan(rows)
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

// Update writes a folder whose stored version is still expectedVersion.
func (m *MySQLFolderRepository) Update(ctx context.Context, folder *foldersDomain.Folder, expectedVersion uint) error {
	querier := database.GetTx(ctx, m.db)

	id, err := folder.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder id")
	}
	parentID, err := binaryParent(folder.ParentID)
	if err != nil {
		return err
	}

	query := `UPDATE secret_folders
			  SET parent_id = ?, name = ?, version = ?, updated_at = ?
			  WHERE id = ? AND version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		parentID,
		folder.Name,
		folder.Version,
		folder.UpdatedAt,
		id,
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
func (m *MySQLFolderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal folder id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM secret_folders WHERE id = ?`, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete folder")
	}
	return requireAffected(result, foldersDomain.ErrFolderNotFound)
}

func (m *MySQLFolderRepository) scanOne(row rowScanner, msg string) (*foldersDomain.Folder, error) {
	folder, err := m.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, foldersDomain.ErrFolderNotFound
		}
		return nil, apperrors.Wrap(err, msg)
	}
	return folder, nil
}

func (m *MySQLFolderRepository) scan(row rowScanner) (*foldersDomain.Folder, error) {
	var folder foldersDomain.Folder
	var id, projectID, environmentID, parentID []byte

	err := row.Scan(
		&id,
		&projectID,
		&environmentID,
		&parentID,
		&folder.Name,
		&folder.Version,
		&folder.CreatedAt,
		&folder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := folder.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal folder id")
	}
	if err := folder.ProjectID.UnmarshalBinary(projectID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal project id")
	}
	if err := folder.EnvironmentID.UnmarshalBinary(environmentID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal environment id")
	}
	if parentID != nil {
		var parent uuid.UUID
		if err := parent.UnmarshalBinary(parentID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal parent id")
		}
		folder.ParentID = &parent
	}
	return &folder, nil
}

// binaryParent encodes an optional parent id, nil for the root folder.
func binaryParent(parentID *uuid.UUID) (any, error) {
	if parentID == nil {
		return nil, nil
	}
	b, err := parentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal parent id")
	}
	return b, nil
}
