// Package repository implements persistence for live secrets.
//
// A secrets row holds the current state of a secret: its sealed name, value and
// comment, the blind index of its name and the key version wrapping its data
// keys. History lives in secret_versions. Updates and deletes carry the version
// the caller read as an optimistic predicate.
//
// # Database Support
//
//   - PostgreSQL: native UUID, BYTEA and TEXT[] for tags
//   - MySQL: BINARY(16) for UUIDs, BLOB and a JSON array for tags
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

const secretColumns = `id, project_id, environment_id, folder_id, blind_index, kms_key_id,
	encrypted_key, encrypted_value, encrypted_comment, tags, version, created_at, updated_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLSecretRepository implements Secret persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - project_id, environment_id: UUID
//   - folder_id: UUID REFERENCES secret_folders(id)
//   - blind_index: VARCHAR(32), UNIQUE (folder_id, blind_index)
//   - kms_key_id: UUID REFERENCES kms_keys(id)
//   - encrypted_key, encrypted_value: BYTEA NOT NULL
//   - encrypted_comment: BYTEA NULL
//   - tags: TEXT[]
//   - version: INTEGER
//   - created_at, updated_at: TIMESTAMPTZ
type PostgreSQLSecretRepository struct {
	db *sql.DB
}

// NewPostgreSQLSecretRepository creates a new PostgreSQL Secret repository instance.
func NewPostgreSQLSecretRepository(db *sql.DB) *PostgreSQLSecretRepository {
	return &PostgreSQLSecretRepository{db: db}
}

// Create inserts a secret.
//
// Returns ErrDuplicateSecret when the folder already holds a secret with the same
// blind index.
func (p *PostgreSQLSecretRepository) Create(ctx context.Context, secret *secretsDomain.Secret) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secrets (` + secretColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := querier.ExecContext(
		ctx,
		query,
		secret.ID,
		secret.ProjectID,
		secret.EnvironmentID,
		secret.FolderID,
		secret.BlindIndex,
		secret.KmsKeyID,
		secret.EncryptedKey,
		secret.EncryptedValue,
		nullBytes(secret.EncryptedComment),
		pq.Array(tagsOrEmpty(secret.Tags)),
		secret.Version,
		secret.CreatedAt,
		secret.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return secretsDomain.ErrDuplicateSecret
		}
		return apperrors.Wrap(err, "failed to create secret")
	}
	return nil
}

// Get retrieves a secret of an environment.
func (p *PostgreSQLSecretRepository) Get(
	ctx context.Context,
	environmentID, id uuid.UUID,
) (*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets WHERE environment_id = $1 AND id = $2`

	return p.scanOne(querier.QueryRowContext(ctx, query, environmentID, id), "failed to get secret")
}

// GetByBlindIndex retrieves the secret of a folder whose name has the given index.
func (p *PostgreSQLSecretRepository) GetByBlindIndex(
	ctx context.Context,
	folderID uuid.UUID,
	blindIndex string,
) (*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets WHERE folder_id = $1 AND blind_index = $2`

	return p.scanOne(
		querier.QueryRowContext(ctx, query, folderID, blindIndex),
		"failed to get secret by blind index",
	)
}

// ListByFolder returns the secrets of a folder ordered by creation.
func (p *PostgreSQLSecretRepository) ListByFolder(
	ctx context.Context,
	folderID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets WHERE folder_id = $1 ORDER BY created_at, id`

	rows, err := querier.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets")
	}
	return p.scanAll(rows)
}

// ListByEnvironment returns every secret of an environment ordered by creation.
func (p *PostgreSQLSecretRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets WHERE environment_id = $1 ORDER BY created_at, id`

	rows, err := querier.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets")
	}
	return p.scanAll(rows)
}

// ListForRewrap returns the next batch of a project's secrets still wrapped by a
// key other than activeKeyID. The id cursor keeps batches stable while rows move
// onto the active key.
func (p *PostgreSQLSecretRepository) ListForRewrap(
	ctx context.Context,
	projectID, activeKeyID, afterID uuid.UUID,
	limit int,
) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE project_id = $1 AND kms_key_id <> $2 AND id > $3
			  ORDER BY id
			  LIMIT $4`

	rows, err := querier.QueryContext(ctx, query, projectID, activeKeyID, afterID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets for rewrap")
	}
	return p.scanAll(rows)
}

// Update writes every mutable column of a secret whose stored version is still
// expectedVersion.
//
// Returns ErrSecretModified when no row matched and ErrDuplicateSecret when the
// new name clashes in the folder.
func (p *PostgreSQLSecretRepository) Update(
	ctx context.Context,
	secret *secretsDomain.Secret,
	expectedVersion uint,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secrets
			  SET folder_id = $1, blind_index = $2, kms_key_id = $3, encrypted_key = $4,
			      encrypted_value = $5, encrypted_comment = $6, tags = $7, version = $8, updated_at = $9
			  WHERE id = $10 AND version = $11`

	result, err := querier.ExecContext(
		ctx,
		query,
		secret.FolderID,
		secret.BlindIndex,
		secret.KmsKeyID,
		secret.EncryptedKey,
		secret.EncryptedValue,
		nullBytes(secret.EncryptedComment),
		pq.Array(tagsOrEmpty(secret.Tags)),
		secret.Version,
		secret.UpdatedAt,
		secret.ID,
		expectedVersion,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return secretsDomain.ErrDuplicateSecret
		}
		return apperrors.Wrap(err, "failed to update secret")
	}
	return requireAffected(result, secretsDomain.ErrSecretModified)
}

// Delete removes a secret whose stored version is still expectedVersion.
func (p *PostgreSQLSecretRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion uint) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM secrets WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete secret")
	}
	return requireAffected(result, secretsDomain.ErrSecretModified)
}

func (p *PostgreSQLSecretRepository) scanOne(row rowScanner, msg string) (*secretsDomain.Secret, error) {
	secret, err := p.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, apperrors.Wrap(err, msg)
	}
	return secret, nil
}

func (p *PostgreSQLSecretRepository) scanAll(rows *sql.Rows) ([]*secretsDomain.Secret, error) {
	defer func() {
		_ = rows.Close()
	}()

	secrets := make([]*secretsDomain.Secret, 0)
	for rows.Next() {
		secret, err := p.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret")
		}
		secrets = append(secrets, secret)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secrets")
	}
	return secrets, nil
}

func (p *PostgreSQLSecretRepository) scan(row rowScanner) (*secretsDomain.Secret, error) {
	var secret secretsDomain.Secret
	var tags pq.StringArray

	err := row.Scan(
		&secret.ID,
		&secret.ProjectID,
		&secret.EnvironmentID,
		&secret.FolderID,
		&secret.BlindIndex,
		&secret.KmsKeyID,
		&secret.EncryptedKey,
		&secret.EncryptedValue,
		&secret.EncryptedComment,
		&tags,
		&secret.Version,
		&secret.CreatedAt,
		&secret.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	secret.Tags = tagsOrEmpty(tags)
	return &secret, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// nullBytes stores an absent comment as NULL instead of an empty blob.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
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
