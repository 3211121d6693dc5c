// Package repository implements persistence for secret and folder version history.
//
// Both tables are append-only: rows are inserted and read, never updated or
// deleted. The unique indexes on (secret_id, version) and (folder_id, version)
// are what makes concurrent writers across processes safe; a unique violation is
// reported as ErrVersionConflict so the caller can retry the whole operation.
//
// # Database Support
//
//   - PostgreSQL: native UUID, BYTEA, TEXT[] for tags and JSONB for folder trees
//   - MySQL: BINARY(16) for UUIDs, BLOB, and JSON for tags and folder trees
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
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

const secretVersionColumns = `id, secret_id, project_id, environment_id, folder_id, blind_index, kms_key_id,
	encrypted_key, encrypted_value, encrypted_comment, tags, version, deleted, actor_kind, actor_id, created_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLSecretVersionRepository implements SecretVersion persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - secret_id, project_id, environment_id, folder_id, kms_key_id: UUID
//   - blind_index: VARCHAR(32)
//   - encrypted_key, encrypted_value: BYTEA NOT NULL
//   - encrypted_comment: BYTEA NULL
//   - tags: TEXT[]
//   - version: INTEGER, UNIQUE (secret_id, version)
//   - deleted: BOOLEAN
//   - actor_kind: VARCHAR, actor_id: UUID
//   - created_at: TIMESTAMPTZ
//
// secret_id carries no foreign key: history outlives the live secret row.
type PostgreSQLSecretVersionRepository struct {
	db *sql.DB
}

// NewPostgreSQLSecretVersionRepository creates a new PostgreSQL SecretVersion repository instance.
func NewPostgreSQLSecretVersionRepository(db *sql.DB) *PostgreSQLSecretVersionRepository {
	return &PostgreSQLSecretVersionRepository{db: db}
}

// Create appends a secret version.
//
// A unique violation on (secret_id, version) means a concurrent writer already
// recorded this version and is reported as ErrVersionConflict.
func (p *PostgreSQLSecretVersionRepository) Create(ctx context.Context, version *versionsDomain.SecretVersion) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_versions (` + secretVersionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := querier.ExecContext(
		ctx,
		query,
		version.ID,
		version.SecretID,
		version.ProjectID,
		version.EnvironmentID,
		version.FolderID,
		version.BlindIndex,
		version.KmsKeyID,
		version.EncryptedKey,
		version.EncryptedValue,
		nullBytes(version.EncryptedComment),
		pq.Array(tagsOrEmpty(version.Tags)),
		version.Version,
		version.Deleted,
		version.Actor.Kind,
		version.Actor.ID,
		version.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return versionsDomain.ErrVersionConflict
		}
		return apperrors.Wrap(err, "failed to create secret version")
	}
	return nil
}

// Get retrieves a secret version by id.
//
// Returns ErrSecretVersionNotFound if no row matches.
func (p *PostgreSQLSecretVersionRepository) Get(ctx context.Context, id uuid.UUID) (*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretVersionColumns + ` FROM secret_versions WHERE id = $1`

	return p.scanOne(querier.QueryRowContext(ctx, query, id), "failed to get secret version")
}

// GetByVersion retrieves version n of a secret.
func (p *PostgreSQLSecretVersionRepository) GetByVersion(
	ctx context.Context,
	secretID uuid.UUID,
	version uint,
) (*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE secret_id = $1 AND version = $2`

	return p.scanOne(querier.QueryRowContext(ctx, query, secretID, version), "failed to get secret version")
}

// Latest retrieves the highest version of a secret.
//
// Returns ErrSecretVersionNotFound if the secret has no history.
func (p *PostgreSQLSecretVersionRepository) Latest(
	ctx context.Context,
	secretID uuid.UUID,
) (*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE secret_id = $1
			  ORDER BY version DESC
			  LIMIT 1`

	return p.scanOne(querier.QueryRowContext(ctx, query, secretID), "failed to get latest secret version")
}

// ListBySecret returns the history of a secret, oldest first.
func (p *PostgreSQLSecretVersionRepository) ListBySecret(
	ctx context.Context,
	secretID uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE secret_id = $1
			  ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, secretID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	return p.scanAll(rows)
}

// ListByIDs returns the secret versions with the given ids.
//
// Uses = ANY($1) so the statement has a fixed shape regardless of len(ids).
func (p *PostgreSQLSecretVersionRepository) ListByIDs(
	ctx context.Context,
	ids []uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	if len(ids) == 0 {
		return []*versionsDomain.SecretVersion{}, nil
	}

	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE id = ANY($1)`

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := querier.QueryContext(ctx, query, pq.Array(strIDs))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	return p.scanAll(rows)
}

func (p *PostgreSQLSecretVersionRepository) scanOne(
	row rowScanner,
	msg string,
) (*versionsDomain.SecretVersion, error) {
	version, err := p.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionsDomain.ErrSecretVersionNotFound
		}
		return nil, apperrors.Wrap(err, msg)
	}
	return version, nil
}

func (p *PostgreSQLSecretVersionRepository) scanAll(rows *sql.Rows) ([]*versionsDomain.SecretVersion, error) {
	defer func() {
		_ = rows.Close()
	}()

	versions := make([]*versionsDomain.SecretVersion, 0)
	for rows.Next() {
		version, err := p.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret version")
		}
		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secret versions")
	}
	return versions, nil
}

func (p *PostgreSQLSecretVersionRepository) scan(row rowScanner) (*versionsDomain.SecretVersion, error) {
	var version versionsDomain.SecretVersion
	var actorKind string
	var actorID uuid.UUID

	err := row.Scan(
		&version.ID,
		&version.SecretID,
		&version.ProjectID,
		&version.EnvironmentID,
		&version.FolderID,
		&version.BlindIndex,
		&version.KmsKeyID,
		&version.EncryptedKey,
		&version.EncryptedValue,
		&version.EncryptedComment,
		pq.Array(&version.Tags),
		&version.Version,
		&version.Deleted,
		&actorKind,
		&actorID,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if version.Actor, err = scope.ParseActor(actorKind, actorID); err != nil {
		return nil, err
	}
	return &version, nil
}

// nullBytes maps an absent optional blob to SQL NULL.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
