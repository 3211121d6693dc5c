// Package repository implements persistence for the key hierarchy.
//
// It stores KmsKey versions (organization and project keys) and project blind
// index salts in PostgreSQL and MySQL. Every method resolves its querier through
// database.GetTx, so calls made inside TxManager.WithTx join the transaction; key
// rotation relies on this to retire and insert versions atomically.
//
// # Database Support
//
// Each repository type has two implementations:
//   - PostgreSQL: native UUID type, BYTEA for key material, partial unique index for the active key
//   - MySQL: BINARY(16) for UUIDs, BLOB for key material, generated column for the active key
//
// # Error Mapping
//
// Missing rows map to crypto domain sentinels that wrap ErrKeyUnavailable, never
// ErrNotFound: a blob that references a missing key is damaged data, not an
// absent resource.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
)

const kmsKeyColumns = `id, scope_type, scope_id, parent_key_id, external_provider_ref, algorithm,
	encrypted_key, version, is_active, is_reserved, created_at, retired_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLKmsKeyRepository implements KmsKey persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - scope_type: VARCHAR ("organization" or "project")
//   - scope_id: UUID
//   - parent_key_id: UUID NULL (organization key version sealing a project key)
//   - external_provider_ref: VARCHAR (root custodian reference of organization keys)
//   - algorithm: VARCHAR
//   - encrypted_key: BYTEA
//   - version: INTEGER, UNIQUE (scope_type, scope_id, version)
//   - is_active: BOOLEAN, at most one active row per scope (partial unique index)
//   - is_reserved: BOOLEAN
//   - created_at, retired_at: TIMESTAMPTZ
//
// Rows are append-only apart from the retirement flags: encrypted_key of an
// existing version is never rewritten.
type PostgreSQLKmsKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLKmsKeyRepository creates a new PostgreSQL KmsKey repository instance.
func NewPostgreSQLKmsKeyRepository(db *sql.DB) *PostgreSQLKmsKeyRepository {
	return &PostgreSQLKmsKeyRepository{db: db}
}

// Create inserts a new key version.
//
// A unique violation means another writer already inserted this version or an
// active key for the scope, and is reported as ErrKeyRotationConflict.
func (p *PostgreSQLKmsKeyRepository) Create(ctx context.Context, key *cryptoDomain.KmsKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO kms_keys (` + kmsKeyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var parentID uuid.NullUUID
	if key.ParentKeyID != nil {
		parentID = uuid.NullUUID{UUID: *key.ParentKeyID, Valid: true}
	}

	_, err := querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.ScopeType,
		key.ScopeID,
		parentID,
		key.ExternalProviderRef,
		key.Algorithm,
		key.EncryptedKey,
		key.Version,
		key.IsActive,
		key.IsReserved,
		key.CreatedAt,
		key.RetiredAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return cryptoDomain.ErrKeyRotationConflict
		}
		return apperrors.Wrap(err, "failed to create kms key")
	}
	return nil
}

// Get retrieves a key version by id, active or retired.
//
// Returns ErrKmsKeyNotFound if no row matches.
func (p *PostgreSQLKmsKeyRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.KmsKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + kmsKeyColumns + ` FROM kms_keys WHERE id = $1`

	key, err := p.scan(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cryptoDomain.ErrKmsKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kms key")
	}
	return key, nil
}

// GetActive retrieves the active key version of a scope.
//
// Returns ErrKeyNotProvisioned if the scope has no active key.
func (p *PostgreSQLKmsKeyRepository) GetActive(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) (*cryptoDomain.KmsKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + kmsKeyColumns + `
			  FROM kms_keys
			  WHERE scope_type = $1 AND scope_id = $2 AND is_active = true`

	key, err := p.scan(querier.QueryRowContext(ctx, query, scope.Type, scope.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cryptoDomain.ErrKeyNotProvisioned
		}
		return nil, apperrors.Wrap(err, "failed to get active kms key")
	}
	return key, nil
}

// ListByScope returns every version of a scope's key, newest first.
func (p *PostgreSQLKmsKeyRepository) ListByScope(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) ([]*cryptoDomain.KmsKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + kmsKeyColumns + `
			  FROM kms_keys
			  WHERE scope_type = $1 AND scope_id = $2
			  ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, scope.Type, scope.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list kms keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.KmsKey
	for rows.Next() {
		key, err := p.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan kms key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate kms keys")
	}

	return keys, nil
}

// Retire deactivates a key version with compare-and-swap semantics.
//
// The update only matches a row that is still active. If no row is affected,
// another rotation retired the key first and ErrKeyRotationConflict is returned.
func (p *PostgreSQLKmsKeyRepository) Retire(ctx context.Context, id uuid.UUID, retiredAt time.Time) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE kms_keys
			  SET is_active = false, retired_at = $1
			  WHERE id = $2 AND is_active = true`

	result, err := querier.ExecContext(ctx, query, retiredAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to retire kms key")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows")
	}
	if affected != 1 {
		return cryptoDomain.ErrKeyRotationConflict
	}
	return nil
}

func (p *PostgreSQLKmsKeyRepository) scan(row rowScanner) (*cryptoDomain.KmsKey, error) {
	var key cryptoDomain.KmsKey
	var parentID uuid.NullUUID
	var retiredAt sql.NullTime

	err := row.Scan(
		&key.ID,
		&key.ScopeType,
		&key.ScopeID,
		&parentID,
		&key.ExternalProviderRef,
		&key.Algorithm,
		&key.EncryptedKey,
		&key.Version,
		&key.IsActive,
		&key.IsReserved,
		&key.CreatedAt,
		&retiredAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		key.ParentKeyID = &parentID.UUID
	}
	if retiredAt.Valid {
		key.RetiredAt = &retiredAt.Time
	}
	return &key, nil
}
