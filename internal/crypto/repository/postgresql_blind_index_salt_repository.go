package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
)

// PostgreSQLBlindIndexSaltRepository implements blind index salt persistence for PostgreSQL.
//
// Database schema requirements:
//   - project_id: UUID PRIMARY KEY
//   - kms_key_id: UUID REFERENCES kms_keys(id) (project key version sealing the salt)
//   - encrypted_salt: BYTEA
//   - created_at, updated_at: TIMESTAMPTZ
//
// The salt itself never changes for the life of a project; only its sealing key
// does, when the project key rotates.
type PostgreSQLBlindIndexSaltRepository struct {
	db *sql.DB
}

// NewPostgreSQLBlindIndexSaltRepository creates a new PostgreSQL salt repository instance.
func NewPostgreSQLBlindIndexSaltRepository(db *sql.DB) *PostgreSQLBlindIndexSaltRepository {
	return &PostgreSQLBlindIndexSaltRepository{db: db}
}

// Create inserts the salt of a project. Returns ErrScopeAlreadyProvisioned when
// the project already has one.
func (p *PostgreSQLBlindIndexSaltRepository) Create(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO blind_index_salts (project_id, kms_key_id, encrypted_salt, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(
		ctx,
		query,
		salt.ProjectID,
		salt.KmsKeyID,
		salt.EncryptedSalt,
		salt.CreatedAt,
		salt.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return cryptoDomain.ErrScopeAlreadyProvisioned
		}
		return apperrors.Wrap(err, "failed to create blind index salt")
	}
	return nil
}

// Get retrieves the sealed salt of a project. Returns ErrBlindIndexSaltNotFound if absent.
func (p *PostgreSQLBlindIndexSaltRepository) Get(
	ctx context.Context,
	projectID uuid.UUID,
) (*cryptoDomain.BlindIndexSalt, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT project_id, kms_key_id, encrypted_salt, created_at, updated_at
			  FROM blind_index_salts WHERE project_id = $1`

	var salt cryptoDomain.BlindIndexSalt
	err := querier.QueryRowContext(ctx, query, projectID).Scan(
		&salt.ProjectID,
		&salt.KmsKeyID,
		&salt.EncryptedSalt,
		&salt.CreatedAt,
		&salt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cryptoDomain.ErrBlindIndexSaltNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get blind index salt")
	}
	return &salt, nil
}

// Update replaces the sealed salt and its sealing key, used when the project key rotates.
func (p *PostgreSQLBlindIndexSaltRepository) Update(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE blind_index_salts
			  SET kms_key_id = $1, encrypted_salt = $2, updated_at = $3
			  WHERE project_id = $4`

	result, err := querier.ExecContext(ctx, query, salt.KmsKeyID, salt.EncryptedSalt, salt.UpdatedAt, salt.ProjectID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update blind index salt")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows")
	}
	if affected == 0 {
		return cryptoDomain.ErrBlindIndexSaltNotFound
	}
	return nil
}
