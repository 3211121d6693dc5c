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

// MySQLBlindIndexSaltRepository implements blind index salt persistence for MySQL.
type MySQLBlindIndexSaltRepository struct {
	db *sql.DB
}

// NewMySQLBlindIndexSaltRepository creates a new MySQL salt repository instance.
func NewMySQLBlindIndexSaltRepository(db *sql.DB) *MySQLBlindIndexSaltRepository {
	return &MySQLBlindIndexSaltRepository{db: db}
}

// Create inserts the salt of a project.
func (m *MySQLBlindIndexSaltRepository) Create(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error {
	querier := database.GetTx(ctx, m.db)

	projectID, err := salt.ProjectID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal project id")
	}
	keyID, err := salt.KmsKeyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kms key id")
	}

	query := `INSERT INTO blind_index_salts (project_id, kms_key_id, encrypted_salt, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, projectID, keyID, salt.EncryptedSalt, salt.CreatedAt, salt.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return cryptoDomain.ErrScopeAlreadyProvisioned
		}
		return apperrors.Wrap(err, "failed to create blind index salt")
	}
	return nil
}

// Get retrieves the sealed salt of a project.
func (m *MySQLBlindIndexSaltRepository) Get(
	ctx context.Context,
	projectID uuid.UUID,
) (*cryptoDomain.BlindIndexSalt, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := projectID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal project id")
	}

	query := `SELECT project_id, kms_key_id, encrypted_salt, created_at, updated_at
			  FROM blind_index_salts WHERE project_id = ?`

	var salt cryptoDomain.BlindIndexSalt
	var projectBytes, keyBytes []byte
	err = querier.QueryRowContext(ctx, query, id).Scan(
		&projectBytes,
		&keyBytes,
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

	if err := salt.ProjectID.UnmarshalBinary(projectBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal project id")
	}
	if err := salt.KmsKeyID.UnmarshalBinary(keyBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal kms key id")
	}
	return &salt, nil
}

// Update replaces the sealed salt and its sealing key.
func (m *MySQLBlindIndexSaltRepository) Update(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error {
	querier := database.GetTx(ctx, m.db)

	projectID, err := salt.ProjectID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal project id")
	}
	keyID, err := salt.KmsKeyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kms key id")
	}

	query := `UPDATE blind_index_salts
			  SET kms_key_id = ?, encrypted_salt = ?, updated_at = ?
			  WHERE project_id = ?`

	result, err := querier.ExecContext(ctx, query, keyID, salt.EncryptedSalt, salt.UpdatedAt, projectID)
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
