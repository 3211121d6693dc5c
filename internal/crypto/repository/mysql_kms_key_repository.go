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

// MySQLKmsKeyRepository implements KmsKey persistence for MySQL.
// Uses BINARY(16) for UUIDs and BLOB for key material; the single active key per
// scope is enforced by a unique index over a generated column.
type MySQLKmsKeyRepository struct {
	db *sql.DB
}

// NewMySQLKmsKeyRepository creates a new MySQL KmsKey repository instance.
func NewMySQLKmsKeyRepository(db *sql.DB) *MySQLKmsKeyRepository {
	return &MySQLKmsKeyRepository{db: db}
}

// Create inserts a new key version.
func (m *MySQLKmsKeyRepository) Create(ctx context.Context, key *cryptoDomain.KmsKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO kms_keys (` + kmsKeyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kms key id")
	}
	scopeID, err := key.ScopeID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal scope id")
	}
	var parentID []byte
	if key.ParentKeyID != nil {
		if parentID, err = key.ParentKeyID.MarshalBinary(); err != nil {
			return apperrors.Wrap(err, "failed to marshal parent key id")
		}
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		key.ScopeType,
		scopeID,
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

// Get retrieves a key version by id.
func (m *MySQLKmsKeyRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.KmsKey, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal kms key id")
	}

	query := `SELECT ` + kmsKeyColumns + ` FROM kms_keys WHERE id = ?`

	key, err := m.scan(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cryptoDomain.ErrKmsKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kms key")
	}
	return key, nil
}

// GetActive retrieves the active key version of a scope.
func (m *MySQLKmsKeyRepository) GetActive(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) (*cryptoDomain.KmsKey, error) {
	querier := database.GetTx(ctx, m.db)

	scopeID, err := scope.ID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal scope id")
	}

	query := `SELECT ` + kmsKeyColumns + `
			  FROM kms_keys
			  WHERE scope_type = ? AND scope_id = ? AND is_active = true`

	key, err := m.scan(querier.QueryRowContext(ctx, query, scope.Type, scopeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cryptoDomain.ErrKeyNotProvisioned
		}
		return nil, apperrors.Wrap(err, "failed to get active kms key")
	}
	return key, nil
}

// ListByScope returns every version of a scope's key, newest first.
func (m *MySQLKmsKeyRepository) ListByScope(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) ([]*cryptoDomain.KmsKey, error) {
	querier := database.GetTx(ctx, m.db)

	scopeID, err := scope.ID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal scope id")
	}

	query := `SELECT ` + kmsKeyColumns + `
			  FROM kms_keys
			  WHERE scope_type = ? AND scope_id = ?
			  ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, scope.Type, scopeID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list kms keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.KmsKey
	for rows.Next() {
		key, err := m.scan(rows)
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

// Retire deactivates a key version; ErrKeyRotationConflict if it was no longer active.
func (m *MySQLKmsKeyRepository) Retire(ctx context.Context, id uuid.UUID, retiredAt time.Time) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kms key id")
	}

	query := `UPDATE kms_keys
			  SET is_active = false, retired_at = ?
			  WHERE id = ? AND is_active = true`

	result, err := querier.ExecContext(ctx, query, retiredAt, idBytes)
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

func (m *MySQLKmsKeyRepository) scan(row rowScanner) (*cryptoDomain.KmsKey, error) {
	var key cryptoDomain.KmsKey
	var id, scopeID, parentID []byte
	var retiredAt sql.NullTime

	err := row.Scan(
		&id,
		&key.ScopeType,
		&scopeID,
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

	if err := key.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal kms key id")
	}
	if err := key.ScopeID.UnmarshalBinary(scopeID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal scope id")
	}
	if parentID != nil {
		var parent uuid.UUID
		if err := parent.UnmarshalBinary(parentID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal parent key id")
		}
		key.ParentKeyID = &parent
	}
	if retiredAt.Valid {
		key.RetiredAt = &retiredAt.Time
	}
	return &key, nil
}
