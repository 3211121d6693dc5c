package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

// MySQLSecretRepository implements Secret persistence for MySQL.
// UUIDs are stored as BINARY(16) and tags as a JSON array.
type MySQLSecretRepository struct {
	db *sql.DB
}

// NewMySQLSecretRepository creates a new MySQL Secret repository instance.
func NewMySQLSecretRepository(db *sql.DB) *MySQLSecretRepository {
	return &MySQLSecretRepository{db: db}
}

// Create inserts a secret.
func (m *MySQLSecretRepository) Create(ctx context.Context, secret *secretsDomain.Secret) error {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(secret.ID, secret.ProjectID, secret.EnvironmentID, secret.FolderID, secret.KmsKeyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret ids")
	}
	tags, err := json.Marshal(tagsOrEmpty(secret.Tags))
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tags")
	}

	query := `INSERT INTO secrets (` + secretColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		ids[0],
		ids[1],
		ids[2],
		ids[3],
		secret.BlindIndex,
		ids[4],
		secret.EncryptedKey,
		secret.EncryptedValue,
		nullBytes(secret.EncryptedComment),
		tags,
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
func (m *MySQLSecretRepository) Get(ctx context.Context, environmentID, id uuid.UUID) (*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(environmentID, id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret ids")
	}

	query := `SELECT ` + secretColumns + ` FROM secrets WHERE environment_id = ? AND id = ?`

	return m.scanOne(querier.QueryRowContext(ctx, query, ids...), "failed to get secret")
}

// GetByBlindIndex retrieves a secret by folder and name index.
func (m *MySQLSecretRepository) GetByBlindIndex(
	ctx context.Context,
	folderID uuid.UUID,
	blindIndex string,
) (*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, m.db)

	folderBytes, err := folderID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal folder id")
	}

	query := `SELECT ` + secretColumns + ` FROM secrets WHERE folder_id = ? AND blind_index = ?`

	return m.scanOne(
		querier.QueryRowContext(ctx, query, folderBytes, blindIndex),
		"failed to get secret by blind index",
	)
}

// ListByFolder returns the secrets of a folder ordered by creation.
func (m *MySQLSecretRepository) ListByFolder(ctx context.Context, folderID uuid.UUID) ([]*secretsDomain.Secret, error) {
	folderBytes, err := folderID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal folder id")
	}
	return m.list(ctx, `WHERE folder_id = ? ORDER BY created_at, id`, folderBytes)
}

// ListByEnvironment returns every secret of an environment ordered by creation.
func (m *MySQLSecretRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	envBytes, err := environmentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal environment id")
	}
	return m.list(ctx, `WHERE environment_id = ? ORDER BY created_at, id`, envBytes)
}

// ListForRewrap returns the next batch of secrets not wrapped by activeKeyID.
// BINARY(16) ids compare bytewise, which matches uuid v7 creation order.
func (m *MySQLSecretRepository) ListForRewrap(
	ctx context.Context,
	projectID, activeKeyID, afterID uuid.UUID,
	limit int,
) ([]*secretsDomain.Secret, error) {
	ids, err := marshalUUIDs(projectID, activeKeyID, afterID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal rewrap cursor")
	}
	return m.list(ctx, `WHERE project_id = ? AND kms_key_id <> ? AND id > ? ORDER BY id LIMIT ?`,
		ids[0], ids[1], ids[2], limit)
}

// Update writes a secret whose stored version is expectedVersion.
func (m *MySQLSecretRepository) Update(ctx context.Context, secret *secretsDomain.Secret, expectedVersion uint) error {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(secret.FolderID, secret.KmsKeyID, secret.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret ids")
	}
	tags, err := json.Marshal(tagsOrEmpty(secret.Tags))
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tags")
	}

	query := `UPDATE secrets
			  SET folder_id = ?, blind_index = ?, kms_key_id = ?, encrypted_key = ?,
			      encrypted_value = ?, encrypted_comment = ?, tags = ?, version = ?, updated_at = ?
			  WHERE id = ? AND version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		ids[0],
		secret.BlindIndex,
		ids[1],
		secret.EncryptedKey,
		secret.EncryptedValue,
		nullBytes(secret.EncryptedComment),
		tags,
		secret.Version,
		secret.UpdatedAt,
		ids[2],
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

// Delete removes a secret whose stored version is expectedVersion.
func (m *MySQLSecretRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion uint) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM secrets WHERE id = ? AND version = ?`, idBytes, expectedVersion)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete secret")
	}
	return requireAffected(result, secretsDomain.ErrSecretModified)
}

func (m *MySQLSecretRepository) list(ctx context.Context, where string, args ...any) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, `SELECT `+secretColumns+` FROM secrets `+where, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets")
	}
	defer func() {
		_ = rows.Close()
	}()

	secrets := make([]*secretsDomain.Secret, 0)
	for rows.Next() {
		secret, err := m.scan(rows)
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

func (m *MySQLSecretRepository) scanOne(row rowScanner, msg string) (*secretsDomain.Secret, error) {
	secret, err := m.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, apperrors.Wrap(err, msg)
	}
	return secret, nil
}

func (m *MySQLSecretRepository) scan(row rowScanner) (*secretsDomain.Secret, error) {
	var secret secretsDomain.Secret
	var id, projectID, environmentID, folderID, kmsKeyID, tags []byte

	err := row.Scan(
		&id,
		&projectID,
		&environmentID,
		&folderID,
		&secret.BlindIndex,
		&kmsKeyID,
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

	if err := unmarshalUUIDs(
		[][]byte{id, projectID, environmentID, folderID, kmsKeyID},
		&secret.ID, &secret.ProjectID, &secret.EnvironmentID, &secret.FolderID, &secret.KmsKeyID,
	); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &secret.Tags); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal tags")
		}
	}
	secret.Tags = tagsOrEmpty(secret.Tags)
	return &secret, nil
}

func marshalUUIDs(ids ...uuid.UUID) ([]any, error) {
	out := make([]any, len(ids))
	for i, id := range ids {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func unmarshalUUIDs(raw [][]byte, dst ...*uuid.UUID) error {
	for i, b := range raw {
		if err := dst[i].UnmarshalBinary(b); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal uuid")
		}
	}
	return nil
}
