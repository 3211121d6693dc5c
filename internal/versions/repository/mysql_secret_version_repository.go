package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	"github.com/allisson/envsafe/internal/scope"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

// MySQLSecretVersionRepository implements SecretVersion persistence for MySQL.
// UUIDs are stored as BINARY(16) and tags as a JSON array.
type MySQLSecretVersionRepository struct {
	db *sql.DB
}

// NewMySQLSecretVersionRepository creates a new MySQL SecretVersion repository instance.
func NewMySQLSecretVersionRepository(db *sql.DB) *MySQLSecretVersionRepository {
	return &MySQLSecretVersionRepository{db: db}
}

// Create appends a secret version.
func (m *MySQLSecretVersionRepository) Create(ctx context.Context, version *versionsDomain.SecretVersion) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO secret_versions (` + secretVersionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ids, err := marshalUUIDs(
		version.ID, version.SecretID, version.ProjectID, version.EnvironmentID,
		version.FolderID, version.KmsKeyID, version.Actor.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret version ids")
	}
	tags, err := json.Marshal(tagsOrEmpty(version.Tags))
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tags")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		ids[0],
		ids[1],
		ids[2],
		ids[3],
		ids[4],
		version.BlindIndex,
		ids[5],
		version.EncryptedKey,
		version.EncryptedValue,
		nullBytes(version.EncryptedComment),
		tags,
		version.Version,
		version.Deleted,
		version.Actor.Kind,
		ids[6],
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
func (m *MySQLSecretVersionRepository) Get(ctx context.Context, id uuid.UUID) (*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret version id")
	}

	query := `SELECT ` + secretVersionColumns + ` FROM secret_versions WHERE id = ?`

	return m.scanOne(querier.QueryRowContext(ctx, query, idBytes), "failed to get secret version")
}

// GetByVersion retrieves version n of a secret.
func (m *MySQLSecretVersionRepository) GetByVersion(
	ctx context.Context,
	secretID uuid.UUID,
	version uint,
) (*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := secretID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret id")
	}

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE secret_id = ? AND version = ?`

	return m.scanOne(querier.QueryRowContext(ctx, query, idBytes, version), "failed to get secret version")
}

// Latest retrieves the highest version of a secret.
func (m *MySQLSecretVersionRepository) Latest(
	ctx context.Context,
	secretID uuid.UUID,
) (*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := secretID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret id")
	}

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE secret_id = ?
			  ORDER BY version DESC
			  LIMIT 1`

	return m.scanOne(querier.QueryRowContext(ctx, query, idBytes), "failed to get latest secret version")
}

// ListBySecret returns the history of a secret, oldest first.
func (m *MySQLSecretVersionRepository) ListBySecret(
	ctx context.Context,
	secretID uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := secretID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret id")
	}

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE secret_id = ?
			  ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, idBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	return m.scanAll(rows)
}

// ListByIDs returns the secret versions with the given ids.
func (m *MySQLSecretVersionRepository) ListByIDs(
	ctx context.Context,
	ids []uuid.UUID,
) ([]*versionsDomain.SecretVersion, error) {
	if len(ids) == 0 {
		return []*versionsDomain.SecretVersion{}, nil
	}

	querier := database.GetTx(ctx, m.db)

	args, err := marshalUUIDs(ids...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret version ids")
	}

	query := `SELECT ` + secretVersionColumns + `
			  FROM secret_versions
			  WHERE id IN (` + placeholders(len(ids)) + `)`

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	return m.scanAll(rows)
}

func (m *MySQLSecretVersionRepository) scanOne(
	row rowScanner,
	msg string,
) (*versionsDomain.SecretVersion, error) {
	version, err := m.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionsDomain.ErrSecretVersionNotFound
		}
		return nil, apperrors.Wrap(err, msg)
	}
	return version, nil
}

func (m *MySQLSecretVersionRepository) scanAll(rows *sql.Rows) ([]*versionsDomain.SecretVersion, error) {
	defer func() {
		_ = rows.Close()
	}()

	versions := make([]*versionsDomain.SecretVersion, 0)
	for rows.Next() {
		version, err := m.scan(rows)
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

func (m *MySQLSecretVersionRepository) scan(row rowScanner) (*versionsDomain.SecretVersion, error) {
	var version versionsDomain.SecretVersion
	var id, secretID, projectID, environmentID, folderID, kmsKeyID, actorID []byte
	var tags []byte
	var actorKind string

	err := row.Scan(
		&id,
		&secretID,
		&projectID,
		&environmentID,
		&folderID,
		&version.BlindIndex,
		&kmsKeyID,
		&version.EncryptedKey,
		&version.EncryptedValue,
		&version.EncryptedComment,
		&tags,
		&version.Version,
		&version.Deleted,
		&actorKind,
		&actorID,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalUUIDs(
		[][]byte{id, secretID, projectID, environmentID, folderID, kmsKeyID, actorID},
		&version.ID, &version.SecretID, &version.ProjectID, &version.EnvironmentID,
		&version.FolderID, &version.KmsKeyID, &version.Actor.ID,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &version.Tags); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal tags")
	}
	if version.Actor, err = scope.ParseActor(actorKind, version.Actor.ID); err != nil {
		return nil, err
	}
	return &version, nil
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
