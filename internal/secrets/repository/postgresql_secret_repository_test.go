package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

var secretColumnNames = []string{
	"id", "project_id", "environment_id", "folder_id", "blind_index", "kms_key_id",
	"encrypted_key", "encrypted_value", "encrypted_comment", "tags", "version", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newSecret() *secretsDomain.Secret {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &secretsDomain.Secret{
		ID:             uuid.Must(uuid.NewV7()),
		ProjectID:      uuid.New(),
		EnvironmentID:  uuid.New(),
		FolderID:       uuid.New(),
		BlindIndex:     "5f0c2ab1e77d9a04",
		KmsKeyID:       uuid.New(),
		EncryptedKey:   []byte("sealed-name"),
		EncryptedValue: []byte("sealed-value"),
		Tags:           []string{"db", "prod"},
		Version:        2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func pgSecretRow(s *secretsDomain.Secret) *sqlmock.Rows {
	return sqlmock.NewRows(secretColumnNames).AddRow(
		s.ID.String(), s.ProjectID.String(), s.EnvironmentID.String(), s.FolderID.String(), s.BlindIndex,
		s.KmsKeyID.String(), s.EncryptedKey, s.EncryptedValue, nil, "{db,prod}", int64(s.Version),
		s.CreatedAt, s.UpdatedAt,
	)
}

func TestPostgreSQLSecretRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)
		s := newSecret()

		mock.ExpectExec("INSERT INTO secrets").
			WithArgs(
				s.ID.String(), s.ProjectID.String(), s.EnvironmentID.String(), s.FolderID.String(), s.BlindIndex,
				s.KmsKeyID.String(), s.EncryptedKey, s.EncryptedValue, nil, "{\"db\",\"prod\"}", int64(2),
				s.CreatedAt, s.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_UniqueViolationIsDuplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectExec("INSERT INTO secrets").WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Create(ctx, newSecret()), secretsDomain.ErrDuplicateSecret)
	})

	t.Run("Error_Database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectExec("INSERT INTO secrets").WillReturnError(errors.New("connection refused"))

		err := repo.Create(ctx, newSecret())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create secret")
	})
}

func TestPostgreSQLSecretRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)
		s := newSecret()

		mock.ExpectQuery("SELECT (.+) FROM secrets WHERE environment_id = \\$1 AND id = \\$2").
			WithArgs(s.EnvironmentID.String(), s.ID.String()).
			WillReturnRows(pgSecretRow(s))

		got, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.KmsKeyID, got.KmsKeyID)
		assert.Equal(t, []string{"db", "prod"}, got.Tags)
		assert.False(t, got.HasComment())
		assert.Equal(t, uint(2), got.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM secrets").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, secretsDomain.ErrSecretNotFound)
	})
}

func TestPostgreSQLSecretRepository_GetByBlindIndex(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewPostgreSQLSecretRepository(db)
	s := newSecret()

	mock.ExpectQuery("WHERE folder_id = \\$1 AND blind_index = \\$2").
		WithArgs(s.FolderID.String(), s.BlindIndex).
		WillReturnRows(pgSecretRow(s))

	got, err := repo.GetByBlindIndex(ctx, s.FolderID, s.BlindIndex)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSecretRepository_ListByFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Empty", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectQuery("WHERE folder_id = \\$1 ORDER BY created_at, id").
			WillReturnRows(sqlmock.NewRows(secretColumnNames))

		secrets, err := repo.ListByFolder(ctx, uuid.New())
		require.NoError(t, err)
		assert.NotNil(t, secrets)
		assert.Empty(t, secrets)
	})

	t.Run("Error_RowError", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		rows := pgSecretRow(newSecret()).RowError(0, errors.New("network"))
		mock.ExpectQuery("FROM secrets").WillReturnRows(rows)

		_, err := repo.ListByFolder(ctx, uuid.New())
		assert.Error(t, err)
	})
}

func TestPostgreSQLSecretRepository_ListForRewrap(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewPostgreSQLSecretRepository(db)
	s := newSecret()
	activeKeyID := uuid.New()

	mock.ExpectQuery("WHERE project_id = \\$1 AND kms_key_id <> \\$2 AND id > \\$3 ORDER BY id LIMIT \\$4").
		WithArgs(s.ProjectID.String(), activeKeyID.String(), uuid.Nil.String(), int64(100)).
		WillReturnRows(pgSecretRow(s))

	secrets, err := repo.ListForRewrap(ctx, s.ProjectID, activeKeyID, uuid.Nil, 100)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, s.ID, secrets[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSecretRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)
		s := newSecret()
		s.EncryptedComment = []byte("sealed-comment")

		mock.ExpectExec("UPDATE secrets").
			WithArgs(
				s.FolderID.String(), s.BlindIndex, s.KmsKeyID.String(), s.EncryptedKey, s.EncryptedValue,
				s.EncryptedComment, "{\"db\",\"prod\"}", int64(2), s.UpdatedAt, s.ID.String(), int64(1),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, s, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_StaleVersion", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectExec("UPDATE secrets").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Update(ctx, newSecret(), 1), secretsDomain.ErrSecretModified)
	})

	t.Run("Error_RenameClash", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectExec("UPDATE secrets").WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Update(ctx, newSecret(), 1), secretsDomain.ErrDuplicateSecret)
	})
}

func TestPostgreSQLSecretRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)
		id := uuid.New()

		mock.ExpectExec("DELETE FROM secrets WHERE id = \\$1 AND version = \\$2").
			WithArgs(id.String(), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(ctx, id, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_StaleVersion", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSecretRepository(db)

		mock.ExpectExec("DELETE FROM secrets").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(ctx, uuid.New(), 3), secretsDomain.ErrSecretModified)
	})
}
