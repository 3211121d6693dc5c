package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

func binaryID(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	b, err := id.MarshalBinary()
	require.NoError(t, err)
	return b
}

func mysqlSecretRow(t *testing.T, s *secretsDomain.Secret, tags string) *sqlmock.Rows {
	t.Helper()
	return sqlmock.NewRows(secretColumnNames).AddRow(
		binaryID(t, s.ID), binaryID(t, s.ProjectID), binaryID(t, s.EnvironmentID), binaryID(t, s.FolderID),
		s.BlindIndex, binaryID(t, s.KmsKeyID), s.EncryptedKey, s.EncryptedValue, nil, []byte(tags),
		int64(s.Version), s.CreatedAt, s.UpdatedAt,
	)
}

func TestMySQLSecretRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_NilTagsStoredAsEmptyArray", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)
		s := newSecret()
		s.Tags = nil

		mock.ExpectExec("INSERT INTO secrets").
			WithArgs(
				binaryID(t, s.ID), binaryID(t, s.ProjectID), binaryID(t, s.EnvironmentID), binaryID(t, s.FolderID),
				s.BlindIndex, binaryID(t, s.KmsKeyID), s.EncryptedKey, s.EncryptedValue, nil, []byte("[]"),
				int64(2), s.CreatedAt, s.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_DuplicateEntry", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)

		mock.ExpectExec("INSERT INTO secrets").WillReturnError(&mysql.MySQLError{Number: 1062})

		assert.ErrorIs(t, repo.Create(ctx, newSecret()), secretsDomain.ErrDuplicateSecret)
	})
}

func TestMySQLSecretRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)
		s := newSecret()

		mock.ExpectQuery("WHERE environment_id = \\? AND id = \\?").
			WithArgs(binaryID(t, s.EnvironmentID), binaryID(t, s.ID)).
			WillReturnRows(mysqlSecretRow(t, s, `["db","prod"]`))

		got, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.FolderID, got.FolderID)
		assert.Equal(t, []string{"db", "prod"}, got.Tags)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_NullTags", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)
		s := newSecret()

		mock.ExpectQuery("FROM secrets").WillReturnRows(mysqlSecretRow(t, s, "null"))

		got, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Tags)
		assert.Empty(t, got.Tags)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)

		mock.ExpectQuery("FROM secrets").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, secretsDomain.ErrSecretNotFound)
	})

	t.Run("Error_MalformedID", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)
		s := newSecret()

		rows := sqlmock.NewRows(secretColumnNames).AddRow(
			[]byte{1, 2, 3}, binaryID(t, s.ProjectID), binaryID(t, s.EnvironmentID), binaryID(t, s.FolderID),
			s.BlindIndex, binaryID(t, s.KmsKeyID), s.EncryptedKey, s.EncryptedValue, nil, []byte("[]"),
			int64(1), s.CreatedAt, s.UpdatedAt,
		)
		mock.ExpectQuery("FROM secrets").WillReturnRows(rows)

		_, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, secretsDomain.ErrSecretNotFound)
	})
}

func TestMySQLSecretRepository_ListForRewrap(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewMySQLSecretRepository(db)
	s := newSecret()
	activeKeyID := uuid.New()

	mock.ExpectQuery("WHERE project_id = \\? AND kms_key_id <> \\? AND id > \\? ORDER BY id LIMIT \\?").
		WithArgs(binaryID(t, s.ProjectID), binaryID(t, activeKeyID), binaryID(t, uuid.Nil), int64(10)).
		WillReturnRows(mysqlSecretRow(t, s, `[]`))

	secrets, err := repo.ListForRewrap(ctx, s.ProjectID, activeKeyID, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, s.KmsKeyID, secrets[0].KmsKeyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSecretRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)
		s := newSecret()

		mock.ExpectExec("UPDATE secrets").
			WithArgs(
				binaryID(t, s.FolderID), s.BlindIndex, binaryID(t, s.KmsKeyID), s.EncryptedKey, s.EncryptedValue,
				nil, []byte(`["db","prod"]`), int64(2), s.UpdatedAt, binaryID(t, s.ID), int64(1),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, s, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_StaleVersion", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLSecretRepository(db)

		mock.ExpectExec("UPDATE secrets").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Update(ctx, newSecret(), 1), secretsDomain.ErrSecretModified)
	})
}

func TestMySQLSecretRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewMySQLSecretRepository(db)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM secrets WHERE id = \\? AND version = \\?").
		WithArgs(binaryID(t, id), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(ctx, id, 4), secretsDomain.ErrSecretModified)
	assert.NoError(t, mock.ExpectationsWereMet())
}
