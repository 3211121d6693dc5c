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

	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

var snapshotColumnNames = []string{
	"id", "project_id", "environment_id", "folder_id", "folder_path", "version", "status",
	"secret_version_ids", "folder_version_id", "failure_reason", "actor_kind", "actor_id",
	"created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newSnapshot() *snapshotsDomain.Snapshot {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &snapshotsDomain.Snapshot{
		ID:            uuid.Must(uuid.NewV7()),
		ProjectID:     uuid.New(),
		EnvironmentID: uuid.New(),
		FolderID:      uuid.New(),
		FolderPath:    "/api",
		Version:       4,
		Status:        snapshotsDomain.StatusCapturing,
		Actor:         scope.UserActor(uuid.New()),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func captured(s *snapshotsDomain.Snapshot) *snapshotsDomain.Snapshot {
	folderVersionID := uuid.Must(uuid.NewV7())
	s.Status = snapshotsDomain.StatusCaptured
	s.SecretVersionIDs = []uuid.UUID{uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())}
	s.FolderVersionID = &folderVersionID
	return s
}

func pgSnapshotRow(s *snapshotsDomain.Snapshot) *sqlmock.Rows {
	var folderVersionID any
	if s.FolderVersionID != nil {
		folderVersionID = s.FolderVersionID.String()
	}
	versionIDs := "{}"
	if len(s.SecretVersionIDs) == 2 {
		versionIDs = "{" + s.SecretVersionIDs[0].String() + "," + s.SecretVersionIDs[1].String() + "}"
	}
	return sqlmock.NewRows(snapshotColumnNames).AddRow(
		s.ID.String(), s.ProjectID.String(), s.EnvironmentID.String(), s.FolderID.String(), s.FolderPath,
		int64(s.Version), string(s.Status), versionIDs, folderVersionID, s.FailureReason,
		string(s.Actor.Kind), s.Actor.ID.String(), s.CreatedAt, s.UpdatedAt,
	)
}

func TestPostgreSQLSnapshotRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)
		s := newSnapshot()

		mock.ExpectExec("INSERT INTO secret_snapshots").
			WithArgs(
				s.ID.String(), s.ProjectID.String(), s.EnvironmentID.String(), s.FolderID.String(), "/api",
				int64(4), "capturing", "{}", nil, "", "user", s.Actor.ID.String(), s.CreatedAt, s.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_UniqueViolationIsSnapshotExists", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)

		mock.ExpectExec("INSERT INTO secret_snapshots").WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Create(ctx, newSnapshot()), snapshotsDomain.ErrSnapshotExists)
	})

	t.Run("Error_Database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)

		mock.ExpectExec("INSERT INTO secret_snapshots").WillReturnError(errors.New("connection refused"))

		err := repo.Create(ctx, newSnapshot())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create snapshot")
	})
}

func TestPostgreSQLSnapshotRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)
		s := captured(newSnapshot())

		mock.ExpectQuery("SELECT (.+) FROM secret_snapshots WHERE environment_id = \\$1 AND id = \\$2").
			WithArgs(s.EnvironmentID.String(), s.ID.String()).
			WillReturnRows(pgSnapshotRow(s))

		got, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		require.NoError(t, err)
		assert.Equal(t, snapshotsDomain.StatusCaptured, got.Status)
		assert.Equal(t, s.SecretVersionIDs, got.SecretVersionIDs)
		require.NotNil(t, got.FolderVersionID)
		assert.Equal(t, *s.FolderVersionID, *got.FolderVersionID)
		assert.Equal(t, s.Actor, got.Actor)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_NullFolderVersion", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)
		s := newSnapshot()

		mock.ExpectQuery("SELECT (.+) FROM secret_snapshots").WillReturnRows(pgSnapshotRow(s))

		got, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		require.NoError(t, err)
		assert.Nil(t, got.FolderVersionID)
		assert.Empty(t, got.SecretVersionIDs)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM secret_snapshots").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, snapshotsDomain.ErrSnapshotNotFound)
	})

	t.Run("Error_InvalidStatus", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)
		s := newSnapshot()
		s.Status = "paused"

		mock.ExpectQuery("SELECT (.+) FROM secret_snapshots").WillReturnRows(pgSnapshotRow(s))

		_, err := repo.Get(ctx, s.EnvironmentID, s.ID)
		assert.Error(t, err)
	})
}

func TestPostgreSQLSnapshotRepository_ListByEnvironment(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewPostgreSQLSnapshotRepository(db)
	s := captured(newSnapshot())

	mock.ExpectQuery("SELECT (.+) FROM secret_snapshots WHERE environment_id = \\$1 ORDER BY version DESC").
		WithArgs(s.EnvironmentID.String()).
		WillReturnRows(pgSnapshotRow(s))

	snapshots, err := repo.ListByEnvironment(ctx, s.EnvironmentID)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, s.ID, snapshots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSnapshotRepository_LatestVersion(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewPostgreSQLSnapshotRepository(db)
	environmentID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM secret_snapshots WHERE environment_id = \\$1").
		WithArgs(environmentID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(7)))

	latest, err := repo.LatestVersion(ctx, environmentID)
	require.NoError(t, err)
	assert.Equal(t, uint(7), latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSnapshotRepository_Finish(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)
		s := captured(newSnapshot())
		versionIDs := "{\"" + s.SecretVersionIDs[0].String() + "\",\"" + s.SecretVersionIDs[1].String() + "\"}"

		mock.ExpectExec("UPDATE secret_snapshots SET status = \\$1").
			WithArgs("captured", versionIDs, s.FolderVersionID.String(), "", s.UpdatedAt, s.ID.String(), "capturing").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Finish(ctx, s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_NotCapturingIsInvalidTransition", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)

		mock.ExpectExec("UPDATE secret_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Finish(ctx, captured(newSnapshot())), snapshotsDomain.ErrInvalidTransition)
	})

	t.Run("Error_Database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLSnapshotRepository(db)

		mock.ExpectExec("UPDATE secret_snapshots").WillReturnError(errors.New("connection reset"))

		err := repo.Finish(ctx, captured(newSnapshot()))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to finish snapshot")
	})
}
