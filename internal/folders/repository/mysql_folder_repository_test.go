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

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
)

func TestMySQLFolderRepository_Create(t *testing.T) {
	ctx := context.Background()
	root := newFolder(nil, foldersDomain.RootFolderName)
	id, _ := root.ID.MarshalBinary()
	projectID, _ := root.ProjectID.MarshalBinary()
	environmentID, _ := root.EnvironmentID.MarshalBinary()

	t.Run("Success_RootHasNullParent", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLFolderRepository(db)

		mock.ExpectExec("INSERT INTO secret_folders").
			WithArgs(id, projectID, environmentID, nil, "root", int64(1), root.CreatedAt, root.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, root))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_SecondRoot", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLFolderRepository(db)

		mock.ExpectExec("INSERT INTO secret_folders").WillReturnError(&mysql.MySQLError{Number: 1062})

		assert.ErrorIs(t, repo.Create(ctx, root), foldersDomain.ErrFolderExists)
	})
}

func TestMySQLFolderRepository_GetChild(t *testing.T) {
	ctx := context.Background()
	parentID := uuid.New()
	folder := newFolder(&parentID, "api")
	id, _ := folder.ID.MarshalBinary()
	projectID, _ := folder.ProjectID.MarshalBinary()
	environmentID, _ := folder.EnvironmentID.MarshalBinary()
	parent, _ := parentID.MarshalBinary()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLFolderRepository(db)

		rows := sqlmock.NewRows(folderColumnNames).AddRow(
			id, projectID, environmentID, parent, "api", 1, folder.CreatedAt, folder.UpdatedAt,
		)
		mock.ExpectQuery("WHERE environment_id = \\? AND parent_id = \\? AND name = \\?").
			WithArgs(environmentID, parent, "api").
			WillReturnRows(rows)

		got, err := repo.GetChild(ctx, folder.EnvironmentID, parentID, "api")
		require.NoError(t, err)
		assert.Equal(t, folder.ID, got.ID)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, parentID, *got.ParentID)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLFolderRepository(db)

		mock.ExpectQuery("FROM secret_folders").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetChild(ctx, folder.EnvironmentID, parentID, "web")
		assert.ErrorIs(t, err, foldersDomain.ErrFolderNotFound)
	})
}

func TestMySQLFolderRepository_Update(t *testing.T) {
	ctx := context.Background()
	parentID := uuid.New()
	folder := newFolder(&parentID, "api")
	folder.Version = 4
	id, _ := folder.ID.MarshalBinary()
	parent, _ := parentID.MarshalBinary()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLFolderRepository(db)

		mock.ExpectExec("UPDATE secret_folders").
			WithArgs(parent, "api", int64(4), folder.UpdatedAt, id, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, folder, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_StaleVersion", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLFolderRepository(db)

		mock.ExpectExec("UPDATE secret_folders").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Update(ctx, folder, 3), foldersDomain.ErrFolderModified)
	})
}

func TestMySQLFolderRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewMySQLFolderRepository(db)

	mock.ExpectExec("DELETE FROM secret_folders WHERE id = \\?").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), foldersDomain.ErrFolderNotFound)
}
