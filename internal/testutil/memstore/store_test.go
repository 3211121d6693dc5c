package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
)

func rootFolder() *foldersDomain.Folder {
	now := time.Now().UTC()
	return &foldersDomain.Folder{
		ID:            uuid.Must(uuid.NewV7()),
		ProjectID:     uuid.New(),
		EnvironmentID: uuid.New(),
		Name:          "root",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CommitKeepsWrites", func(t *testing.T) {
		store := New()
		folder := rootFolder()

		err := store.WithTx(ctx, func(ctx context.Context) error {
			assert.True(t, InTx(ctx))
			return store.Folders().Create(ctx, folder)
		})
		require.NoError(t, err)

		_, err = store.Folders().Get(ctx, folder.EnvironmentID, folder.ID)
		assert.NoError(t, err)
	})

	t.Run("Error_FailureUndoesWrites", func(t *testing.T) {
		store := New()
		folder := rootFolder()
		boom := errors.New("boom")

		err := store.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, store.Folders().Create(ctx, folder))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.Folders().Get(ctx, folder.EnvironmentID, folder.ID)
		assert.ErrorIs(t, err, foldersDomain.ErrFolderNotFound)
	})

	t.Run("Success_NestedCallsJoinOuterTransaction", func(t *testing.T) {
		store := New()
		folder := rootFolder()

		err := store.WithTx(ctx, func(ctx context.Context) error {
			return store.WithReadTx(ctx, func(ctx context.Context) error {
				return store.Folders().Create(ctx, folder)
			})
		})
		require.NoError(t, err)
	})

	t.Run("Success_WriteOutsideTransactionSurvivesFailedTransaction", func(t *testing.T) {
		store := New()
		inside := rootFolder()
		outside := rootFolder()

		entered := make(chan struct{})
		release := make(chan struct{})
		txDone := make(chan error, 1)
		go func() {
			txDone <- store.WithTx(ctx, func(ctx context.Context) error {
				if err := store.Folders().Create(ctx, inside); err != nil {
					return err
				}
				close(entered)
				<-release
				return errors.New("rolled back")
			})
		}()
		<-entered

		writing := make(chan struct{})
		writeDone := make(chan error, 1)
		go func() {
			close(writing)
			writeDone <- store.Folders().Create(ctx, outside)
		}()
		<-writing
		close(release)

		assert.Error(t, <-txDone)
		require.NoError(t, <-writeDone)

		_, err := store.Folders().Get(ctx, outside.EnvironmentID, outside.ID)
		assert.NoError(t, err)
		_, err = store.Folders().Get(ctx, inside.EnvironmentID, inside.ID)
		assert.ErrorIs(t, err, foldersDomain.ErrFolderNotFound)
	})
}

func TestStore_FailNext(t *testing.T) {
	ctx := context.Background()
	store := New()
	boom := errors.New("disk full")
	store.FailNext("secret_folders.Create", boom)

	assert.ErrorIs(t, store.Folders().Create(ctx, rootFolder()), boom)
	assert.NoError(t, store.Folders().Create(ctx, rootFolder()))
}
