package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	foldersMocks "github.com/allisson/envsafe/internal/folders/usecase/mocks"
	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
	snapshotsMocks "github.com/allisson/envsafe/internal/snapshots/usecase/mocks"
)

func newScopeArgs() (ScopeArgs, scope.Scope) {
	projectID := uuid.Must(uuid.NewV7())
	environmentID := uuid.Must(uuid.NewV7())
	actorID := uuid.Must(uuid.NewV7())

	args := ScopeArgs{
		ProjectID:     projectID.String(),
		EnvironmentID: environmentID.String(),
		ActorKind:     "user",
		ActorID:       actorID.String(),
	}
	return args, scope.New(scope.UserActor(actorID), projectID, environmentID)
}

func TestScopeArgs(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		args, want := newScopeArgs()
		got, err := args.Scope()
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("invalid-environment", func(t *testing.T) {
		args, _ := newScopeArgs()
		args.EnvironmentID = "prod"
		_, err := args.Scope()
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid environment-id")
	})

	t.Run("invalid-actor-kind", func(t *testing.T) {
		args, _ := newScopeArgs()
		args.ActorKind = "admin"
		_, err := args.Scope()
		require.Error(t, err)
		require.ErrorIs(t, err, scope.ErrInvalidActor)
	})
}

func TestRunInitEnvironment(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("success", func(t *testing.T) {
		args, s := newScopeArgs()
		root := &foldersDomain.Folder{
			ID:            uuid.Must(uuid.NewV7()),
			ProjectID:     s.ProjectID,
			EnvironmentID: s.EnvironmentID,
			Name:          "root",
			Version:       1,
		}

		folders := &foldersMocks.MockFolderUseCase{}
		folders.On("InitEnvironment", ctx, s).Return(root, nil)

		var out bytes.Buffer
		err := RunInitEnvironment(ctx, folders, logger, &out, args, "json")
		require.NoError(t, err)

		var result map[string]string
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		require.Equal(t, root.ID.String(), result["root_folder_id"])
		require.Equal(t, s.EnvironmentID.String(), result["environment_id"])
		folders.AssertExpectations(t)
	})

	t.Run("already-initialized", func(t *testing.T) {
		args, s := newScopeArgs()
		folders := &foldersMocks.MockFolderUseCase{}
		folders.On("InitEnvironment", ctx, s).Return(nil, foldersDomain.ErrEnvironmentInitialized)

		err := RunInitEnvironment(ctx, folders, logger, &bytes.Buffer{}, args, "text")
		require.ErrorIs(t, err, foldersDomain.ErrEnvironmentInitialized)
		require.Contains(t, err.Error(), "failed to initialize environment")
	})
}

func TestRunCaptureSnapshot(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("success-text", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshot := &snapshotsDomain.Snapshot{
			ID:               uuid.Must(uuid.NewV7()),
			ProjectID:        s.ProjectID,
			EnvironmentID:    s.EnvironmentID,
			FolderID:         uuid.Must(uuid.NewV7()),
			FolderPath:       "/backend",
			Version:          3,
			Status:           snapshotsDomain.StatusCaptured,
			SecretVersionIDs: []uuid.UUID{uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())},
			Actor:            s.Actor,
			CreatedAt:        time.Now().UTC(),
		}

		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Capture", ctx, s, "/backend").Return(snapshot, nil)

		var out bytes.Buffer
		err := RunCaptureSnapshot(ctx, snapshots, logger, &out, args, "/backend", "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Snapshot ID: "+snapshot.ID.String())
		require.Contains(t, out.String(), "Version: 3")
		require.Contains(t, out.String(), "Secrets: 2")
		snapshots.AssertExpectations(t)
	})

	t.Run("success-json", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshot := &snapshotsDomain.Snapshot{
			ID:         uuid.Must(uuid.NewV7()),
			FolderPath: "/",
			Version:    1,
			Status:     snapshotsDomain.StatusCaptured,
		}

		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Capture", ctx, s, "/").Return(snapshot, nil)

		var out bytes.Buffer
		err := RunCaptureSnapshot(ctx, snapshots, logger, &out, args, "/", "json")
		require.NoError(t, err)

		var result snapshotOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		require.Equal(t, "captured", result.Status)
		require.Equal(t, 0, result.Secrets)
		require.Empty(t, result.FailureReason)
	})

	t.Run("unknown-path", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Capture", ctx, s, "/missing").Return(nil, foldersDomain.ErrFolderNotFound)

		err := RunCaptureSnapshot(ctx, snapshots, logger, &bytes.Buffer{}, args, "/missing", "text")
		require.ErrorIs(t, err, foldersDomain.ErrFolderNotFound)
		require.Contains(t, err.Error(), "failed to capture snapshot")
	})
}

func TestRunRollbackSnapshot(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("success-text", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshotID := uuid.Must(uuid.NewV7())
		result := &snapshotsDomain.RollbackResult{
			SnapshotID:     snapshotID,
			FoldersCreated: 1,
			SecretsUpdated: 2,
			SecretsDeleted: 1,
		}

		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Rollback", ctx, s, snapshotID).Return(result, nil)

		var out bytes.Buffer
		err := RunRollbackSnapshot(ctx, snapshots, logger, &out, args, snapshotID.String(), "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Folders: 1 created, 0 updated, 0 deleted")
		require.Contains(t, out.String(), "Secrets: 0 created, 2 updated, 1 deleted")
		snapshots.AssertExpectations(t)
	})

	t.Run("no-changes", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshotID := uuid.Must(uuid.NewV7())

		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Rollback", ctx, s, snapshotID).
			Return(&snapshotsDomain.RollbackResult{SnapshotID: snapshotID}, nil)

		var out bytes.Buffer
		err := RunRollbackSnapshot(ctx, snapshots, logger, &out, args, snapshotID.String(), "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Nothing to roll back")
	})

	t.Run("success-json", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshotID := uuid.Must(uuid.NewV7())

		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Rollback", ctx, s, snapshotID).
			Return(&snapshotsDomain.RollbackResult{SnapshotID: snapshotID, SecretsCreated: 4}, nil)

		var out bytes.Buffer
		err := RunRollbackSnapshot(ctx, snapshots, logger, &out, args, snapshotID.String(), "json")
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		require.Equal(t, true, result["changed"])
		require.Equal(t, float64(4), result["secrets_created"])
	})

	t.Run("not-captured", func(t *testing.T) {
		args, s := newScopeArgs()
		snapshotID := uuid.Must(uuid.NewV7())

		snapshots := &snapshotsMocks.MockSnapshotUseCase{}
		snapshots.On("Rollback", ctx, s, snapshotID).Return(nil, snapshotsDomain.ErrSnapshotNotCaptured)

		err := RunRollbackSnapshot(ctx, snapshots, logger, &bytes.Buffer{}, args, snapshotID.String(), "text")
		require.ErrorIs(t, err, snapshotsDomain.ErrSnapshotNotCaptured)
	})

	t.Run("invalid-snapshot-id", func(t *testing.T) {
		args, _ := newScopeArgs()
		err := RunRollbackSnapshot(ctx, &snapshotsMocks.MockSnapshotUseCase{}, logger, &bytes.Buffer{}, args, "latest", "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid snapshot-id")
	})
}
