package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/database"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	foldersUseCase "github.com/allisson/envsafe/internal/folders/usecase"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	secretsUseCase "github.com/allisson/envsafe/internal/secrets/usecase"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
	versionsUseCase "github.com/allisson/envsafe/internal/versions/usecase"
)

// snapshotUseCase implements SnapshotUseCase.
type snapshotUseCase struct {
	txManager         database.TxManager
	snapshotRepo      SnapshotRepository
	folderRepo        foldersUseCase.FolderRepository
	secretRepo        secretsUseCase.SecretRepository
	secretVersionRepo versionsUseCase.SecretVersionRepository
	versioning        versionsUseCase.VersioningUseCase
	logger            *slog.Logger
}

// Capture inserts a capturing snapshot, reads the subtree under one read
// transaction and finishes the snapshot as captured or failed.
func (u *snapshotUseCase) Capture(
	ctx context.Context,
	s scope.Scope,
	folderPath string,
) (*snapshotsDomain.Snapshot, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	segments, err := foldersDomain.ParsePath(folderPath)
	if err != nil {
		return nil, err
	}

	var snapshot *snapshotsDomain.Snapshot
	err = u.versioning.WithTreeLock(ctx, s.EnvironmentID, func(ctx context.Context) error {
		folder, err := u.resolve(ctx, s, segments)
		if err != nil {
			return err
		}

		latest, err := u.snapshotRepo.LatestVersion(ctx, s.EnvironmentID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		snapshot = &snapshotsDomain.Snapshot{
			ID:            uuid.Must(uuid.NewV7()),
			ProjectID:     s.ProjectID,
			EnvironmentID: s.EnvironmentID,
			FolderID:      folder.ID,
			FolderPath:    foldersDomain.JoinPath(segments),
			Version:       latest + 1,
			Status:        snapshotsDomain.StatusCapturing,
			Actor:         s.Actor,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := u.snapshotRepo.Create(ctx, snapshot); err != nil {
			snapshot = nil
			return err
		}

		if err := u.capture(ctx, s, snapshot); err != nil {
			u.fail(ctx, snapshot, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("snapshot captured",
		slog.String("environment_id", s.EnvironmentID.String()),
		slog.String("snapshot_id", snapshot.ID.String()),
		slog.Uint64("version", uint64(snapshot.Version)),
		slog.String("folder_path", snapshot.FolderPath),
		slog.Int("secrets", len(snapshot.SecretVersionIDs)),
	)
	return snapshot, nil
}

// capture collects the references of a capturing snapshot and finishes it.
func (u *snapshotUseCase) capture(ctx context.Context, s scope.Scope, snapshot *snapshotsDomain.Snapshot) error {
	var (
		tree       *foldersDomain.Tree
		versionIDs []uuid.UUID
	)
	err := u.txManager.WithReadTx(ctx, func(ctx context.Context) error {
		var err error
		tree, versionIDs, err = u.collect(ctx, s, snapshot.FolderID)
		return err
	})
	if err != nil {
		return err
	}

	return u.txManager.WithTx(ctx, func(ctx context.Context) error {
		folderVersion, err := u.versioning.RecordFolderVersion(ctx, s.EnvironmentID, tree, s.Actor)
		if err != nil {
			return err
		}
		snapshot.Status = snapshotsDomain.StatusCaptured
		snapshot.SecretVersionIDs = versionIDs
		snapshot.FolderVersionID = &folderVersion.ID
		snapshot.UpdatedAt = time.Now().UTC()
		return u.snapshotRepo.Finish(ctx, snapshot)
	})
}

// collect reads the subtree rooted at folderID and the latest version of every
// secret inside it. A secret whose live row does not match its latest version is
// in the middle of a write, and the capture is rejected.
func (u *snapshotUseCase) collect(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) (*foldersDomain.Tree, []uuid.UUID, error) {
	folders, err := u.folderRepo.ListByEnvironment(ctx, s.EnvironmentID)
	if err != nil {
		return nil, nil, err
	}
	tree, err := foldersDomain.BuildTree(folders, folderID)
	if err != nil {
		return nil, nil, err
	}
	inTree := folderSet(tree.FolderIDs())

	secrets, err := u.secretRepo.ListByEnvironment(ctx, s.EnvironmentID)
	if err != nil {
		return nil, nil, err
	}
	var versionIDs []uuid.UUID
	for _, secret := range secrets {
		if _, ok := inTree[secret.FolderID]; !ok {
			continue
		}
		latest, err := u.versioning.LatestSecretVersion(ctx, secret.ID)
		if err != nil {
			if errors.Is(err, versionsDomain.ErrSecretVersionNotFound) {
				return nil, nil, fmt.Errorf("%w: secret %s has no history", snapshotsDomain.ErrSnapshotInconsistent, secret.ID)
			}
			return nil, nil, err
		}
		if latest.Deleted || latest.Version != secret.Version || !latest.SameContent(secret) {
			return nil, nil, fmt.Errorf("%w: secret %s is at version %d, history at %d",
				snapshotsDomain.ErrSnapshotInconsistent, secret.ID, secret.Version, latest.Version)
		}
		versionIDs = append(versionIDs, latest.ID)
	}
	return tree, versionIDs, nil
}

// fail marks a capturing snapshot as failed. The capture error is what the caller
// sees, so a failure to persist the status is only logged.
func (u *snapshotUseCase) fail(ctx context.Context, snapshot *snapshotsDomain.Snapshot, cause error) {
	snapshot.Status = snapshotsDomain.StatusFailed
	snapshot.SecretVersionIDs = nil
	snapshot.FolderVersionID = nil
	snapshot.FailureReason = cause.Error()
	snapshot.UpdatedAt = time.Now().UTC()

	logger := u.logger.With(
		slog.String("environment_id", snapshot.EnvironmentID.String()),
		slog.String("snapshot_id", snapshot.ID.String()),
	)
	if err := u.snapshotRepo.Finish(context.WithoutCancel(ctx), snapshot); err != nil {
		logger.Error("failed to mark snapshot failed", slog.Any("error", err))
		return
	}
	logger.Warn("snapshot capture failed", slog.String("reason", snapshot.FailureReason))
}

// Rollback restores the subtree of a captured snapshot.
func (u *snapshotUseCase) Rollback(
	ctx context.Context,
	s scope.Scope,
	snapshotID uuid.UUID,
) (*snapshotsDomain.RollbackResult, error) {
	snapshot, err := u.Get(ctx, s, snapshotID)
	if err != nil {
		return nil, err
	}
	if !snapshot.IsCaptured() {
		return nil, fmt.Errorf("%w: status is %s", snapshotsDomain.ErrSnapshotNotCaptured, snapshot.Status)
	}

	folderVersion, err := u.versioning.GetFolderVersion(ctx, *snapshot.FolderVersionID)
	if err != nil {
		return nil, err
	}
	versions, err := u.secretVersionRepo.ListByIDs(ctx, snapshot.SecretVersionIDs)
	if err != nil {
		return nil, err
	}
	if len(versions) != len(snapshot.SecretVersionIDs) {
		return nil, fmt.Errorf("%w: %d of %d secret versions are missing", snapshotsDomain.ErrSnapshotInconsistent,
			len(snapshot.SecretVersionIDs)-len(versions), len(snapshot.SecretVersionIDs))
	}

	var result *snapshotsDomain.RollbackResult
	err = u.versioning.WithTreeLock(ctx, s.EnvironmentID, func(ctx context.Context) error {
		return u.txManager.WithTx(ctx, func(ctx context.Context) error {
			r := newRollback(u, s, snapshot, folderVersion.Tree(), versions)
			if err := r.run(ctx); err != nil {
				return err
			}
			result = r.result
			return nil
		})
	})
	if err != nil {
		if isConcurrentWrite(err) {
			return nil, fmt.Errorf("%w: %w", snapshotsDomain.ErrSnapshotInconsistent, err)
		}
		return nil, err
	}

	u.logger.Info("snapshot rolled back",
		slog.String("environment_id", s.EnvironmentID.String()),
		slog.String("snapshot_id", snapshot.ID.String()),
		slog.Int("folders_created", result.FoldersCreated),
		slog.Int("folders_updated", result.FoldersUpdated),
		slog.Int("folders_deleted", result.FoldersDeleted),
		slog.Int("secrets_created", result.SecretsCreated),
		slog.Int("secrets_updated", result.SecretsUpdated),
		slog.Int("secrets_deleted", result.SecretsDeleted),
	)
	return result, nil
}

// Get returns a snapshot of the environment.
func (u *snapshotUseCase) Get(
	ctx context.Context,
	s scope.Scope,
	snapshotID uuid.UUID,
) (*snapshotsDomain.Snapshot, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	snapshot, err := u.snapshotRepo.Get(ctx, s.EnvironmentID, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.ProjectID != s.ProjectID {
		return nil, snapshotsDomain.ErrSnapshotNotFound
	}
	return snapshot, nil
}

// List returns the snapshots of the environment, newest first.
func (u *snapshotUseCase) List(ctx context.Context, s scope.Scope) ([]*snapshotsDomain.Snapshot, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	snapshots, err := u.snapshotRepo.ListByEnvironment(ctx, s.EnvironmentID)
	if err != nil {
		return nil, err
	}
	owned := snapshots[:0]
	for _, snapshot := range snapshots {
		if snapshot.ProjectID == s.ProjectID {
			owned = append(owned, snapshot)
		}
	}
	return owned, nil
}

// resolve walks segments from the environment root.
func (u *snapshotUseCase) resolve(ctx context.Context, s scope.Scope, segments []string) (*foldersDomain.Folder, error) {
	folder, err := u.folderRepo.GetRoot(ctx, s.EnvironmentID)
	if err != nil {
		return nil, err
	}
	for i, segment := range segments {
		folder, err = u.folderRepo.GetChild(ctx, s.EnvironmentID, folder.ID, segment)
		if err != nil {
			if errors.Is(err, foldersDomain.ErrFolderNotFound) {
				return nil, fmt.Errorf("%w: %s", foldersDomain.ErrFolderNotFound, foldersDomain.JoinPath(segments[:i+1]))
			}
			return nil, err
		}
	}
	if folder.ProjectID != s.ProjectID {
		return nil, foldersDomain.ErrFolderNotFound
	}
	return folder, nil
}

// isConcurrentWrite reports whether a rollback lost a race against another writer.
func isConcurrentWrite(err error) bool {
	return errors.Is(err, secretsDomain.ErrSecretModified) ||
		errors.Is(err, secretsDomain.ErrDuplicateSecret) ||
		errors.Is(err, foldersDomain.ErrFolderModified) ||
		errors.Is(err, foldersDomain.ErrFolderExists) ||
		errors.Is(err, versionsDomain.ErrVersionConflict)
}

func folderSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// NewSnapshotUseCase creates a SnapshotUseCase.
func NewSnapshotUseCase(
	txManager database.TxManager,
	snapshotRepo SnapshotRepository,
	folderRepo foldersUseCase.FolderRepository,
	secretRepo secretsUseCase.SecretRepository,
	secretVersionRepo versionsUseCase.SecretVersionRepository,
	versioning versionsUseCase.VersioningUseCase,
	logger *slog.Logger,
) SnapshotUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &snapshotUseCase{
		txManager:         txManager,
		snapshotRepo:      snapshotRepo,
		folderRepo:        folderRepo,
		secretRepo:        secretRepo,
		secretVersionRepo: secretVersionRepo,
		versioning:        versioning,
		logger:            logger,
	}
}
