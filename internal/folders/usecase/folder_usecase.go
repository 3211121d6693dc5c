package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/envsafe/internal/database"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/retry"
	"github.com/allisson/envsafe/internal/scope"
	customValidation "github.com/allisson/envsafe/internal/validation"
	versionsUseCase "github.com/allisson/envsafe/internal/versions/usecase"
)

// folderUseCase implements FolderUseCase.
type folderUseCase struct {
	txManager  database.TxManager
	folderRepo FolderRepository
	versioning versionsUseCase.VersioningUseCase
	purger     SecretPurger
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// InitEnvironment creates the root folder of an environment and records tree version 1.
func (f *folderUseCase) InitEnvironment(ctx context.Context, s scope.Scope) (*foldersDomain.Folder, error) {
	var root *foldersDomain.Folder
	err := f.mutate(ctx, s, "folders.init_environment", func(ctx context.Context) error {
		_, err := f.folderRepo.GetRoot(ctx, s.EnvironmentID)
		switch {
		case err == nil:
			return foldersDomain.ErrEnvironmentInitialized
		case !errors.Is(err, foldersDomain.ErrFolderNotFound):
			return err
		}

		now := time.Now().UTC()
		root = &foldersDomain.Folder{
			ID:            uuid.Must(uuid.NewV7()),
			ProjectID:     s.ProjectID,
			EnvironmentID: s.EnvironmentID,
			Name:          foldersDomain.RootFolderName,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := f.folderRepo.Create(ctx, root); err != nil {
			if errors.Is(err, foldersDomain.ErrFolderExists) {
				return foldersDomain.ErrEnvironmentInitialized
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("environment initialized",
		slog.String("project_id", s.ProjectID.String()),
		slog.String("environment_id", s.EnvironmentID.String()),
		slog.String("root_folder_id", root.ID.String()),
	)
	return root, nil
}

// Create adds a folder named name under parentID.
func (f *folderUseCase) Create(
	ctx context.Context,
	s scope.Scope,
	parentID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var created *foldersDomain.Folder
	err := f.mutate(ctx, s, "folders.create", func(ctx context.Context) error {
		parent, err := f.get(ctx, s, parentID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		created = &foldersDomain.Folder{
			ID:            uuid.Must(uuid.NewV7()),
			ProjectID:     s.ProjectID,
			EnvironmentID: s.EnvironmentID,
			ParentID:      &parent.ID,
			Name:          name,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return f.folderRepo.Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Rename changes the name of a folder. Renaming to the current name is a no-op.
func (f *folderUseCase) Rename(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var updated *foldersDomain.Folder
	err := f.mutate(ctx, s, "folders.rename", func(ctx context.Context) error {
		folder, err := f.get(ctx, s, folderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return foldersDomain.ErrRootFolderImmutable
		}
		if folder.Name == name {
			updated = folder
			return errUnchanged
		}

		folder.Name = name
		updated, err = f.bump(ctx, folder)
		return err
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}
	return updated, nil
}

// Move places a folder under newParentID.
func (f *folderUseCase) Move(
	ctx context.Context,
	s scope.Scope,
	folderID, newParentID uuid.UUID,
) (*foldersDomain.Folder, error) {
	var updated *foldersDomain.Folder
	err := f.mutate(ctx, s, "folders.move", func(ctx context.Context) error {
		folder, err := f.get(ctx, s, folderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return foldersDomain.ErrRootFolderImmutable
		}
		if *folder.ParentID == newParentID {
			updated = folder
			return errUnchanged
		}
		if _, err := f.get(ctx, s, newParentID); err != nil {
			return err
		}

		subtree, err := f.subtree(ctx, s, folderID)
		if err != nil {
			return err
		}
		if subtree.Contains(newParentID) {
			return fmt.Errorf("%w: %s is inside %s", foldersDomain.ErrFolderCycle, newParentID, folderID)
		}

		folder.ParentID = &newParentID
		updated, err = f.bump(ctx, folder)
		return err
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}
	return updated, nil
}

// Delete removes a folder and everything below it. Secrets are purged before the
// folder that holds them and descendants go before their parents, so foreign keys
// never block the walk.
func (f *folderUseCase) Delete(ctx context.Context, s scope.Scope, folderID uuid.UUID) error {
	var folders, secrets int
	err := f.mutate(ctx, s, "folders.delete", func(ctx context.Context) error {
		folders, secrets = 0, 0

		folder, err := f.get(ctx, s, folderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return foldersDomain.ErrRootFolderImmutable
		}

		subtree, err := f.subtree(ctx, s, folderID)
		if err != nil {
			return err
		}
		ids := subtree.FolderIDs()
		slices.Reverse(ids)
		for _, id := range ids {
			purged, err := f.purger.PurgeFolder(ctx, s, id)
			if err != nil {
				return err
			}
			if err := f.folderRepo.Delete(ctx, id); err != nil {
				return err
			}
			secrets += purged
			folders++
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("folder deleted",
		slog.String("environment_id", s.EnvironmentID.String()),
		slog.String("folder_id", folderID.String()),
		slog.Int("folders", folders),
		slog.Int("secrets", secrets),
	)
	return nil
}

// Get returns a folder of the environment.
func (f *folderUseCase) Get(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Folder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return f.get(ctx, s, folderID)
}

// ResolvePath walks path segment by segment from the root folder.
func (f *folderUseCase) ResolvePath(ctx context.Context, s scope.Scope, path string) (*foldersDomain.Folder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	segments, err := foldersDomain.ParsePath(path)
	if err != nil {
		return nil, err
	}

	folder, err := f.folderRepo.GetRoot(ctx, s.EnvironmentID)
	if err != nil {
		return nil, err
	}
	for i, segment := range segments {
		folder, err = f.folderRepo.GetChild(ctx, s.EnvironmentID, folder.ID, segment)
		if err != nil {
			if errors.Is(err, foldersDomain.ErrFolderNotFound) {
				return nil, fmt.Errorf("%w: %s", foldersDomain.ErrFolderNotFound,
					foldersDomain.JoinPath(segments[:i+1]))
			}
			return nil, err
		}
	}
	return folder, nil
}

// Path returns the absolute path of a folder.
func (f *folderUseCase) Path(ctx context.Context, s scope.Scope, folderID uuid.UUID) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	root, err := f.folderRepo.GetRoot(ctx, s.EnvironmentID)
	if err != nil {
		return "", err
	}
	tree, err := f.subtree(ctx, s, root.ID)
	if err != nil {
		return "", err
	}
	idx, ok := tree.Find(folderID)
	if !ok {
		return "", foldersDomain.ErrFolderNotFound
	}
	return tree.Path(idx), nil
}

// Tree returns the subtree rooted at folderID.
func (f *folderUseCase) Tree(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Tree, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return f.subtree(ctx, s, folderID)
}

// errUnchanged aborts a mutation that would not change anything, so no tree
// version is recorded.
var errUnchanged = errors.New("folder unchanged")

// mutate runs fn under the environment tree lock and in a transaction, then
// records the resulting environment tree.
func (f *folderUseCase) mutate(
	ctx context.Context,
	s scope.Scope,
	operation string,
	fn func(ctx context.Context) error,
) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return f.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return f.versioning.WithTreeLock(ctx, s.EnvironmentID, func(ctx context.Context) error {
			return f.txManager.WithTx(ctx, func(ctx context.Context) error {
				if err := fn(ctx); err != nil {
					return err
				}
				return f.recordTree(ctx, s)
			})
		})
	})
}

func (f *folderUseCase) recordTree(ctx context.Context, s scope.Scope) error {
	root, err := f.folderRepo.GetRoot(ctx, s.EnvironmentID)
	if err != nil {
		return err
	}
	tree, err := f.subtree(ctx, s, root.ID)
	if err != nil {
		return err
	}
	_, err = f.versioning.RecordFolderVersion(ctx, s.EnvironmentID, tree, s.Actor)
	return err
}

func (f *folderUseCase) get(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Folder, error) {
	folder, err := f.folderRepo.Get(ctx, s.EnvironmentID, folderID)
	if err != nil {
		return nil, err
	}
	if folder.ProjectID != s.ProjectID {
		return nil, foldersDomain.ErrFolderNotFound
	}
	return folder, nil
}

func (f *folderUseCase) subtree(ctx context.Context, s scope.Scope, rootID uuid.UUID) (*foldersDomain.Tree, error) {
	folders, err := f.folderRepo.ListByEnvironment(ctx, s.EnvironmentID)
	if err != nil {
		return nil, err
	}
	return foldersDomain.BuildTree(folders, rootID)
}

// bump writes folder as the next version of the stored row.
func (f *folderUseCase) bump(ctx context.Context, folder *foldersDomain.Folder) (*foldersDomain.Folder, error) {
	expected := folder.Version
	folder.Version++
	folder.UpdatedAt = time.Now().UTC()
	if err := f.folderRepo.Update(ctx, folder, expected); err != nil {
		return nil, err
	}
	return folder, nil
}

func validateName(name string) error {
	return customValidation.WrapValidationError(validation.Validate(name, customValidation.FolderNameRules()...))
}

// NewFolderUseCase creates a FolderUseCase. A nil retrier disables retries.
func NewFolderUseCase(
	txManager database.TxManager,
	folderRepo FolderRepository,
	versioning versionsUseCase.VersioningUseCase,
	purger SecretPurger,
	retrier *retry.Retrier,
	logger *slog.Logger,
) FolderUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if retrier == nil {
		retrier = retry.New(retry.Policy{}, logger)
	}
	return &folderUseCase{
		txManager:  txManager,
		folderRepo: folderRepo,
		versioning: versioning,
		purger:     purger,
		retrier:    retrier,
		logger:     logger,
	}
}
