package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	foldersUseCase "github.com/allisson/envsafe/internal/folders/usecase"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
	snapshotsUseCase "github.com/allisson/envsafe/internal/snapshots/usecase"
)

// RunInitEnvironment creates the root folder of an environment. It fails when
// the environment already has one.
func RunInitEnvironment(
	ctx context.Context,
	folders foldersUseCase.FolderUseCase,
	logger *slog.Logger,
	writer io.Writer,
	args ScopeArgs,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	s, err := args.Scope()
	if err != nil {
		return err
	}

	root, err := folders.InitEnvironment(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to initialize environment: %w", err)
	}

	logger.Info("environment initialized",
		slog.String("environment_id", s.EnvironmentID.String()),
		slog.String("root_folder_id", root.ID.String()),
	)

	if format == "json" {
		return writeJSON(writer, map[string]string{
			"environment_id": s.EnvironmentID.String(),
			"root_folder_id": root.ID.String(),
		})
	}
	_, _ = fmt.Fprintln(writer, "Environment initialized successfully!")
	_, _ = fmt.Fprintf(writer, "Root folder ID: %s\n", root.ID)
	return nil
}

// snapshotOutput is the JSON form of a snapshot.
type snapshotOutput struct {
	ID            string    `json:"id"`
	Version       uint      `json:"version"`
	Status        string    `json:"status"`
	FolderPath    string    `json:"folder_path"`
	Secrets       int       `json:"secrets"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RunCaptureSnapshot captures the subtree at path ("/" for the whole
// environment). A capture that fails leaves a failed snapshot behind and the
// command reports its reason.
func RunCaptureSnapshot(
	ctx context.Context,
	snapshots snapshotsUseCase.SnapshotUseCase,
	logger *slog.Logger,
	writer io.Writer,
	args ScopeArgs,
	path, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	s, err := args.Scope()
	if err != nil {
		return err
	}

	snapshot, err := snapshots.Capture(ctx, s, path)
	if err != nil {
		return fmt.Errorf("failed to capture snapshot: %w", err)
	}

	logger.Info("snapshot captured",
		slog.String("snapshot_id", snapshot.ID.String()),
		slog.Uint64("version", uint64(snapshot.Version)),
	)

	if format == "json" {
		return writeJSON(writer, snapshotOutput{
			ID:            snapshot.ID.String(),
			Version:       snapshot.Version,
			Status:        string(snapshot.Status),
			FolderPath:    snapshot.FolderPath,
			Secrets:       len(snapshot.SecretVersionIDs),
			FailureReason: snapshot.FailureReason,
			CreatedAt:     snapshot.CreatedAt,
		})
	}
	_, _ = fmt.Fprintln(writer, "Snapshot captured successfully!")
	_, _ = fmt.Fprintf(writer, "Snapshot ID: %s\n", snapshot.ID)
	_, _ = fmt.Fprintf(writer, "Version: %d\n", snapshot.Version)
	_, _ = fmt.Fprintf(writer, "Path: %s\n", snapshot.FolderPath)
	_, _ = fmt.Fprintf(writer, "Secrets: %d\n", len(snapshot.SecretVersionIDs))
	return nil
}

// RunRollbackSnapshot restores the captured subtree of a snapshot.
func RunRollbackSnapshot(
	ctx context.Context,
	snapshots snapshotsUseCase.SnapshotUseCase,
	logger *slog.Logger,
	writer io.Writer,
	args ScopeArgs,
	snapshotIDStr, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	s, err := args.Scope()
	if err != nil {
		return err
	}
	snapshotID, err := parseID("snapshot-id", snapshotIDStr)
	if err != nil {
		return err
	}

	result, err := snapshots.Rollback(ctx, s, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to roll back snapshot: %w", err)
	}

	logger.Info("snapshot rolled back",
		slog.String("snapshot_id", snapshotID.String()),
		slog.Bool("changed", result.Changed()),
	)

	if format == "json" {
		return writeJSON(writer, rollbackOutput(result))
	}
	if !result.Changed() {
		_, _ = fmt.Fprintln(writer, "Nothing to roll back: the subtree already matches the snapshot.")
		return nil
	}
	_, _ = fmt.Fprintln(writer, "Snapshot rolled back successfully!")
	_, _ = fmt.Fprintf(writer, "Folders: %d created, %d updated, %d deleted\n",
		result.FoldersCreated, result.FoldersUpdated, result.FoldersDeleted)
	_, _ = fmt.Fprintf(writer, "Secrets: %d created, %d updated, %d deleted\n",
		result.SecretsCreated, result.SecretsUpdated, result.SecretsDeleted)
	return nil
}

func rollbackOutput(result *snapshotsDomain.RollbackResult) map[string]any {
	return map[string]any{
		"snapshot_id":     result.SnapshotID.String(),
		"changed":         result.Changed(),
		"folders_created": result.FoldersCreated,
		"folders_updated": result.FoldersUpdated,
		"folders_deleted": result.FoldersDeleted,
		"secrets_created": result.SecretsCreated,
		"secrets_updated": result.SecretsUpdated,
		"secrets_deleted": result.SecretsDeleted,
	}
}
