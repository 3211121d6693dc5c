package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/allisson/envsafe/internal/scope"
	secretsUseCase "github.com/allisson/envsafe/internal/secrets/usecase"
)

// rewrapOutput is the JSON summary of a rewrap run.
type rewrapOutput struct {
	ProjectID string `json:"project_id"`
	Batches   int    `json:"batches"`
	Rewrapped int    `json:"rewrapped"`
	Failed    int    `json:"failed"`
}

// RunRewrapSecrets moves every secret of a project that is still sealed under a
// retired project key onto the active key, in batches of batchSize. The run is
// throttled to batchesPerSecond batches (0 disables throttling). Secrets that
// fail are counted and skipped; rerun the command to retry them.
func RunRewrapSecrets(
	ctx context.Context,
	secrets secretsUseCase.SecretUseCase,
	logger *slog.Logger,
	writer io.Writer,
	projectIDStr, actorKind, actorIDStr string,
	batchSize int,
	batchesPerSecond float64,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if batchesPerSecond < 0 {
		return fmt.Errorf("rate must not be negative")
	}

	projectID, err := parseID("project-id", projectIDStr)
	if err != nil {
		return err
	}
	actorID, err := parseID("actor-id", actorIDStr)
	if err != nil {
		return err
	}
	actor, err := scope.ParseActor(actorKind, actorID)
	if err != nil {
		return fmt.Errorf("invalid actor: %w", err)
	}

	limit := rate.Inf
	if batchesPerSecond > 0 {
		limit = rate.Limit(batchesPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	logger.Info("starting secret rewrap process",
		slog.String("project_id", projectID.String()),
		slog.Int("batch_size", batchSize),
		slog.Float64("batches_per_second", batchesPerSecond),
	)

	output := rewrapOutput{ProjectID: projectID.String()}
	afterID := uuid.Nil
	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rewrap interrupted after %d secrets: %w", output.Rewrapped, err)
		}

		result, err := secrets.Rewrap(ctx, projectID, actor, afterID, batchSize)
		if err != nil {
			return fmt.Errorf("failed to rewrap secrets in batch: %w", err)
		}

		output.Batches++
		output.Rewrapped += result.Rewrapped
		output.Failed += result.Failed
		logger.Info("rewrapped batch of secrets",
			slog.Int("rewrapped_in_batch", result.Rewrapped),
			slog.Int("failed_in_batch", result.Failed),
			slog.Int("total_rewrapped", output.Rewrapped),
		)

		if result.Done {
			break
		}
		afterID = result.LastID
	}

	logger.Info("secret rewrap process completed",
		slog.Int("total_rewrapped", output.Rewrapped),
		slog.Int("total_failed", output.Failed),
	)

	if format == "json" {
		return writeJSON(writer, output)
	}
	_, _ = fmt.Fprintf(writer, "Rewrapped %d secrets in %d batches (%d failed)\n",
		output.Rewrapped, output.Batches, output.Failed)
	return nil
}
