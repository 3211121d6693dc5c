package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	secretsMocks "github.com/allisson/envsafe/internal/secrets/usecase/mocks"
)

func TestRunRewrapSecrets(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	projectID := uuid.Must(uuid.NewV7())
	actorID := uuid.Must(uuid.NewV7())
	actor := scope.ServiceTokenActor(actorID)

	t.Run("success-multiple-batches", func(t *testing.T) {
		cursor := uuid.Must(uuid.NewV7())

		secrets := &secretsMocks.MockSecretUseCase{}
		secrets.On("Rewrap", mock.Anything, projectID, actor, uuid.Nil, 2).
			Return(&secretsDomain.RewrapResult{Rewrapped: 2, LastID: cursor}, nil).Once()
		secrets.On("Rewrap", mock.Anything, projectID, actor, cursor, 2).
			Return(&secretsDomain.RewrapResult{Rewrapped: 1, Failed: 1, LastID: uuid.Must(uuid.NewV7()), Done: true}, nil).
			Once()

		var out bytes.Buffer
		err := RunRewrapSecrets(ctx, secrets, logger, &out, projectID.String(), "service_token", actorID.String(), 2, 0, "text")
		require.NoError(t, err)
		require.Equal(t, "Rewrapped 3 secrets in 2 batches (1 failed)\n", out.String())
		secrets.AssertExpectations(t)
	})

	t.Run("success-json-throttled", func(t *testing.T) {
		secrets := &secretsMocks.MockSecretUseCase{}
		secrets.On("Rewrap", mock.Anything, projectID, actor, uuid.Nil, 100).
			Return(&secretsDomain.RewrapResult{Done: true}, nil).Once()

		var out bytes.Buffer
		err := RunRewrapSecrets(ctx, secrets, logger, &out, projectID.String(), "service_token", actorID.String(), 100, 5, "json")
		require.NoError(t, err)

		var result rewrapOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		require.Equal(t, rewrapOutput{ProjectID: projectID.String(), Batches: 1}, result)
	})

	t.Run("batch-error", func(t *testing.T) {
		secrets := &secretsMocks.MockSecretUseCase{}
		secrets.On("Rewrap", mock.Anything, projectID, actor, uuid.Nil, 10).
			Return(nil, errors.New("database unavailable"))

		err := RunRewrapSecrets(ctx, secrets, logger, &bytes.Buffer{}, projectID.String(), "service_token", actorID.String(), 10, 0, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to rewrap secrets in batch")
	})

	t.Run("canceled-context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := RunRewrapSecrets(
			canceled,
			&secretsMocks.MockSecretUseCase{},
			logger,
			&bytes.Buffer{},
			projectID.String(),
			"service_token",
			actorID.String(),
			10,
			1,
			"text",
		)
		require.Error(t, err)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid-arguments", func(t *testing.T) {
		tests := []struct {
			name      string
			projectID string
			actorKind string
			actorID   string
			batchSize int
			rate      float64
			format    string
			want      string
		}{
			{"zero-batch", projectID.String(), "user", actorID.String(), 0, 0, "text", "batch-size must be greater than 0"},
			{"negative-rate", projectID.String(), "user", actorID.String(), 10, -1, "text", "rate must not be negative"},
			{"bad-project", "x", "user", actorID.String(), 10, 0, "text", "invalid project-id"},
			{"bad-actor-id", projectID.String(), "user", "", 10, 0, "text", "invalid actor-id"},
			{"bad-actor-kind", projectID.String(), "robot", actorID.String(), 10, 0, "text", "invalid actor"},
			{"bad-format", projectID.String(), "user", actorID.String(), 10, 0, "xml", "invalid format"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := RunRewrapSecrets(
					ctx,
					&secretsMocks.MockSecretUseCase{},
					logger,
					&bytes.Buffer{},
					tt.projectID,
					tt.actorKind,
					tt.actorID,
					tt.batchSize,
					tt.rate,
					tt.format,
				)
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.want)
			})
		}
	})
}
