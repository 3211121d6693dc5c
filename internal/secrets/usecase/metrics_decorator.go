package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/metrics"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

// secretUseCaseWithMetrics decorates SecretUseCase with metrics instrumentation.
type secretUseCaseWithMetrics struct {
	next    SecretUseCase
	metrics metrics.BusinessMetrics
}

// NewSecretUseCaseWithMetrics wraps a SecretUseCase with metrics recording.
func NewSecretUseCaseWithMetrics(useCase SecretUseCase, m metrics.BusinessMetrics) SecretUseCase {
	return &secretUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (s *secretUseCaseWithMetrics) observe(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, s.metrics, "secrets", operation, start, err)
}

// Create records metrics for secret creation.
func (s *secretUseCaseWithMetrics) Create(
	ctx context.Context,
	sc scope.Scope,
	input *secretsDomain.CreateSecretInput,
) (*secretsDomain.Secret, error) {
	start := time.Now()
	secret, err := s.next.Create(ctx, sc, input)
	s.observe(ctx, "secret_create", start, err)
	return secret, err
}

// Update records metrics for secret updates.
func (s *secretUseCaseWithMetrics) Update(
	ctx context.Context,
	sc scope.Scope,
	secretID uuid.UUID,
	input *secretsDomain.UpdateSecretInput,
) (*secretsDomain.Secret, error) {
	start := time.Now()
	secret, err := s.next.Update(ctx, sc, secretID, input)
	s.observe(ctx, "secret_update", start, err)
	return secret, err
}

// Delete records metrics for secret deletion.
func (s *secretUseCaseWithMetrics) Delete(ctx context.Context, sc scope.Scope, secretID uuid.UUID) error {
	start := time.Now()
	err := s.next.Delete(ctx, sc, secretID)
	s.observe(ctx, "secret_delete", start, err)
	return err
}

// Get records metrics for secret retrieval.
func (s *secretUseCaseWithMetrics) Get(
	ctx context.Context,
	sc scope.Scope,
	secretID uuid.UUID,
) (*secretsDomain.Secret, error) {
	start := time.Now()
	secret, err := s.next.Get(ctx, sc, secretID)
	s.observe(ctx, "secret_get", start, err)
	return secret, err
}

// ListByFolder records metrics for folder listings.
func (s *secretUseCaseWithMetrics) ListByFolder(
	ctx context.Context,
	sc scope.Scope,
	folderID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	start := time.Now()
	secrets, err := s.next.ListByFolder(ctx, sc, folderID)
	s.observe(ctx, "secret_list", start, err)
	return secrets, err
}

// FindByName records metrics for blind index lookups.
func (s *secretUseCaseWithMetrics) FindByName(
	ctx context.Context,
	sc scope.Scope,
	folderID uuid.UUID,
	name string,
) (*secretsDomain.Secret, error) {
	start := time.Now()
	secret, err := s.next.FindByName(ctx, sc, folderID, name)
	s.observe(ctx, "secret_find_by_name", start, err)
	return secret, err
}

// Reveal records metrics for single secret decryption.
func (s *secretUseCaseWithMetrics) Reveal(
	ctx context.Context,
	sc scope.Scope,
	secretID uuid.UUID,
) (*secretsDomain.RevealedSecret, error) {
	start := time.Now()
	revealed, err := s.next.Reveal(ctx, sc, secretID)
	s.observe(ctx, "secret_reveal", start, err)
	return revealed, err
}

// RevealAll records metrics for folder decryption. Per-item failures do not
// make the operation an error.
func (s *secretUseCaseWithMetrics) RevealAll(
	ctx context.Context,
	sc scope.Scope,
	folderID uuid.UUID,
) ([]*secretsDomain.RevealedSecret, error) {
	start := time.Now()
	revealed, err := s.next.RevealAll(ctx, sc, folderID)
	s.observe(ctx, "secret_reveal_all", start, err)
	return revealed, err
}

// PurgeFolder records metrics for folder purges.
func (s *secretUseCaseWithMetrics) PurgeFolder(ctx context.Context, sc scope.Scope, folderID uuid.UUID) (int, error) {
	start := time.Now()
	purged, err := s.next.PurgeFolder(ctx, sc, folderID)
	s.observe(ctx, "secret_purge_folder", start, err)
	return purged, err
}

// Rewrap records metrics for rewrap batches.
func (s *secretUseCaseWithMetrics) Rewrap(
	ctx context.Context,
	projectID uuid.UUID,
	actor scope.Actor,
	afterID uuid.UUID,
	batchSize int,
) (*secretsDomain.RewrapResult, error) {
	start := time.Now()
	result, err := s.next.Rewrap(ctx, projectID, actor, afterID, batchSize)
	s.observe(ctx, "secret_rewrap", start, err)
	return result, err
}
