package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	"github.com/allisson/envsafe/internal/metrics"
)

// kmsUseCaseWithMetrics decorates KMSUseCase with metrics instrumentation.
type kmsUseCaseWithMetrics struct {
	next    KMSUseCase
	metrics metrics.BusinessMetrics
}

// NewKMSUseCaseWithMetrics wraps a KMSUseCase with metrics recording.
func NewKMSUseCaseWithMetrics(useCase KMSUseCase, m metrics.BusinessMetrics) KMSUseCase {
	return &kmsUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (k *kmsUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, k.metrics, "kms", operation, start, err)
}

// ProvisionOrganization records metrics for organization provisioning.
func (k *kmsUseCaseWithMetrics) ProvisionOrganization(
	ctx context.Context,
	organizationID uuid.UUID,
) (*cryptoDomain.KmsKey, error) {
	start := time.Now()
	key, err := k.next.ProvisionOrganization(ctx, organizationID)
	k.record(ctx, "provision_organization", start, err)
	return key, err
}

// ProvisionProject records metrics for project provisioning.
func (k *kmsUseCaseWithMetrics) ProvisionProject(
	ctx context.Context,
	organizationID, projectID uuid.UUID,
) (*cryptoDomain.KmsKey, error) {
	start := time.Now()
	key, err := k.next.ProvisionProject(ctx, organizationID, projectID)
	k.record(ctx, "provision_project", start, err)
	return key, err
}

// ActiveKey delegates without recording; it is a metadata lookup.
func (k *kmsUseCaseWithMetrics) ActiveKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) (*cryptoDomain.KmsKey, error) {
	return k.next.ActiveKey(ctx, scope)
}

// GenerateDataKey records metrics for data key generation.
func (k *kmsUseCaseWithMetrics) GenerateDataKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) ([]byte, *cryptoDomain.WrappedDataKey, error) {
	start := time.Now()
	plain, wrapped, err := k.next.GenerateDataKey(ctx, scope)
	k.record(ctx, "generate_data_key", start, err)
	return plain, wrapped, err
}

// EncryptWithScopeKey records metrics for encryption.
func (k *kmsUseCaseWithMetrics) EncryptWithScopeKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	plaintext []byte,
) ([]byte, error) {
	start := time.Now()
	blob, err := k.next.EncryptWithScopeKey(ctx, scope, plaintext)
	k.record(ctx, "encrypt", start, err)
	return blob, err
}

// DecryptWithScopeKey records metrics for decryption.
func (k *kmsUseCaseWithMetrics) DecryptWithScopeKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	data []byte,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := k.next.DecryptWithScopeKey(ctx, scope, data)
	k.record(ctx, "decrypt", start, err)
	return plaintext, err
}

// RewrapBlob records metrics for blob rewrapping.
func (k *kmsUseCaseWithMetrics) RewrapBlob(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	data []byte,
) ([]byte, bool, error) {
	start := time.Now()
	blob, changed, err := k.next.RewrapBlob(ctx, scope, data)
	k.record(ctx, "rewrap_blob", start, err)
	return blob, changed, err
}

// RotateKey records metrics for key rotation.
func (k *kmsUseCaseWithMetrics) RotateKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) (*cryptoDomain.KmsKey, error) {
	start := time.Now()
	key, err := k.next.RotateKey(ctx, scope)
	k.record(ctx, "rotate_key", start, err)
	return key, err
}

// WithBlindIndexSalt records metrics for salt access.
func (k *kmsUseCaseWithMetrics) WithBlindIndexSalt(
	ctx context.Context,
	projectID uuid.UUID,
	fn func(salt []byte) error,
) error {
	start := time.Now()
	err := k.next.WithBlindIndexSalt(ctx, projectID, fn)
	k.record(ctx, "blind_index_salt", start, err)
	return err
}
