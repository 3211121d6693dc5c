package memstore

import (
	"context"
	"slices"

	"github.com/google/uuid"

	apperrors "github.com/allisson/envsafe/internal/errors"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

// SecretRepository stores secrets rows.
type SecretRepository struct {
	s *Store
}

func (r *SecretRepository) duplicate(secret *secretsDomain.Secret) bool {
	for _, other := range r.s.t.secrets {
		if other.ID != secret.ID && other.FolderID == secret.FolderID && other.BlindIndex == secret.BlindIndex {
			return true
		}
	}
	return false
}

func sortByCreation(secrets []*secretsDomain.Secret) {
	slices.SortFunc(secrets, func(a, b *secretsDomain.Secret) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
}

// Create inserts a secret.
func (r *SecretRepository) Create(ctx context.Context, secret *secretsDomain.Secret) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secrets.Create"); err != nil {
		return err
	}

	if _, ok := r.s.t.secrets[secret.ID]; ok {
		return secretsDomain.ErrDuplicateSecret
	}
	if _, ok := r.s.t.folders[secret.FolderID]; !ok {
		return apperrors.Wrapf(apperrors.ErrConflict, "foreign key violation: folder %s", secret.FolderID)
	}
	if r.duplicate(secret) {
		return secretsDomain.ErrDuplicateSecret
	}
	r.s.t.secrets[secret.ID] = secret.Clone()
	return nil
}

// Get retrieves a secret of an environment.
func (r *SecretRepository) Get(ctx context.Context, environmentID, id uuid.UUID) (*secretsDomain.Secret, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	secret, ok := r.s.t.secrets[id]
	if !ok || secret.EnvironmentID != environmentID {
		return nil, secretsDomain.ErrSecretNotFound
	}
	return secret.Clone(), nil
}

// GetByBlindIndex retrieves a secret by folder and name index.
func (r *SecretRepository) GetByBlindIndex(
	ctx context.Context,
	folderID uuid.UUID,
	blindIndex string,
) (*secretsDomain.Secret, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, secret := range r.s.t.secrets {
		if secret.FolderID == folderID && secret.BlindIndex == blindIndex {
			return secret.Clone(), nil
		}
	}
	return nil, secretsDomain.ErrSecretNotFound
}

// ListByFolder returns the secrets of a folder.
func (r *SecretRepository) ListByFolder(ctx context.Context, folderID uuid.UUID) ([]*secretsDomain.Secret, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var secrets []*secretsDomain.Secret
	for _, secret := range r.s.t.secrets {
		if secret.FolderID == folderID {
			secrets = append(secrets, secret.Clone())
		}
	}
	sortByCreation(secrets)
	return secrets, nil
}

// ListByEnvironment returns the secrets of an environment.
func (r *SecretRepository) ListByEnvironment(
	ctx context.Context,
	environmentID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var secrets []*secretsDomain.Secret
	for _, secret := range r.s.t.secrets {
		if secret.EnvironmentID == environmentID {
			secrets = append(secrets, secret.Clone())
		}
	}
	sortByCreation(secrets)
	return secrets, nil
}

// ListForRewrap returns the next batch of secrets not sealed under activeKeyID.
func (r *SecretRepository) ListForRewrap(
	ctx context.Context,
	projectID, activeKeyID, afterID uuid.UUID,
	limit int,
) ([]*secretsDomain.Secret, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var secrets []*secretsDomain.Secret
	for _, secret := range r.s.t.secrets {
		if secret.ProjectID == projectID && secret.KmsKeyID != activeKeyID && compareIDs(secret.ID, afterID) > 0 {
			secrets = append(secrets, secret.Clone())
		}
	}
	slices.SortFunc(secrets, func(a, b *secretsDomain.Secret) int { return compareIDs(a.ID, b.ID) })
	if limit > 0 && len(secrets) > limit {
		secrets = secrets[:limit]
	}
	return secrets, nil
}

// Update writes a secret whose stored version is expectedVersion.
func (r *SecretRepository) Update(ctx context.Context, secret *secretsDomain.Secret, expectedVersion uint) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secrets.Update"); err != nil {
		return err
	}

	stored, ok := r.s.t.secrets[secret.ID]
	if !ok || stored.Version != expectedVersion {
		return secretsDomain.ErrSecretModified
	}
	if _, ok := r.s.t.folders[secret.FolderID]; !ok {
		return apperrors.Wrapf(apperrors.ErrConflict, "foreign key violation: folder %s", secret.FolderID)
	}
	if r.duplicate(secret) {
		return secretsDomain.ErrDuplicateSecret
	}
	updated := secret.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.ProjectID = stored.ProjectID
	updated.EnvironmentID = stored.EnvironmentID
	r.s.t.secrets[secret.ID] = updated
	return nil
}

// Delete removes a secret whose stored version is expectedVersion.
func (r *SecretRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion uint) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("secrets.Delete"); err != nil {
		return err
	}

	stored, ok := r.s.t.secrets[id]
	if !ok || stored.Version != expectedVersion {
		return secretsDomain.ErrSecretModified
	}
	delete(r.s.t.secrets, id)
	return nil
}
