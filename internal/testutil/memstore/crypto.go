package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// KmsKeyRepository stores kms_keys rows.
type KmsKeyRepository struct {
	s *Store
}

// Create inserts a key version.
func (r *KmsKeyRepository) Create(ctx context.Context, key *cryptoDomain.KmsKey) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("kms_keys.Create"); err != nil {
		return err
	}

	if _, ok := r.s.t.kmsKeys[key.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", cryptoDomain.ErrKeyRotationConflict, key.ID)
	}
	for _, k := range r.s.t.kmsKeys {
		if k.Scope() != key.Scope() {
			continue
		}
		if k.Version == key.Version {
			return fmt.Errorf("%w: version %d of %s exists", cryptoDomain.ErrKeyRotationConflict, key.Version, key.Scope())
		}
		if k.IsActive && key.IsActive {
			return fmt.Errorf("%w: %s already has an active key", cryptoDomain.ErrKeyRotationConflict, key.Scope())
		}
	}
	r.s.t.kmsKeys[key.ID] = cloneKmsKey(key)
	return nil
}

// Get retrieves a key version by id.
func (r *KmsKeyRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.KmsKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.t.kmsKeys[id]
	if !ok {
		return nil, cryptoDomain.ErrKmsKeyNotFound
	}
	return cloneKmsKey(k), nil
}

// GetActive retrieves the active key version of a scope.
func (r *KmsKeyRepository) GetActive(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, k := range r.s.t.kmsKeys {
		if k.Scope() == scope && k.IsActive {
			return cloneKmsKey(k), nil
		}
	}
	return nil, cryptoDomain.ErrKeyNotProvisioned
}

// ListByScope returns every version of a scope key, newest first.
func (r *KmsKeyRepository) ListByScope(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) ([]*cryptoDomain.KmsKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var keys []*cryptoDomain.KmsKey
	for _, k := range r.s.t.kmsKeys {
		if k.Scope() == scope {
			keys = append(keys, cloneKmsKey(k))
		}
	}
	slices.SortFunc(keys, func(a, b *cryptoDomain.KmsKey) int { return int(b.Version) - int(a.Version) })
	return keys, nil
}

// Retire deactivates an active key version.
func (r *KmsKeyRepository) Retire(ctx context.Context, id uuid.UUID, retiredAt time.Time) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("kms_keys.Retire"); err != nil {
		return err
	}

	k, ok := r.s.t.kmsKeys[id]
	if !ok || !k.IsActive {
		return cryptoDomain.ErrKeyRotationConflict
	}
	k.IsActive = false
	k.RetiredAt = &retiredAt
	return nil
}

// BlindIndexSaltRepository stores blind_index_salts rows.
type BlindIndexSaltRepository struct {
	s *Store
}

// Create inserts the salt of a project.
func (r *BlindIndexSaltRepository) Create(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("blind_index_salts.Create"); err != nil {
		return err
	}

	if _, ok := r.s.t.salts[salt.ProjectID]; ok {
		return cryptoDomain.ErrScopeAlreadyProvisioned
	}
	if _, ok := r.s.t.kmsKeys[salt.KmsKeyID]; !ok {
		return fmt.Errorf("foreign key violation: kms key %s", salt.KmsKeyID)
	}
	r.s.t.salts[salt.ProjectID] = cloneSalt(salt)
	return nil
}

// Get retrieves the sealed salt of a project.
func (r *BlindIndexSaltRepository) Get(ctx context.Context, projectID uuid.UUID) (*cryptoDomain.BlindIndexSalt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	salt, ok := r.s.t.salts[projectID]
	if !ok {
		return nil, cryptoDomain.ErrBlindIndexSaltNotFound
	}
	return cloneSalt(salt), nil
}

// Update replaces the sealed salt of a project.
func (r *BlindIndexSaltRepository) Update(ctx context.Context, salt *cryptoDomain.BlindIndexSalt) error {
	defer r.s.lock(ctx)()
	if err := r.s.fault("blind_index_salts.Update"); err != nil {
		return err
	}

	stored, ok := r.s.t.salts[salt.ProjectID]
	if !ok {
		return cryptoDomain.ErrBlindIndexSaltNotFound
	}
	stored.KmsKeyID = salt.KmsKeyID
	stored.EncryptedSalt = slices.Clone(salt.EncryptedSalt)
	stored.UpdatedAt = salt.UpdatedAt
	return nil
}
