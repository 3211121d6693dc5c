// Package usecase implements business logic orchestration for the key hierarchy.
//
// # Key Hierarchy
//
//	root custodian (master key chain or KMS keeper)
//	  └── organization key (versioned, wrapped by the custodian)
//	        └── project key (versioned, sealed under one organization key version)
//	              └── data key (one per EncryptWithScopeKey call, embedded in the blob)
//
// Resolving a project key walks up to the custodian. Unwrapped scope keys are
// held in a KeyCache; blind index salts never are.
//
// # Rotation
//
// RotateKey retires the active version with a compare-and-swap update and inserts
// version N+1 in the same transaction. Retired versions keep their wrapped bytes,
// so blobs written before the rotation remain readable. RewrapBlob moves a blob's
// data key onto the active version without touching its payload.
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
	"github.com/allisson/envsafe/internal/database"
)

// kmsUseCase implements KMSUseCase.
type kmsUseCase struct {
	txManager  database.TxManager
	keyRepo    KmsKeyRepository
	saltRepo   BlindIndexSaltRepository
	keyManager cryptoService.KeyManager
	cipher     cryptoService.EnvelopeCipher
	custodian  cryptoService.RootCustodian
	cache      *KeyCache
	keyAlg     cryptoDomain.Algorithm
	dataKeyAlg cryptoDomain.Algorithm
	logger     *slog.Logger
}

// ProvisionOrganization creates version 1 of an organization key.
func (k *kmsUseCase) ProvisionOrganization(
	ctx context.Context,
	organizationID uuid.UUID,
) (*cryptoDomain.KmsKey, error) {
	scope := cryptoDomain.OrganizationScope(organizationID)

	var created *cryptoDomain.KmsKey
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := k.ensureUnprovisioned(ctx, scope); err != nil {
			return err
		}

		key, plain, err := k.keyManager.CreateOrganizationKey(ctx, k.custodian, organizationID, 1, k.keyAlg)
		if err != nil {
			return err
		}
		cryptoDomain.Zero(plain)

		if err := k.keyRepo.Create(ctx, key); err != nil {
			return translateProvisionConflict(err)
		}
		created = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	k.logger.Info("organization key provisioned",
		slog.String("organization_id", organizationID.String()),
		slog.String("kms_key_id", created.ID.String()),
	)
	return created, nil
}

// ProvisionProject creates version 1 of a project key and the project's blind
// index salt in one transaction.
func (k *kmsUseCase) ProvisionProject(
	ctx context.Context,
	organizationID, projectID uuid.UUID,
) (*cryptoDomain.KmsKey, error) {
	scope := cryptoDomain.ProjectScope(projectID)

	var created *cryptoDomain.KmsKey
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := k.ensureUnprovisioned(ctx, scope); err != nil {
			return err
		}

		parent, parentPlain, err := k.resolveActive(ctx, cryptoDomain.OrganizationScope(organizationID))
		if err != nil {
			return err
		}
		defer cryptoDomain.Zero(parentPlain)

		key, plain, err := k.keyManager.CreateProjectKey(parent, parentPlain, projectID, 1, k.keyAlg)
		if err != nil {
			return err
		}
		defer cryptoDomain.Zero(plain)

		if err := k.keyRepo.Create(ctx, key); err != nil {
			return translateProvisionConflict(err)
		}

		salt := make([]byte, cryptoDomain.KeySize)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		defer cryptoDomain.Zero(salt)

		sealed, err := k.keyManager.SealSalt(key, plain, salt)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := k.saltRepo.Create(ctx, &cryptoDomain.BlindIndexSalt{
			ProjectID:     projectID,
			KmsKeyID:      key.ID,
			EncryptedSalt: sealed,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}

		created = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	k.logger.Info("project key provisioned",
		slog.String("organization_id", organizationID.String()),
		slog.String("project_id", projectID.String()),
		slog.String("kms_key_id", created.ID.String()),
	)
	return created, nil
}

// ActiveKey returns the active key version of scope.
func (k *kmsUseCase) ActiveKey(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error) {
	return k.keyRepo.GetActive(ctx, scope)
}

// GenerateDataKey creates a data key wrapped under the active key of scope.
func (k *kmsUseCase) GenerateDataKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) ([]byte, *cryptoDomain.WrappedDataKey, error) {
	active, activePlain, err := k.resolveActive(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	defer cryptoDomain.Zero(activePlain)

	return k.keyManager.CreateDataKey(active, activePlain, k.dataKeyAlg)
}

// EncryptWithScopeKey seals plaintext and returns a SealedBlob.
func (k *kmsUseCase) EncryptWithScopeKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	plaintext []byte,
) ([]byte, error) {
	dataKey, wrapped, err := k.GenerateDataKey(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dataKey)

	payload, err := k.cipher.Seal(dataKey, k.dataKeyAlg, plaintext, []byte(scope.String()))
	if err != nil {
		return nil, err
	}

	blob := cryptoDomain.SealedBlob{
		KmsKeyID:       wrapped.KmsKeyID,
		WrappedDataKey: wrapped.WrappedKey,
		Payload:        payload,
	}
	return blob.Marshal()
}

// DecryptWithScopeKey opens a SealedBlob of scope.
func (k *kmsUseCase) DecryptWithScopeKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	data []byte,
) ([]byte, error) {
	blob, err := cryptoDomain.ParseSealedBlob(data)
	if err != nil {
		return nil, err
	}

	dataKey, err := k.openDataKey(ctx, scope, blob)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dataKey)

	return k.cipher.Open(dataKey, blob.Payload, []byte(scope.String()))
}

// RewrapBlob moves the data key of a blob onto the active key of scope.
func (k *kmsUseCase) RewrapBlob(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	data []byte,
) ([]byte, bool, error) {
	blob, err := cryptoDomain.ParseSealedBlob(data)
	if err != nil {
		return nil, false, err
	}

	active, activePlain, err := k.resolveActive(ctx, scope)
	if err != nil {
		return nil, false, err
	}
	defer cryptoDomain.Zero(activePlain)

	if blob.KmsKeyID == active.ID {
		return data, false, nil
	}

	dataKey, err := k.openDataKey(ctx, scope, blob)
	if err != nil {
		return nil, false, err
	}
	defer cryptoDomain.Zero(dataKey)

	payload, err := cryptoDomain.ParseSealedPayload(blob.Payload)
	if err != nil {
		return nil, false, err
	}

	wrapped, err := k.keyManager.WrapDataKey(active, activePlain, dataKey, payload.Algorithm)
	if err != nil {
		return nil, false, err
	}

	rewrapped := cryptoDomain.SealedBlob{
		KmsKeyID:       active.ID,
		WrappedDataKey: wrapped.WrappedKey,
		Payload:        blob.Payload,
	}
	out, err := rewrapped.Marshal()
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// RotateKey creates version N+1 of the scope key and retires version N.
func (k *kmsUseCase) RotateKey(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error) {
	var rotated, previous *cryptoDomain.KmsKey
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		current, err := k.keyRepo.GetActive(ctx, scope)
		if err != nil {
			return err
		}

		next, nextPlain, err := k.createNextVersion(ctx, current)
		if err != nil {
			return err
		}
		defer cryptoDomain.Zero(nextPlain)

		// Compare-and-swap: only one rotation can retire the current version.
		if err := k.keyRepo.Retire(ctx, current.ID, next.CreatedAt); err != nil {
			return err
		}
		if err := k.keyRepo.Create(ctx, next); err != nil {
			return err
		}

		if scope.Type == cryptoDomain.ScopeProject {
			if err := k.resealSalt(ctx, current, next, nextPlain); err != nil {
				return err
			}
		}

		rotated, previous = next, current
		return nil
	})
	if err != nil {
		return nil, err
	}

	k.logger.Info("scope key rotated",
		slog.String("scope", scope.String()),
		slog.String("previous_kms_key_id", previous.ID.String()),
		slog.String("kms_key_id", rotated.ID.String()),
		slog.Uint64("version", uint64(rotated.Version)),
	)
	return rotated, nil
}

// WithBlindIndexSalt decrypts the project salt for the duration of fn.
func (k *kmsUseCase) WithBlindIndexSalt(
	ctx context.Context,
	projectID uuid.UUID,
	fn func(salt []byte) error,
) error {
	sealed, err := k.saltRepo.Get(ctx, projectID)
	if err != nil {
		return err
	}

	_, keyPlain, err := k.loadKey(ctx, sealed.KmsKeyID)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(keyPlain)

	salt, err := k.keyManager.OpenSalt(projectID, keyPlain, sealed.EncryptedSalt)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(salt)

	return fn(salt)
}

func (k *kmsUseCase) ensureUnprovisioned(ctx context.Context, scope cryptoDomain.KeyScope) error {
	_, err := k.keyRepo.GetActive(ctx, scope)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", cryptoDomain.ErrScopeAlreadyProvisioned, scope)
	case errors.Is(err, cryptoDomain.ErrKeyNotProvisioned):
		return nil
	default:
		return err
	}
}

// createNextVersion builds version current.Version+1 of the scope key. Project
// keys are sealed under the organization's active key, which may itself have
// rotated since the current version was created.
func (k *kmsUseCase) createNextVersion(
	ctx context.Context,
	current *cryptoDomain.KmsKey,
) (*cryptoDomain.KmsKey, []byte, error) {
	version := current.Version + 1

	switch current.ScopeType {
	case cryptoDomain.ScopeOrganization:
		return k.keyManager.CreateOrganizationKey(ctx, k.custodian, current.ScopeID, version, k.keyAlg)
	case cryptoDomain.ScopeProject:
		if current.ParentKeyID == nil {
			return nil, nil, fmt.Errorf("%w: project key %s has no parent", cryptoDomain.ErrKeyUnavailable, current.ID)
		}
		parentVersion, err := k.keyRepo.Get(ctx, *current.ParentKeyID)
		if err != nil {
			return nil, nil, err
		}
		parent, parentPlain, err := k.resolveActive(ctx, parentVersion.Scope())
		if err != nil {
			return nil, nil, err
		}
		defer cryptoDomain.Zero(parentPlain)
		return k.keyManager.CreateProjectKey(parent, parentPlain, current.ScopeID, version, k.keyAlg)
	default:
		return nil, nil, fmt.Errorf("%w: unknown scope type %q", cryptoDomain.ErrKeyUnavailable, current.ScopeType)
	}
}

func (k *kmsUseCase) resealSalt(
	ctx context.Context,
	previous, next *cryptoDomain.KmsKey,
	nextPlain []byte,
) error {
	sealed, err := k.saltRepo.Get(ctx, next.ScopeID)
	if err != nil {
		return err
	}

	_, sealingPlain, err := k.loadKey(ctx, sealed.KmsKeyID)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(sealingPlain)

	salt, err := k.keyManager.OpenSalt(next.ScopeID, sealingPlain, sealed.EncryptedSalt)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(salt)

	resealed, err := k.keyManager.SealSalt(next, nextPlain, salt)
	if err != nil {
		return err
	}

	sealed.KmsKeyID = next.ID
	sealed.EncryptedSalt = resealed
	sealed.UpdatedAt = next.CreatedAt

	k.logger.Debug("blind index salt re-sealed",
		slog.String("project_id", next.ScopeID.String()),
		slog.String("previous_kms_key_id", previous.ID.String()),
	)
	return k.saltRepo.Update(ctx, sealed)
}

// openDataKey unwraps the data key of blob with the key version it names, which
// must belong to scope.
func (k *kmsUseCase) openDataKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	blob *cryptoDomain.SealedBlob,
) ([]byte, error) {
	key, keyPlain, err := k.loadKey(ctx, blob.KmsKeyID)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(keyPlain)

	if key.Scope() != scope {
		return nil, fmt.Errorf("%w: key %s belongs to %s", cryptoDomain.ErrScopeMismatch, key.ID, key.Scope())
	}

	return k.keyManager.DecryptDataKey(&cryptoDomain.WrappedDataKey{
		KmsKeyID:   blob.KmsKeyID,
		WrappedKey: blob.WrappedDataKey,
	}, keyPlain)
}

func (k *kmsUseCase) resolveActive(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) (*cryptoDomain.KmsKey, []byte, error) {
	active, err := k.keyRepo.GetActive(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	return k.loadKey(ctx, active.ID)
}

// loadKey returns a key version and its plaintext, walking up the hierarchy on a
// cache miss. The plaintext is owned by the caller.
func (k *kmsUseCase) loadKey(ctx context.Context, id uuid.UUID) (*cryptoDomain.KmsKey, []byte, error) {
	return k.cache.Get(id, func() (*cryptoDomain.KmsKey, []byte, error) {
		key, err := k.keyRepo.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		switch key.ScopeType {
		case cryptoDomain.ScopeOrganization:
			plain, err := k.keyManager.DecryptOrganizationKey(ctx, k.custodian, key)
			if err != nil {
				return nil, nil, err
			}
			return key, plain, nil
		case cryptoDomain.ScopeProject:
			if key.ParentKeyID == nil {
				return nil, nil, fmt.Errorf("%w: project key %s has no parent", cryptoDomain.ErrKeyUnavailable, key.ID)
			}
			_, parentPlain, err := k.loadKey(ctx, *key.ParentKeyID)
			if err != nil {
				return nil, nil, err
			}
			defer cryptoDomain.Zero(parentPlain)

			plain, err := k.keyManager.DecryptProjectKey(key, parentPlain)
			if err != nil {
				return nil, nil, err
			}
			return key, plain, nil
		default:
			return nil, nil, fmt.Errorf("%w: unknown scope type %q", cryptoDomain.ErrKeyUnavailable, key.ScopeType)
		}
	})
}

// translateProvisionConflict reports a lost race between two provisioning calls
// of the same scope as ErrScopeAlreadyProvisioned.
func translateProvisionConflict(err error) error {
	if errors.Is(err, cryptoDomain.ErrKeyRotationConflict) {
		return fmt.Errorf("%w: %v", cryptoDomain.ErrScopeAlreadyProvisioned, err)
	}
	return err
}

// NewKMSUseCase creates a KMSUseCase. Organization and project keys use keyAlg;
// data keys use dataKeyAlg.
func NewKMSUseCase(
	txManager database.TxManager,
	keyRepo KmsKeyRepository,
	saltRepo BlindIndexSaltRepository,
	keyManager cryptoService.KeyManager,
	cipher cryptoService.EnvelopeCipher,
	custodian cryptoService.RootCustodian,
	cache *KeyCache,
	keyAlg, dataKeyAlg cryptoDomain.Algorithm,
	logger *slog.Logger,
) KMSUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &kmsUseCase{
		txManager:  txManager,
		keyRepo:    keyRepo,
		saltRepo:   saltRepo,
		keyManager: keyManager,
		cipher:     cipher,
		custodian:  custodian,
		cache:      cache,
		keyAlg:     keyAlg,
		dataKeyAlg: dataKeyAlg,
		logger:     logger,
	}
}
