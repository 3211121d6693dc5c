package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// saltAADPrefix binds sealed blind index salts to their project.
const saltAADPrefix = "blind-index-salt:"

// KeyManagerService implements the KeyManager interface.
//
// The hierarchy has three levels:
//   - organization keys, wrapped by the RootCustodian
//   - project keys, sealed under an organization key version (AAD: the project key id)
//   - data keys, sealed under the scope key that encrypts a payload (AAD: the scope key id)
//
// Binding each sealed key to a key id means a wrapped key copied onto another row
// fails authentication instead of decrypting.
type KeyManagerService struct {
	cipher EnvelopeCipher
}

// NewKeyManager creates a new KeyManagerService that seals keys with cipher.
func NewKeyManager(cipher EnvelopeCipher) *KeyManagerService {
	return &KeyManagerService{cipher: cipher}
}

// GenerateKey returns KeySize bytes from crypto/rand.
func (km *KeyManagerService) GenerateKey() ([]byte, error) {
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: failed to generate key: %v", cryptoDomain.ErrEncryption, err)
	}
	return key, nil
}

// CreateOrganizationKey generates an organization key and wraps it with custodian.
// The returned KmsKey records the custodian reference in ExternalProviderRef.
func (km *KeyManagerService) CreateOrganizationKey(
	ctx context.Context,
	custodian RootCustodian,
	organizationID uuid.UUID,
	version uint,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.KmsKey, []byte, error) {
	if _, err := alg.ID(); err != nil {
		return nil, nil, err
	}

	plain, err := km.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	ref, blob, err := custodian.Wrap(ctx, plain)
	if err != nil {
		cryptoDomain.Zero(plain)
		return nil, nil, err
	}

	key := &cryptoDomain.KmsKey{
		ID:                  uuid.Must(uuid.NewV7()),
		ScopeType:           cryptoDomain.ScopeOrganization,
		ScopeID:             organizationID,
		ExternalProviderRef: ref,
		Algorithm:           alg,
		EncryptedKey:        blob,
		Version:             version,
		IsActive:            true,
		CreatedAt:           time.Now().UTC(),
	}
	return key, plain, nil
}

// DecryptOrganizationKey unwraps an organization key through custodian.
func (km *KeyManagerService) DecryptOrganizationKey(
	ctx context.Context,
	custodian RootCustodian,
	key *cryptoDomain.KmsKey,
) ([]byte, error) {
	if key.ScopeType != cryptoDomain.ScopeOrganization {
		return nil, fmt.Errorf("%w: key %s is not an organization key", cryptoDomain.ErrScopeMismatch, key.ID)
	}
	plain, err := custodian.Unwrap(ctx, key.ExternalProviderRef, key.EncryptedKey)
	if err != nil {
		return nil, err
	}
	if len(plain) != cryptoDomain.KeySize {
		cryptoDomain.Zero(plain)
		return nil, fmt.Errorf("%w: organization key %s", cryptoDomain.ErrInvalidKeySize, key.ID)
	}
	return plain, nil
}

// CreateProjectKey generates a project key sealed under parent, whose plaintext is parentKey.
func (km *KeyManagerService) CreateProjectKey(
	parent *cryptoDomain.KmsKey,
	parentKey []byte,
	projectID uuid.UUID,
	version uint,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.KmsKey, []byte, error) {
	if parent.ScopeType != cryptoDomain.ScopeOrganization {
		return nil, nil, fmt.Errorf("%w: parent %s is not an organization key", cryptoDomain.ErrScopeMismatch, parent.ID)
	}
	if _, err := alg.ID(); err != nil {
		return nil, nil, err
	}

	plain, err := km.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	id := uuid.Must(uuid.NewV7())
	sealed, err := km.cipher.Seal(parentKey, parent.Algorithm, plain, id[:])
	if err != nil {
		cryptoDomain.Zero(plain)
		return nil, nil, err
	}

	parentID := parent.ID
	key := &cryptoDomain.KmsKey{
		ID:           id,
		ScopeType:    cryptoDomain.ScopeProject,
		ScopeID:      projectID,
		ParentKeyID:  &parentID,
		Algorithm:    alg,
		EncryptedKey: sealed,
		Version:      version,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	return key, plain, nil
}

// DecryptProjectKey opens a project key with the plaintext of its parent key.
func (km *KeyManagerService) DecryptProjectKey(key *cryptoDomain.KmsKey, parentKey []byte) ([]byte, error) {
	if key.ScopeType != cryptoDomain.ScopeProject || key.ParentKeyID == nil {
		return nil, fmt.Errorf("%w: key %s is not a project key", cryptoDomain.ErrScopeMismatch, key.ID)
	}
	return km.openKey(parentKey, key.EncryptedKey, key.ID)
}

// CreateDataKey generates a data key of the given algorithm sealed under scopeKey.
func (km *KeyManagerService) CreateDataKey(
	scopeKey *cryptoDomain.KmsKey,
	scopeKeyPlain []byte,
	alg cryptoDomain.Algorithm,
) ([]byte, *cryptoDomain.WrappedDataKey, error) {
	if _, err := alg.ID(); err != nil {
		return nil, nil, err
	}

	plain, err := km.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	wrapped, err := km.WrapDataKey(scopeKey, scopeKeyPlain, plain, alg)
	if err != nil {
		cryptoDomain.Zero(plain)
		return nil, nil, err
	}
	return plain, wrapped, nil
}

// WrapDataKey seals dataKey under scopeKey, bound to the scope key id.
func (km *KeyManagerService) WrapDataKey(
	scopeKey *cryptoDomain.KmsKey,
	scopeKeyPlain, dataKey []byte,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.WrappedDataKey, error) {
	wrapped, err := km.cipher.Seal(scopeKeyPlain, scopeKey.Algorithm, dataKey, scopeKey.ID[:])
	if err != nil {
		return nil, err
	}
	return &cryptoDomain.WrappedDataKey{
		KmsKeyID:   scopeKey.ID,
		Algorithm:  alg,
		WrappedKey: wrapped,
	}, nil
}

// DecryptDataKey opens a wrapped data key with the plaintext of its scope key.
func (km *KeyManagerService) DecryptDataKey(
	wrapped *cryptoDomain.WrappedDataKey,
	scopeKeyPlain []byte,
) ([]byte, error) {
	return km.openKey(scopeKeyPlain, wrapped.WrappedKey, wrapped.KmsKeyID)
}

// SealSalt seals a blind index salt under a project key version.
func (km *KeyManagerService) SealSalt(
	projectKey *cryptoDomain.KmsKey,
	projectKeyPlain, salt []byte,
) ([]byte, error) {
	return km.cipher.Seal(projectKeyPlain, projectKey.Algorithm, salt, saltAAD(projectKey.ScopeID))
}

// OpenSalt opens a blind index salt sealed by SealSalt.
func (km *KeyManagerService) OpenSalt(projectID uuid.UUID, projectKeyPlain, sealed []byte) ([]byte, error) {
	salt, err := km.cipher.Open(projectKeyPlain, sealed, saltAAD(projectID))
	if err != nil {
		return nil, err
	}
	if len(salt) != cryptoDomain.KeySize {
		cryptoDomain.Zero(salt)
		return nil, fmt.Errorf("%w: blind index salt of project %s", cryptoDomain.ErrInvalidKeySize, projectID)
	}
	return salt, nil
}

func (km *KeyManagerService) openKey(parentKey, sealed []byte, id uuid.UUID) ([]byte, error) {
	plain, err := km.cipher.Open(parentKey, sealed, id[:])
	if err != nil {
		return nil, err
	}
	if len(plain) != cryptoDomain.KeySize {
		cryptoDomain.Zero(plain)
		return nil, fmt.Errorf("%w: key %s", cryptoDomain.ErrInvalidKeySize, id)
	}
	return plain, nil
}

func saltAAD(projectID uuid.UUID) []byte {
	return []byte(saltAADPrefix + projectID.String())
}
