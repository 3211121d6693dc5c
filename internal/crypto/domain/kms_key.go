package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScopeType is the level of the key hierarchy a KmsKey belongs to.
type ScopeType string

const (
	// ScopeOrganization keys are wrapped by the root custodian.
	ScopeOrganization ScopeType = "organization"
	// ScopeProject keys are sealed under their organization key.
	ScopeProject ScopeType = "project"
)

// KeyScope addresses the owner of a key: an organization or a project.
type KeyScope struct {
	Type ScopeType
	ID   uuid.UUID
}

// OrganizationScope returns the key scope of an organization.
func OrganizationScope(id uuid.UUID) KeyScope {
	return KeyScope{Type: ScopeOrganization, ID: id}
}

// ProjectScope returns the key scope of a project.
func ProjectScope(id uuid.UUID) KeyScope {
	return KeyScope{Type: ScopeProject, ID: id}
}

// String returns "type:id". The value is bound as associated data of every data
// payload sealed for the scope.
func (s KeyScope) String() string {
	return fmt.Sprintf("%s:%s", s.Type, s.ID)
}

// ParseScopeType validates a persisted or CLI scope type.
func ParseScopeType(s string) (ScopeType, error) {
	switch ScopeType(s) {
	case ScopeOrganization, ScopeProject:
		return ScopeType(s), nil
	default:
		return "", fmt.Errorf("invalid scope type: %s (valid options: organization, project)", s)
	}
}

// KmsKey is one version of the key that protects a scope.
//
// The key material is never stored in plaintext:
//   - organization keys: EncryptedKey is the root custodian's blob and
//     ExternalProviderRef names the custodian key that produced it
//   - project keys: EncryptedKey is a SealedPayload under the organization key
//     version identified by ParentKeyID
//
// Rotation inserts a new version and retires the previous one; EncryptedKey of an
// existing version is never rewritten.
type KmsKey struct {
	ID                  uuid.UUID
	ScopeType           ScopeType
	ScopeID             uuid.UUID
	ParentKeyID         *uuid.UUID
	ExternalProviderRef string
	Algorithm           Algorithm
	EncryptedKey        []byte
	Version             uint
	IsActive            bool
	IsReserved          bool
	CreatedAt           time.Time
	RetiredAt           *time.Time
}

// Scope returns the key scope of k.
func (k *KmsKey) Scope() KeyScope {
	return KeyScope{Type: k.ScopeType, ID: k.ScopeID}
}

// WrappedDataKey is a data key sealed under a KmsKey version.
type WrappedDataKey struct {
	KmsKeyID   uuid.UUID
	Algorithm  Algorithm
	WrappedKey []byte
}

// BlindIndexSalt is a project's HMAC salt, sealed under the project key.
type BlindIndexSalt struct {
	ProjectID     uuid.UUID
	KmsKeyID      uuid.UUID
	EncryptedSalt []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
