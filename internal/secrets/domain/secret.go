// Package domain defines the core domain models and types for secret management.
// Secret names, values and comments are stored only as SealedBlobs; names are
// looked up through a blind index so they can be matched without decryption.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Secret is the live state of a named secret inside a folder.
type Secret struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	EnvironmentID uuid.UUID
	FolderID      uuid.UUID
	// BlindIndex is the hex HMAC of the name under the project salt. Unique per folder.
	BlindIndex string
	// KmsKeyID is the key version that wraps the data keys of the sealed fields.
	// When they disagree it names a field that lags behind, so Rewrap, which
	// selects secrets whose KmsKeyID is not the active key, still finds the row.
	KmsKeyID uuid.UUID
	// EncryptedKey is the sealed secret name.
	EncryptedKey     []byte
	EncryptedValue   []byte
	EncryptedComment []byte
	Tags             []string
	// Version starts at 1 and is bumped by every update.
	Version   uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasComment reports whether the secret carries an encrypted comment.
func (s *Secret) HasComment() bool {
	return len(s.EncryptedComment) > 0
}

// Clone returns a deep copy of s.
func (s *Secret) Clone() *Secret {
	c := *s
	c.EncryptedKey = append([]byte(nil), s.EncryptedKey...)
	c.EncryptedValue = append([]byte(nil), s.EncryptedValue...)
	if s.EncryptedComment != nil {
		c.EncryptedComment = append([]byte(nil), s.EncryptedComment...)
	}
	c.Tags = append([]string(nil), s.Tags...)
	return &c
}

// CreateSecretInput holds the plaintext fields of a new secret.
type CreateSecretInput struct {
	FolderID uuid.UUID
	Name     string
	Value    []byte
	Comment  *string
	Tags     []string
}

// UpdateSecretInput is a patch; nil fields are left unchanged. An empty Comment
// removes the comment.
type UpdateSecretInput struct {
	Name    *string
	Value   *[]byte
	Comment *string
	Tags    *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (in UpdateSecretInput) IsEmpty() bool {
	return in.Name == nil && in.Value == nil && in.Comment == nil && in.Tags == nil
}

// RevealedSecret is a secret with its name, value and comment decrypted.
//
// Value holds plaintext in memory only; callers must zero it after use with
// cryptoDomain.Zero. When Err is set the other plaintext fields are empty.
type RevealedSecret struct {
	Secret  *Secret
	Name    string
	Value   []byte
	Comment string
	Err     error
}

// RewrapResult counts the outcome of a rewrap batch. LastID is the cursor of the
// next batch and Done is set once no secret is left to visit.
type RewrapResult struct {
	Rewrapped int
	Failed    int
	LastID    uuid.UUID
	Done      bool
}
