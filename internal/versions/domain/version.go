// Package domain defines the immutable version history of secrets and folders.
//
// Versions are append-only. For a given secret the recorded versions are exactly
// 1..N; a delete appends a final version flagged Deleted.
package domain

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

// SecretVersion is the full sealed content of a secret at one version.
type SecretVersion struct {
	ID               uuid.UUID
	SecretID         uuid.UUID
	ProjectID        uuid.UUID
	EnvironmentID    uuid.UUID
	FolderID         uuid.UUID
	BlindIndex       string
	KmsKeyID         uuid.UUID
	EncryptedKey     []byte
	EncryptedValue   []byte
	EncryptedComment []byte
	Tags             []string
	Version          uint
	Deleted          bool
	Actor            scope.Actor
	CreatedAt        time.Time
}

// NewSecretVersion copies the sealed content of secret into a version record.
func NewSecretVersion(secret *secretsDomain.Secret, version uint, deleted bool, actor scope.Actor) *SecretVersion {
	c := secret.Clone()
	return &SecretVersion{
		ID:               uuid.Must(uuid.NewV7()),
		SecretID:         c.ID,
		ProjectID:        c.ProjectID,
		EnvironmentID:    c.EnvironmentID,
		FolderID:         c.FolderID,
		BlindIndex:       c.BlindIndex,
		KmsKeyID:         c.KmsKeyID,
		EncryptedKey:     c.EncryptedKey,
		EncryptedValue:   c.EncryptedValue,
		EncryptedComment: c.EncryptedComment,
		Tags:             c.Tags,
		Version:          version,
		Deleted:          deleted,
		Actor:            actor,
		CreatedAt:        time.Now().UTC(),
	}
}

// Secret returns the live secret this version describes, at live version liveVersion.
func (v *SecretVersion) Secret(liveVersion uint) *secretsDomain.Secret {
	s := &secretsDomain.Secret{
		ID:               v.SecretID,
		ProjectID:        v.ProjectID,
		EnvironmentID:    v.EnvironmentID,
		FolderID:         v.FolderID,
		BlindIndex:       v.BlindIndex,
		KmsKeyID:         v.KmsKeyID,
		EncryptedKey:     v.EncryptedKey,
		EncryptedValue:   v.EncryptedValue,
		EncryptedComment: v.EncryptedComment,
		Tags:             v.Tags,
		Version:          liveVersion,
	}
	return s.Clone()
}

// SameContent reports whether the live secret holds exactly the sealed content of v.
func (v *SecretVersion) SameContent(secret *secretsDomain.Secret) bool {
	return secret.ID == v.SecretID &&
		secret.FolderID == v.FolderID &&
		secret.BlindIndex == v.BlindIndex &&
		secret.KmsKeyID == v.KmsKeyID &&
		bytes.Equal(secret.EncryptedKey, v.EncryptedKey) &&
		bytes.Equal(secret.EncryptedValue, v.EncryptedValue) &&
		bytes.Equal(secret.EncryptedComment, v.EncryptedComment) &&
		slices.Equal(secret.Tags, v.Tags)
}

// FolderVersion is the immutable shape of a folder subtree. Versions are numbered
// per subtree root folder starting at 1.
type FolderVersion struct {
	ID            uuid.UUID
	EnvironmentID uuid.UUID
	FolderID      uuid.UUID
	Version       uint
	Nodes         []foldersDomain.TreeNode
	Actor         scope.Actor
	CreatedAt     time.Time
}

// Tree returns the recorded subtree.
func (v *FolderVersion) Tree() *foldersDomain.Tree {
	return &foldersDomain.Tree{Nodes: v.Nodes}
}
