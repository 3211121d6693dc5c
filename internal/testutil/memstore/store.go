// Package memstore is an in-memory implementation of every repository and of
// database.TxManager, used by use case tests in place of a real database.
//
// Transactions are serialized: WithTx and WithReadTx hold one store-wide lock,
// snapshot all tables on entry and restore them when fn fails, so a failed
// transaction leaves nothing behind. Calls made with a context returned by an
// outer transaction join it. A write outside a transaction waits for the running
// transaction to finish, so a rollback never undoes it.
//
// Unique and foreign key constraints of the SQL schema are enforced and reported
// with the same domain errors the SQL repositories return.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

type txKey struct{}

type tables struct {
	kmsKeys        map[uuid.UUID]*cryptoDomain.KmsKey
	salts          map[uuid.UUID]*cryptoDomain.BlindIndexSalt
	folders        map[uuid.UUID]*foldersDomain.Folder
	secrets        map[uuid.UUID]*secretsDomain.Secret
	secretVersions map[uuid.UUID]*versionsDomain.SecretVersion
	folderVersions map[uuid.UUID]*versionsDomain.FolderVersion
	snapshots      map[uuid.UUID]*snapshotsDomain.Snapshot
}

func newTables() *tables {
	return &tables{
		kmsKeys:        make(map[uuid.UUID]*cryptoDomain.KmsKey),
		salts:          make(map[uuid.UUID]*cryptoDomain.BlindIndexSalt),
		folders:        make(map[uuid.UUID]*foldersDomain.Folder),
		secrets:        make(map[uuid.UUID]*secretsDomain.Secret),
		secretVersions: make(map[uuid.UUID]*versionsDomain.SecretVersion),
		folderVersions: make(map[uuid.UUID]*versionsDomain.FolderVersion),
		snapshots:      make(map[uuid.UUID]*snapshotsDomain.Snapshot),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for id, v := range t.kmsKeys {
		c.kmsKeys[id] = cloneKmsKey(v)
	}
	for id, v := range t.salts {
		c.salts[id] = cloneSalt(v)
	}
	for id, v := range t.folders {
		c.folders[id] = v.Clone()
	}
	for id, v := range t.secrets {
		c.secrets[id] = v.Clone()
	}
	for id, v := range t.secretVersions {
		c.secretVersions[id] = cloneSecretVersion(v)
	}
	for id, v := range t.folderVersions {
		c.folderVersions[id] = cloneFolderVersion(v)
	}
	for id, v := range t.snapshots {
		c.snapshots[id] = cloneSnapshot(v)
	}
	return c
}

// Store holds every table.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	t      *tables
	faults map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{t: newTables(), faults: make(map[string]error)}
}

// WithTx runs fn in a transaction that is undone if fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.t.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.t = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock takes the table lock for a write and returns its release. Outside a
// transaction it also takes txMu.
func (s *Store) lock(ctx context.Context) func() {
	if InTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// WithReadTx runs fn in a transaction. Because transactions are serialized fn
// observes a single consistent cut.
func (s *Store) WithReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.WithTx(ctx, fn)
}

// InTx reports whether ctx carries a memstore transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// FailNext makes the next call of op return err. Operations are named
// "<table>.<Method>", for example "secrets.Update" or "secret_versions.Create".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// fault returns and clears the injected failure for op. Callers hold s.mu.
func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

// KmsKeys returns the kms_keys repository.
func (s *Store) KmsKeys() *KmsKeyRepository {
	return &KmsKeyRepository{s: s}
}

// BlindIndexSalts returns the blind_index_salts repository.
func (s *Store) BlindIndexSalts() *BlindIndexSaltRepository {
	return &BlindIndexSaltRepository{s: s}
}

// Folders returns the secret_folders repository.
func (s *Store) Folders() *FolderRepository {
	return &FolderRepository{s: s}
}

// Secrets returns the secrets repository.
func (s *Store) Secrets() *SecretRepository {
	return &SecretRepository{s: s}
}

// SecretVersions returns the secret_versions repository.
func (s *Store) SecretVersions() *SecretVersionRepository {
	return &SecretVersionRepository{s: s}
}

// FolderVersions returns the folder_versions repository.
func (s *Store) FolderVersions() *FolderVersionRepository {
	return &FolderVersionRepository{s: s}
}

// Snapshots returns the secret_snapshots repository.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{s: s}
}

func cloneKmsKey(k *cryptoDomain.KmsKey) *cryptoDomain.KmsKey {
	c := *k
	c.EncryptedKey = slices.Clone(k.EncryptedKey)
	if k.ParentKeyID != nil {
		parentID := *k.ParentKeyID
		c.ParentKeyID = &parentID
	}
	if k.RetiredAt != nil {
		retiredAt := *k.RetiredAt
		c.RetiredAt = &retiredAt
	}
	return &c
}

func cloneSalt(s *cryptoDomain.BlindIndexSalt) *cryptoDomain.BlindIndexSalt {
	c := *s
	c.EncryptedSalt = slices.Clone(s.EncryptedSalt)
	return &c
}

func cloneSecretVersion(v *versionsDomain.SecretVersion) *versionsDomain.SecretVersion {
	c := *v
	c.EncryptedKey = slices.Clone(v.EncryptedKey)
	c.EncryptedValue = slices.Clone(v.EncryptedValue)
	c.EncryptedComment = slices.Clone(v.EncryptedComment)
	c.Tags = slices.Clone(v.Tags)
	return &c
}

func cloneFolderVersion(v *versionsDomain.FolderVersion) *versionsDomain.FolderVersion {
	c := *v
	c.Nodes = make([]foldersDomain.TreeNode, len(v.Nodes))
	for i, n := range v.Nodes {
		n.Children = slices.Clone(n.Children)
		c.Nodes[i] = n
	}
	return &c
}

func cloneSnapshot(s *snapshotsDomain.Snapshot) *snapshotsDomain.Snapshot {
	c := *s
	c.SecretVersionIDs = slices.Clone(s.SecretVersionIDs)
	if s.FolderVersionID != nil {
		id := *s.FolderVersionID
		c.FolderVersionID = &id
	}
	return &c
}

// compareIDs orders uuid v7 ids by creation.
func compareIDs(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}
