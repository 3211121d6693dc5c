// Package keyring builds a real KMSUseCase over a memstore for use case tests
// that need to seal and open secrets.
package keyring

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
	cryptoUseCase "github.com/allisson/envsafe/internal/crypto/usecase"
	"github.com/allisson/envsafe/internal/testutil/memstore"
)

// MasterKeyID is the id of the single master key of the keyring.
const MasterKeyID = "master-1"

// Keyring is a provisioned organization backed by a static master key.
type Keyring struct {
	KMS            cryptoUseCase.KMSUseCase
	Indexer        cryptoService.BlindIndexer
	Cache          *cryptoUseCase.KeyCache
	OrganizationID uuid.UUID
}

// New provisions an organization in store. The key cache and the custodian are
// closed when the test ends.
func New(t *testing.T, store *memstore.Store) *Keyring {
	t.Helper()

	chain := cryptoDomain.NewMasterKeyChain(MasterKeyID)
	require.NoError(t, chain.Add(MasterKeyID, bytes.Repeat([]byte{0x42}, cryptoDomain.KeySize)))

	cipher := cryptoService.NewEnvelopeCipher(cryptoService.NewAEADManager())
	custodian := cryptoService.NewMasterKeyCustodian(chain, cipher, cryptoDomain.AESGCM)
	cache := cryptoUseCase.NewKeyCache(time.Minute)
	t.Cleanup(func() {
		cache.Close()
		_ = custodian.Close()
	})

	kr := &Keyring{
		KMS: cryptoUseCase.NewKMSUseCase(
			store,
			store.KmsKeys(),
			store.BlindIndexSalts(),
			cryptoService.NewKeyManager(cipher),
			cipher,
			custodian,
			cache,
			cryptoDomain.AESGCM,
			cryptoDomain.ChaCha20,
			nil,
		),
		Indexer:        cryptoService.NewBlindIndexer(),
		Cache:          cache,
		OrganizationID: uuid.New(),
	}
	_, err := kr.KMS.ProvisionOrganization(context.Background(), kr.OrganizationID)
	require.NoError(t, err)
	return kr
}

// Provision creates the key and blind index salt of a project.
func (k *Keyring) Provision(t *testing.T, projectID uuid.UUID) *cryptoDomain.KmsKey {
	t.Helper()
	key, err := k.KMS.ProvisionProject(context.Background(), k.OrganizationID, projectID)
	require.NoError(t, err)
	return key
}
