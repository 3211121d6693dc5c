package usecase

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
	apperrors "github.com/allisson/envsafe/internal/errors"
	"github.com/allisson/envsafe/internal/testutil/memstore"
)

type kmsFixture struct {
	store   *memstore.Store
	kms     KMSUseCase
	cache   *KeyCache
	orgID   uuid.UUID
	project uuid.UUID
}

func newKMSFixture(t *testing.T, ttl time.Duration) *kmsFixture {
	t.Helper()

	chain := cryptoDomain.NewMasterKeyChain("master-1")
	require.NoError(t, chain.Add("master-1", bytes.Repeat([]byte{0x42}, cryptoDomain.KeySize)))

	cipher := cryptoService.NewEnvelopeCipher(cryptoService.NewAEADManager())
	custodian := cryptoService.NewMasterKeyCustodian(chain, cipher, cryptoDomain.AESGCM)
	cache := NewKeyCache(ttl)
	t.Cleanup(func() {
		cache.Close()
		_ = custodian.Close()
	})

	store := memstore.New()
	kms := NewKMSUseCase(
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
	)

	f := &kmsFixture{store: store, kms: kms, cache: cache, orgID: uuid.New(), project: uuid.New()}
	_, err := kms.ProvisionOrganization(context.Background(), f.orgID)
	require.NoError(t, err)
	_, err = kms.ProvisionProject(context.Background(), f.orgID, f.project)
	require.NoError(t, err)
	return f
}

func TestKMSUseCase_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreatesKeysAndSalt", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		org, err := f.kms.ActiveKey(ctx, cryptoDomain.OrganizationScope(f.orgID))
		require.NoError(t, err)
		assert.Equal(t, uint(1), org.Version)
		assert.True(t, org.IsActive)
		assert.Equal(t, "master-1", org.ExternalProviderRef)

		project, err := f.kms.ActiveKey(ctx, cryptoDomain.ProjectScope(f.project))
		require.NoError(t, err)
		require.NotNil(t, project.ParentKeyID)
		assert.Equal(t, org.ID, *project.ParentKeyID)

		salt, err := f.store.BlindIndexSalts().Get(ctx, f.project)
		require.NoError(t, err)
		assert.Equal(t, project.ID, salt.KmsKeyID)
	})

	t.Run("Error_OrganizationTwice", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		_, err := f.kms.ProvisionOrganization(ctx, f.orgID)
		assert.ErrorIs(t, err, cryptoDomain.ErrScopeAlreadyProvisioned)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("Error_ProjectTwice", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		_, err := f.kms.ProvisionProject(ctx, f.orgID, f.project)
		assert.ErrorIs(t, err, cryptoDomain.ErrScopeAlreadyProvisioned)
	})

	t.Run("Error_ProjectWithoutOrganization", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		_, err := f.kms.ProvisionProject(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotProvisioned)
	})

	t.Run("Error_SaltFailureRollsBackProjectKey", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		projectID := uuid.New()
		f.store.FailNext("blind_index_salts.Create", errors.New("disk full"))

		_, err := f.kms.ProvisionProject(ctx, f.orgID, projectID)
		require.Error(t, err)

		_, err = f.kms.ActiveKey(ctx, cryptoDomain.ProjectScope(projectID))
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotProvisioned)
	})

	t.Run("Success_ConcurrentProvisionHasOneWinner", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		orgID := uuid.New()

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.kms.ProvisionOrganization(ctx, orgID)
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, cryptoDomain.ErrScopeAlreadyProvisioned)
		}
		assert.Equal(t, 1, ok)
	})
}

func TestKMSUseCase_EncryptDecrypt(t *testing.T) {
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, time.Minute} {
		t.Run("TTL_"+ttl.String(), func(t *testing.T) {
			f := newKMSFixture(t, ttl)
			scope := cryptoDomain.ProjectScope(f.project)

			for _, plaintext := range [][]byte{{}, []byte("x"), bytes.Repeat([]byte("v"), 64*1024)} {
				blob, err := f.kms.EncryptWithScopeKey(ctx, scope, plaintext)
				require.NoError(t, err)

				got, err := f.kms.DecryptWithScopeKey(ctx, scope, blob)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(plaintext, got))
			}
		})
	}

	t.Run("Success_BlobsAreDistinct", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		scope := cryptoDomain.ProjectScope(f.project)

		a, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("same"))
		require.NoError(t, err)
		b, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Error_TamperedByteFailsAuthentication", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		scope := cryptoDomain.ProjectScope(f.project)

		blob, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("db-password"))
		require.NoError(t, err)

		for i := range blob {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 0x01

			_, err := f.kms.DecryptWithScopeKey(ctx, scope, tampered)
			require.Error(t, err, "byte %d", i)
			assert.ErrorIs(t, err, apperrors.ErrInternal, "byte %d", i)
		}
	})

	t.Run("Error_ForeignScope", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		other := uuid.New()
		_, err := f.kms.ProvisionProject(ctx, f.orgID, other)
		require.NoError(t, err)

		blob, err := f.kms.EncryptWithScopeKey(ctx, cryptoDomain.ProjectScope(f.project), []byte("secret"))
		require.NoError(t, err)

		_, err = f.kms.DecryptWithScopeKey(ctx, cryptoDomain.ProjectScope(other), blob)
		assert.ErrorIs(t, err, cryptoDomain.ErrScopeMismatch)
	})

	t.Run("Error_UnknownKeyIsNotNotFound", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		scope := cryptoDomain.ProjectScope(f.project)

		blob, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("secret"))
		require.NoError(t, err)

		parsed, err := cryptoDomain.ParseSealedBlob(blob)
		require.NoError(t, err)
		parsed.KmsKeyID = uuid.New()
		orphan, err := parsed.Marshal()
		require.NoError(t, err)

		_, err = f.kms.DecryptWithScopeKey(ctx, scope, orphan)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyUnavailable)
		assert.False(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("Error_Truncated", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		_, err := f.kms.DecryptWithScopeKey(ctx, cryptoDomain.ProjectScope(f.project), []byte{0x01, 0x02})
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSealedBlob)
	})
}

func TestKMSUseCase_RotateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_OldBlobsStayReadable", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		scope := cryptoDomain.ProjectScope(f.project)

		before, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("v1"))
		require.NoError(t, err)

		rotated, err := f.kms.RotateKey(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, uint(2), rotated.Version)

		after, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("v2"))
		require.NoError(t, err)

		beforeKeyID, err := cryptoDomain.SealedBlobKeyID(before)
		require.NoError(t, err)
		afterKeyID, err := cryptoDomain.SealedBlobKeyID(after)
		require.NoError(t, err)
		assert.NotEqual(t, beforeKeyID, afterKeyID)
		assert.Equal(t, rotated.ID, afterKeyID)

		got, err := f.kms.DecryptWithScopeKey(ctx, scope, before)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		versions, err := f.store.KmsKeys().ListByScope(ctx, scope)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.True(t, versions[0].IsActive)
		assert.False(t, versions[1].IsActive)
		assert.NotNil(t, versions[1].RetiredAt)
	})

	t.Run("Success_OrganizationRotationKeepsProjectsReadable", func(t *testing.T) {
		f := newKMSFixture(t, 0)
		scope := cryptoDomain.ProjectScope(f.project)

		blob, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("value"))
		require.NoError(t, err)

		_, err = f.kms.RotateKey(ctx, cryptoDomain.OrganizationScope(f.orgID))
		require.NoError(t, err)

		got, err := f.kms.DecryptWithScopeKey(ctx, scope, blob)
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)

		// The next project version is sealed under the new organization version.
		next, err := f.kms.RotateKey(ctx, scope)
		require.NoError(t, err)
		org, err := f.kms.ActiveKey(ctx, cryptoDomain.OrganizationScope(f.orgID))
		require.NoError(t, err)
		assert.Equal(t, org.ID, *next.ParentKeyID)
	})

	t.Run("Success_SaltResealedWithSameValue", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		var before []byte
		require.NoError(t, f.kms.WithBlindIndexSalt(ctx, f.project, func(salt []byte) error {
			before = append([]byte(nil), salt...)
			return nil
		}))

		rotated, err := f.kms.RotateKey(ctx, cryptoDomain.ProjectScope(f.project))
		require.NoError(t, err)

		sealed, err := f.store.BlindIndexSalts().Get(ctx, f.project)
		require.NoError(t, err)
		assert.Equal(t, rotated.ID, sealed.KmsKeyID)

		require.NoError(t, f.kms.WithBlindIndexSalt(ctx, f.project, func(salt []byte) error {
			assert.Equal(t, before, salt)
			return nil
		}))
	})

	t.Run("Error_FailedInsertKeepsCurrentActive", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		scope := cryptoDomain.ProjectScope(f.project)
		current, err := f.kms.ActiveKey(ctx, scope)
		require.NoError(t, err)

		f.store.FailNext("kms_keys.Create", errors.New("connection reset"))
		_, err = f.kms.RotateKey(ctx, scope)
		require.Error(t, err)

		active, err := f.kms.ActiveKey(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, current.ID, active.ID)
	})

	t.Run("Error_NotProvisioned", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)

		_, err := f.kms.RotateKey(ctx, cryptoDomain.ProjectScope(uuid.New()))
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotProvisioned)
	})

	t.Run("Success_ConcurrentRotationsProduceContiguousVersions", func(t *testing.T) {
		f := newKMSFixture(t, time.Minute)
		scope := cryptoDomain.OrganizationScope(f.orgID)

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.kms.RotateKey(ctx, scope)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		versions, err := f.store.KmsKeys().ListByScope(ctx, scope)
		require.NoError(t, err)
		require.Len(t, versions, 6)
		for i, v := range versions {
			assert.Equal(t, uint(6-i), v.Version)
			assert.Equal(t, i == 0, v.IsActive)
		}
	})
}

func TestKMSUseCase_RewrapBlob(t *testing.T) {
	ctx := context.Background()
	f := newKMSFixture(t, time.Minute)
	scope := cryptoDomain.ProjectScope(f.project)

	blob, err := f.kms.EncryptWithScopeKey(ctx, scope, []byte("value"))
	require.NoError(t, err)

	t.Run("Success_AlreadyActive", func(t *testing.T) {
		out, changed, err := f.kms.RewrapBlob(ctx, scope, blob)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, blob, out)
	})

	t.Run("Success_MovesToActiveKeepingPayload", func(t *testing.T) {
		rotated, err := f.kms.RotateKey(ctx, scope)
		require.NoError(t, err)

		out, changed, err := f.kms.RewrapBlob(ctx, scope, blob)
		require.NoError(t, err)
		assert.True(t, changed)

		original, err := cryptoDomain.ParseSealedBlob(blob)
		require.NoError(t, err)
		rewrapped, err := cryptoDomain.ParseSealedBlob(out)
		require.NoError(t, err)
		assert.Equal(t, rotated.ID, rewrapped.KmsKeyID)
		assert.Equal(t, original.Payload, rewrapped.Payload)

		got, err := f.kms.DecryptWithScopeKey(ctx, scope, out)
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)
	})
}

func TestKMSUseCase_WithBlindIndexSalt(t *testing.T) {
	ctx := context.Background()
	f := newKMSFixture(t, time.Minute)

	t.Run("Success_SaltIsZeroedAfterCallback", func(t *testing.T) {
		var held []byte
		require.NoError(t, f.kms.WithBlindIndexSalt(ctx, f.project, func(salt []byte) error {
			assert.Len(t, salt, cryptoDomain.KeySize)
			held = salt
			return nil
		}))
		assert.Equal(t, make([]byte, cryptoDomain.KeySize), held)
	})

	t.Run("Error_CallbackErrorPropagates", func(t *testing.T) {
		cbErr := errors.New("boom")
		err := f.kms.WithBlindIndexSalt(ctx, f.project, func([]byte) error { return cbErr })
		assert.ErrorIs(t, err, cbErr)
	})

	t.Run("Error_UnknownProject", func(t *testing.T) {
		err := f.kms.WithBlindIndexSalt(ctx, uuid.New(), func([]byte) error { return nil })
		assert.ErrorIs(t, err, cryptoDomain.ErrBlindIndexSaltNotFound)
	})
}
