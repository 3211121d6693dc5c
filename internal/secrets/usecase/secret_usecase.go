package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
	cryptoUseCase "github.com/allisson/envsafe/internal/crypto/usecase"
	"github.com/allisson/envsafe/internal/database"
	apperrors "github.com/allisson/envsafe/internal/errors"
	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/retry"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	customValidation "github.com/allisson/envsafe/internal/validation"
	versionsUseCase "github.com/allisson/envsafe/internal/versions/usecase"
)

// DefaultRewrapBatchSize is used when Rewrap is called with a non-positive batch size.
const DefaultRewrapBatchSize = 100

const maxCommentLength = 4096

// secretUseCase implements SecretUseCase.
type secretUseCase struct {
	txManager  database.TxManager
	secretRepo SecretRepository
	folderRepo FolderRepository
	kms        cryptoUseCase.KMSUseCase
	indexer    cryptoService.BlindIndexer
	versioning versionsUseCase.VersioningUseCase
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// sealed holds the blobs of the fields a write touches. Nil fields are unchanged.
type sealed struct {
	blindIndex string
	name       []byte
	value      []byte
	comment    []byte
}

// keyID returns the key that sealed the fields, or uuid.Nil when nothing was sealed.
func (f *sealed) keyID() (uuid.UUID, error) {
	for _, blob := range [][]byte{f.value, f.name, f.comment} {
		if len(blob) > 0 {
			return cryptoDomain.SealedBlobKeyID(blob)
		}
	}
	return uuid.Nil, nil
}

// Create seals and stores a new secret at version 1 together with its first version.
func (u *secretUseCase) Create(
	ctx context.Context,
	s scope.Scope,
	input *secretsDomain.CreateSecretInput,
) (*secretsDomain.Secret, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7())
	var created *secretsDomain.Secret
	err := u.retrier.Do(ctx, "secrets.create", func(ctx context.Context) error {
		return u.versioning.WithSecretLock(ctx, id, func(ctx context.Context) error {
			if _, err := u.folder(ctx, s, input.FolderID); err != nil {
				return err
			}

			fields, err := u.seal(ctx, s.ProjectID, &input.Name, &input.Value, input.Comment)
			if err != nil {
				return err
			}
			keyID, err := fields.keyID()
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			secret := &secretsDomain.Secret{
				ID:               id,
				ProjectID:        s.ProjectID,
				EnvironmentID:    s.EnvironmentID,
				FolderID:         input.FolderID,
				BlindIndex:       fields.blindIndex,
				KmsKeyID:         keyID,
				EncryptedKey:     fields.name,
				EncryptedValue:   fields.value,
				EncryptedComment: fields.comment,
				Tags:             normalizeTags(input.Tags),
				Version:          1,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			// A rotation between two seals leaves the fields under different keys.
			if secret.KmsKeyID, err = trailingKeyID(secret, keyID); err != nil {
				return err
			}

			return u.txManager.WithTx(ctx, func(ctx context.Context) error {
				if err := u.ensureNameFree(ctx, secret); err != nil {
					return err
				}
				if err := u.secretRepo.Create(ctx, secret); err != nil {
					return err
				}
				if _, err := u.versioning.RecordSecretVersion(ctx, secret, s.Actor); err != nil {
					return err
				}
				created = secret
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies a patch to a secret and appends the next version. An empty patch
// returns the secret unchanged.
func (u *secretUseCase) Update(
	ctx context.Context,
	s scope.Scope,
	secretID uuid.UUID,
	input *secretsDomain.UpdateSecretInput,
) (*secretsDomain.Secret, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := validateUpdateInput(input); err != nil {
		return nil, err
	}

	var updated *secretsDomain.Secret
	err := u.retrier.Do(ctx, "secrets.update", func(ctx context.Context) error {
		return u.versioning.WithSecretLock(ctx, secretID, func(ctx context.Context) error {
			current, err := u.get(ctx, s, secretID)
			if err != nil {
				return err
			}
			if input.IsEmpty() {
				updated = current
				return nil
			}

			fields, err := u.seal(ctx, s.ProjectID, input.Name, input.Value, input.Comment)
			if err != nil {
				return err
			}

			next := current.Clone()
			if input.Name != nil {
				next.BlindIndex = fields.blindIndex
				next.EncryptedKey = fields.name
			}
			if input.Value != nil {
				next.EncryptedValue = fields.value
			}
			if input.Comment != nil {
				next.EncryptedComment = fields.comment
			}
			sealedWith, err := fields.keyID()
			if err != nil {
				return err
			}
			if sealedWith == uuid.Nil {
				sealedWith = current.KmsKeyID
			}
			if next.KmsKeyID, err = trailingKeyID(next, sealedWith); err != nil {
				return err
			}
			if input.Tags != nil {
				next.Tags = normalizeTags(*input.Tags)
			}
			next.Version = current.Version + 1
			next.UpdatedAt = time.Now().UTC()

			return u.txManager.WithTx(ctx, func(ctx context.Context) error {
				if input.Name != nil {
					if err := u.ensureNameFree(ctx, next); err != nil {
						return err
					}
				}
				if err := u.write(ctx, next, current.Version, s.Actor); err != nil {
					return err
				}
				updated = next
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the live secret and appends its terminal deleted version.
func (u *secretUseCase) Delete(ctx context.Context, s scope.Scope, secretID uuid.UUID) error {
	if err := s.Validate(); err != nil {
		return err
	}

	return u.retrier.Do(ctx, "secrets.delete", func(ctx context.Context) error {
		return u.versioning.WithSecretLock(ctx, secretID, func(ctx context.Context) error {
			current, err := u.get(ctx, s, secretID)
			if err != nil {
				return err
			}
			return u.txManager.WithTx(ctx, func(ctx context.Context) error {
				return u.remove(ctx, current, s.Actor)
			})
		})
	})
}

// Get returns the metadata of a secret.
func (u *secretUseCase) Get(ctx context.Context, s scope.Scope, secretID uuid.UUID) (*secretsDomain.Secret, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return u.get(ctx, s, secretID)
}

// ListByFolder returns the metadata of every secret in a folder.
func (u *secretUseCase) ListByFolder(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if _, err := u.folder(ctx, s, folderID); err != nil {
		return nil, err
	}
	return u.secretRepo.ListByFolder(ctx, folderID)
}

// FindByName looks a secret up through the blind index of its name.
func (u *secretUseCase) FindByName(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
	name string,
) (*secretsDomain.Secret, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := customValidation.WrapValidationError(
		validation.Validate(name, customValidation.SecretNameRules()...),
	); err != nil {
		return nil, err
	}
	if _, err := u.folder(ctx, s, folderID); err != nil {
		return nil, err
	}

	index, err := u.blindIndex(ctx, s.ProjectID, name)
	if err != nil {
		return nil, err
	}
	return u.secretRepo.GetByBlindIndex(ctx, folderID, index)
}

// Reveal decrypts the name, value and comment of a secret.
func (u *secretUseCase) Reveal(
	ctx context.Context,
	s scope.Scope,
	secretID uuid.UUID,
) (*secretsDomain.RevealedSecret, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	secret, err := u.get(ctx, s, secretID)
	if err != nil {
		return nil, err
	}

	revealed := u.reveal(ctx, secret)
	if revealed.Err != nil {
		return nil, revealed.Err
	}
	return revealed, nil
}

// RevealAll decrypts every secret of a folder. Secrets that fail to decrypt are
// returned with Err set.
func (u *secretUseCase) RevealAll(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) ([]*secretsDomain.RevealedSecret, error) {
	secrets, err := u.ListByFolder(ctx, s, folderID)
	if err != nil {
		return nil, err
	}

	revealed := make([]*secretsDomain.RevealedSecret, 0, len(secrets))
	failed := 0
	for _, secret := range secrets {
		r := u.reveal(ctx, secret)
		if r.Err != nil {
			failed++
		}
		revealed = append(revealed, r)
	}

	if failed > 0 {
		u.logger.Warn("secrets could not be revealed",
			slog.String("folder_id", folderID.String()),
			slog.Int("failed", failed),
			slog.Int("total", len(secrets)),
		)
	}
	return revealed, nil
}

// PurgeFolder deletes every secret of a folder and versions each deletion. It
// joins the caller's transaction and takes no secret locks.
func (u *secretUseCase) PurgeFolder(ctx context.Context, s scope.Scope, folderID uuid.UUID) (int, error) {
	purged := 0
	err := u.txManager.WithTx(ctx, func(ctx context.Context) error {
		secrets, err := u.secretRepo.ListByFolder(ctx, folderID)
		if err != nil {
			return err
		}
		for _, secret := range secrets {
			if err := u.remove(ctx, secret, s.Actor); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// Rewrap moves the next batch of a project's secrets onto the active project key.
func (u *secretUseCase) Rewrap(
	ctx context.Context,
	projectID uuid.UUID,
	actor scope.Actor,
	afterID uuid.UUID,
	batchSize int,
) (*secretsDomain.RewrapResult, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultRewrapBatchSize
	}

	active, err := u.kms.ActiveKey(ctx, cryptoDomain.ProjectScope(projectID))
	if err != nil {
		return nil, err
	}
	batch, err := u.secretRepo.ListForRewrap(ctx, projectID, active.ID, afterID, batchSize)
	if err != nil {
		return nil, err
	}

	result := &secretsDomain.RewrapResult{LastID: afterID, Done: len(batch) < batchSize}
	for _, secret := range batch {
		result.LastID = secret.ID
		err := u.retrier.Do(ctx, "secrets.rewrap", func(ctx context.Context) error {
			return u.rewrapOne(ctx, secret, active.ID, actor)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Failed++
			u.logger.Warn("secret rewrap failed",
				slog.String("secret_id", secret.ID.String()),
				slog.String("project_id", projectID.String()),
				slog.Any("error", err),
			)
			continue
		}
		result.Rewrapped++
	}

	u.logger.Info("rewrap batch finished",
		slog.String("project_id", projectID.String()),
		slog.String("active_key_id", active.ID.String()),
		slog.Int("rewrapped", result.Rewrapped),
		slog.Int("failed", result.Failed),
		slog.Bool("done", result.Done),
	)
	return result, nil
}

func (u *secretUseCase) rewrapOne(
	ctx context.Context,
	listed *secretsDomain.Secret,
	activeKeyID uuid.UUID,
	actor scope.Actor,
) error {
	return u.versioning.WithSecretLock(ctx, listed.ID, func(ctx context.Context) error {
		current, err := u.secretRepo.Get(ctx, listed.EnvironmentID, listed.ID)
		if err != nil {
			if errors.Is(err, secretsDomain.ErrSecretNotFound) {
				// Deleted since the batch was listed.
				return nil
			}
			return err
		}

		keyScope := cryptoDomain.ProjectScope(current.ProjectID)
		next := current.Clone()
		changed := false
		for _, blob := range []*[]byte{&next.EncryptedKey, &next.EncryptedValue, &next.EncryptedComment} {
			if len(*blob) == 0 {
				continue
			}
			rewrapped, moved, err := u.kms.RewrapBlob(ctx, keyScope, *blob)
			if err != nil {
				return err
			}
			if moved {
				*blob = rewrapped
				changed = true
			}
		}
		if next.KmsKeyID, err = trailingKeyID(next, activeKeyID); err != nil {
			return err
		}
		if !changed && next.KmsKeyID == current.KmsKeyID {
			return nil
		}
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().UTC()

		return u.txManager.WithTx(ctx, func(ctx context.Context) error {
			return u.write(ctx, next, current.Version, actor)
		})
	})
}

// trailingKeyID returns the key id Rewrap tracks for secret: the key of the first
// blob not sealed under newest, or newest when every blob is.
func trailingKeyID(secret *secretsDomain.Secret, newest uuid.UUID) (uuid.UUID, error) {
	for _, blob := range [][]byte{secret.EncryptedKey, secret.EncryptedValue, secret.EncryptedComment} {
		if len(blob) == 0 {
			continue
		}
		keyID, err := cryptoDomain.SealedBlobKeyID(blob)
		if err != nil {
			return uuid.Nil, err
		}
		if keyID != newest {
			return keyID, nil
		}
	}
	return newest, nil
}

// write stores next over the row at expectedVersion and records next as a version.
func (u *secretUseCase) write(
	ctx context.Context,
	next *secretsDomain.Secret,
	expectedVersion uint,
	actor scope.Actor,
) error {
	if err := u.secretRepo.Update(ctx, next, expectedVersion); err != nil {
		return err
	}
	_, err := u.versioning.RecordSecretVersion(ctx, next, actor)
	return err
}

// remove deletes a live secret and records its deletion.
func (u *secretUseCase) remove(ctx context.Context, secret *secretsDomain.Secret, actor scope.Actor) error {
	if err := u.secretRepo.Delete(ctx, secret.ID, secret.Version); err != nil {
		return err
	}
	_, err := u.versioning.RecordSecretDeletion(ctx, secret, actor)
	return err
}

func (u *secretUseCase) reveal(ctx context.Context, secret *secretsDomain.Secret) *secretsDomain.RevealedSecret {
	keyScope := cryptoDomain.ProjectScope(secret.ProjectID)
	revealed := &secretsDomain.RevealedSecret{Secret: secret}

	name, err := u.kms.DecryptWithScopeKey(ctx, keyScope, secret.EncryptedKey)
	if err != nil {
		revealed.Err = apperrors.Wrapf(err, "failed to decrypt name of secret %s", secret.ID)
		return revealed
	}
	value, err := u.kms.DecryptWithScopeKey(ctx, keyScope, secret.EncryptedValue)
	if err != nil {
		cryptoDomain.Zero(name)
		revealed.Err = apperrors.Wrapf(err, "failed to decrypt value of secret %s", secret.ID)
		return revealed
	}

	var comment []byte
	if secret.HasComment() {
		comment, err = u.kms.DecryptWithScopeKey(ctx, keyScope, secret.EncryptedComment)
		if err != nil {
			cryptoDomain.Zero(name)
			cryptoDomain.Zero(value)
			revealed.Err = apperrors.Wrapf(err, "failed to decrypt comment of secret %s", secret.ID)
			return revealed
		}
	}

	revealed.Name = string(name)
	revealed.Value = value
	revealed.Comment = string(comment)
	cryptoDomain.Zero(name)
	cryptoDomain.Zero(comment)
	return revealed
}

// seal computes the blind index and seals whichever of name, value and comment
// are set. An empty comment seals to nil, which removes it.
func (u *secretUseCase) seal(
	ctx context.Context,
	projectID uuid.UUID,
	name *string,
	value *[]byte,
	comment *string,
) (*sealed, error) {
	keyScope := cryptoDomain.ProjectScope(projectID)
	fields := &sealed{}
	var err error

	if name != nil {
		if fields.blindIndex, err = u.blindIndex(ctx, projectID, *name); err != nil {
			return nil, err
		}
		if fields.name, err = u.kms.EncryptWithScopeKey(ctx, keyScope, []byte(*name)); err != nil {
			return nil, err
		}
	}
	if value != nil {
		if fields.value, err = u.kms.EncryptWithScopeKey(ctx, keyScope, *value); err != nil {
			return nil, err
		}
	}
	if comment != nil && *comment != "" {
		if fields.comment, err = u.kms.EncryptWithScopeKey(ctx, keyScope, []byte(*comment)); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (u *secretUseCase) blindIndex(ctx context.Context, projectID uuid.UUID, name string) (string, error) {
	var index string
	err := u.kms.WithBlindIndexSalt(ctx, projectID, func(salt []byte) error {
		var err error
		index, err = u.indexer.ComputeIndex(salt, name)
		return err
	})
	return index, err
}

// ensureNameFree rejects a secret whose name is already used by another secret
// of the same folder. The unique index enforces the same across processes.
func (u *secretUseCase) ensureNameFree(ctx context.Context, secret *secretsDomain.Secret) error {
	existing, err := u.secretRepo.GetByBlindIndex(ctx, secret.FolderID, secret.BlindIndex)
	switch {
	case errors.Is(err, secretsDomain.ErrSecretNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != secret.ID:
		return secretsDomain.ErrDuplicateSecret
	}
	return nil
}

func (u *secretUseCase) get(ctx context.Context, s scope.Scope, secretID uuid.UUID) (*secretsDomain.Secret, error) {
	secret, err := u.secretRepo.Get(ctx, s.EnvironmentID, secretID)
	if err != nil {
		return nil, err
	}
	if secret.ProjectID != s.ProjectID {
		return nil, secretsDomain.ErrSecretNotFound
	}
	return secret, nil
}

func (u *secretUseCase) folder(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Folder, error) {
	folder, err := u.folderRepo.Get(ctx, s.EnvironmentID, folderID)
	if err != nil {
		return nil, err
	}
	if folder.ProjectID != s.ProjectID {
		return nil, foldersDomain.ErrFolderNotFound
	}
	return folder, nil
}

func validateCreateInput(input *secretsDomain.CreateSecretInput) error {
	if input == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "missing input")
	}
	if input.FolderID == uuid.Nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "folder_id: cannot be blank")
	}
	err := validation.ValidateStruct(input,
		validation.Field(&input.Name, customValidation.SecretNameRules()...),
		validation.Field(&input.Value, validation.NotNil),
		validation.Field(&input.Comment, validation.Length(0, maxCommentLength)),
		validation.Field(&input.Tags, validation.Each(customValidation.Tag, validation.Length(1, 64))),
	)
	return customValidation.WrapValidationError(err)
}

func validateUpdateInput(input *secretsDomain.UpdateSecretInput) error {
	if input == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "missing input")
	}
	if input.Name != nil {
		if err := validation.Validate(*input.Name, customValidation.SecretNameRules()...); err != nil {
			return customValidation.WrapValidationError(fmt.Errorf("name: %w", err))
		}
	}
	if input.Value != nil && *input.Value == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "value: is required")
	}
	if input.Comment != nil {
		if err := validation.Validate(*input.Comment, validation.Length(0, maxCommentLength)); err != nil {
			return customValidation.WrapValidationError(fmt.Errorf("comment: %w", err))
		}
	}
	if input.Tags != nil {
		if err := validation.Validate(
			*input.Tags,
			validation.Each(customValidation.Tag, validation.Length(1, 64)),
		); err != nil {
			return customValidation.WrapValidationError(fmt.Errorf("tags: %w", err))
		}
	}
	return nil
}

// normalizeTags sorts and deduplicates tags.
func normalizeTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

// NewSecretUseCase creates a SecretUseCase. A nil retrier disables retries.
func NewSecretUseCase(
	txManager database.TxManager,
	secretRepo SecretRepository,
	folderRepo FolderRepository,
	kms cryptoUseCase.KMSUseCase,
	indexer cryptoService.BlindIndexer,
	versioning versionsUseCase.VersioningUseCase,
	retrier *retry.Retrier,
	logger *slog.Logger,
) SecretUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if retrier == nil {
		retrier = retry.New(retry.Policy{}, logger)
	}
	return &secretUseCase{
		txManager:  txManager,
		secretRepo: secretRepo,
		folderRepo: folderRepo,
		kms:        kms,
		indexer:    indexer,
		versioning: versioning,
		retrier:    retrier,
		logger:     logger,
	}
}
