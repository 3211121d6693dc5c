package service

import (
	"context"
	"fmt"
	"log/slog"

	"gocloud.dev/secrets"

	"github.com/allisson/envsafe/internal/config"
	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSService opens keepers for external KMS providers.
type KMSService interface {
	// OpenKeeper opens a secrets.Keeper for the configured KMS provider.
	// Returns an error if the KMS provider URI is invalid or connection fails.
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)
}

// kmsService implements KMSService using gocloud.dev/secrets.
type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper opens a secrets.Keeper for the configured KMS provider using the keyURI.
// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// LoadMasterKeyChain builds the master key chain from MASTER_KEYS.
//
// Without KMS_PROVIDER the values are plaintext keys. With KMS_PROVIDER set each
// value is a KMS ciphertext decrypted once at boot through KMS_KEY_URI.
func LoadMasterKeyChain(
	ctx context.Context,
	cfg *config.Config,
	kmsService KMSService,
	logger *slog.Logger,
) (*cryptoDomain.MasterKeyChain, error) {
	if cfg.KMSProvider == "" {
		logger.Info("loading plaintext master keys", slog.String("active_master_key_id", cfg.ActiveMasterKeyID))
		return cryptoDomain.ParseMasterKeys(cfg.MasterKeys, cfg.ActiveMasterKeyID, cryptoDomain.PlaintextMasterKey)
	}

	if cfg.KMSKeyURI == "" {
		return nil, fmt.Errorf("KMS_KEY_URI is required when KMS_PROVIDER is %q", cfg.KMSProvider)
	}

	keeper, err := kmsService.OpenKeeper(ctx, cfg.KMSKeyURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	custodian := NewKeeperCustodian(keeper, cfg.KMSProvider, cfg.KMSTimeout)
	decode := func(id string, value []byte) ([]byte, error) {
		return custodian.Unwrap(ctx, cfg.KMSProvider, value)
	}

	logger.Info("decrypting master keys with KMS",
		slog.String("kms_provider", cfg.KMSProvider),
		slog.String("active_master_key_id", cfg.ActiveMasterKeyID),
	)
	return cryptoDomain.ParseMasterKeys(cfg.MasterKeys, cfg.ActiveMasterKeyID, decode)
}

// NewRootCustodian creates the custodian selected by ROOT_CUSTODIAN.
func NewRootCustodian(
	ctx context.Context,
	cfg *config.Config,
	kmsService KMSService,
	cipher EnvelopeCipher,
	logger *slog.Logger,
) (RootCustodian, error) {
	alg, err := cryptoDomain.ParseAlgorithm(cfg.KeyAlgorithm)
	if err != nil {
		return nil, err
	}

	switch cfg.RootCustodian {
	case config.RootCustodianMasterKey:
		chain, err := LoadMasterKeyChain(ctx, cfg, kmsService, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load master key chain: %w", err)
		}
		return NewMasterKeyCustodian(chain, cipher, alg), nil
	case config.RootCustodianKMS:
		if cfg.KMSProvider == "" || cfg.KMSKeyURI == "" {
			return nil, fmt.Errorf("KMS_PROVIDER and KMS_KEY_URI are required for the %q root custodian", cfg.RootCustodian)
		}
		keeper, err := kmsService.OpenKeeper(ctx, cfg.KMSKeyURI)
		if err != nil {
			return nil, err
		}
		return NewKeeperCustodian(keeper, cfg.KMSProvider, cfg.KMSTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported root custodian: %s (valid options: %s, %s)",
			cfg.RootCustodian, config.RootCustodianMasterKey, config.RootCustodianKMS)
	}
}
