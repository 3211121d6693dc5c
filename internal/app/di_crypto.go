package app

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoRepository "github.com/allisson/envsafe/internal/crypto/repository"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
	cryptoUseCase "github.com/allisson/envsafe/internal/crypto/usecase"
)

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// EnvelopeCipher returns the envelope cipher service.
func (c *Container) EnvelopeCipher() cryptoService.EnvelopeCipher {
	c.envelopeCipherInit.Do(func() {
		c.envelopeCipher = cryptoService.NewEnvelopeCipher(c.AEADManager())
	})
	return c.envelopeCipher
}

// KeyManager returns the key manager service.
func (c *Container) KeyManager() cryptoService.KeyManager {
	c.keyManagerInit.Do(func() {
		c.keyManager = cryptoService.NewKeyManager(c.EnvelopeCipher())
	})
	return c.keyManager
}

// BlindIndexer returns the blind indexer service.
func (c *Container) BlindIndexer() cryptoService.BlindIndexer {
	c.blindIndexerInit.Do(func() {
		c.blindIndexer = cryptoService.NewBlindIndexer()
	})
	return c.blindIndexer
}

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// RootCustodian returns the custodian selected by ROOT_CUSTODIAN.
func (c *Container) RootCustodian() (cryptoService.RootCustodian, error) {
	var err error
	c.rootCustodianInit.Do(func() {
		c.rootCustodian, err = c.initRootCustodian()
		if err != nil {
			c.initErrors["rootCustodian"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rootCustodian"]; exists {
		return nil, storedErr
	}
	return c.rootCustodian, nil
}

// KeyCache returns the cache of unwrapped scope keys.
func (c *Container) KeyCache() *cryptoUseCase.KeyCache {
	c.keyCacheInit.Do(func() {
		c.keyCache = cryptoUseCase.NewKeyCache(c.config.KeyCacheTTL)
	})
	return c.keyCache
}

// KmsKeyRepository returns the KMS key repository based on database driver.
func (c *Container) KmsKeyRepository() (cryptoUseCase.KmsKeyRepository, error) {
	var err error
	c.kmsKeyRepoInit.Do(func() {
		c.kmsKeyRepo, err = c.initKmsKeyRepository()
		if err != nil {
			c.initErrors["kmsKeyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kmsKeyRepo"]; exists {
		return nil, storedErr
	}
	return c.kmsKeyRepo, nil
}

// BlindIndexSaltRepository returns the blind index salt repository based on database driver.
func (c *Container) BlindIndexSaltRepository() (cryptoUseCase.BlindIndexSaltRepository, error) {
	var err error
	c.saltRepoInit.Do(func() {
		c.saltRepo, err = c.initBlindIndexSaltRepository()
		if err != nil {
			c.initErrors["saltRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["saltRepo"]; exists {
		return nil, storedErr
	}
	return c.saltRepo, nil
}

// KMSUseCase returns the key hierarchy use case.
func (c *Container) KMSUseCase() (cryptoUseCase.KMSUseCase, error) {
	var err error
	c.kmsUseCaseInit.Do(func() {
		c.kmsUseCase, err = c.initKMSUseCase()
		if err != nil {
			c.initErrors["kmsUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kmsUseCase"]; exists {
		return nil, storedErr
	}
	return c.kmsUseCase, nil
}

// initRootCustodian opens the root custodian. In master_key mode this loads and,
// when KMS_PROVIDER is set, decrypts MASTER_KEYS.
func (c *Container) initRootCustodian() (cryptoService.RootCustodian, error) {
	custodian, err := cryptoService.NewRootCustodian(
		context.Background(),
		c.config,
		c.KMSService(),
		c.EnvelopeCipher(),
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create root custodian: %w", err)
	}
	return custodian, nil
}

// initKmsKeyRepository creates the KMS key repository based on the database driver.
func (c *Container) initKmsKeyRepository() (cryptoUseCase.KmsKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for kms key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return cryptoRepository.NewPostgreSQLKmsKeyRepository(db), nil
	case "mysql":
		return cryptoRepository.NewMySQLKmsKeyRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initBlindIndexSaltRepository creates the salt repository based on the database driver.
func (c *Container) initBlindIndexSaltRepository() (cryptoUseCase.BlindIndexSaltRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for blind index salt repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return cryptoRepository.NewPostgreSQLBlindIndexSaltRepository(db), nil
	case "mysql":
		return cryptoRepository.NewMySQLBlindIndexSaltRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initKMSUseCase creates the KMS use case with all its dependencies.
func (c *Container) initKMSUseCase() (cryptoUseCase.KMSUseCase, error) {
	keyAlg, err := cryptoDomain.ParseAlgorithm(c.config.KeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid KEY_ALGORITHM: %w", err)
	}
	dataKeyAlg, err := cryptoDomain.ParseAlgorithm(c.config.DataKeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid DATA_KEY_ALGORITHM: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for kms use case: %w", err)
	}

	keyRepo, err := c.KmsKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get kms key repository for kms use case: %w", err)
	}

	saltRepo, err := c.BlindIndexSaltRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get blind index salt repository for kms use case: %w", err)
	}

	custodian, err := c.RootCustodian()
	if err != nil {
		return nil, fmt.Errorf("failed to get root custodian for kms use case: %w", err)
	}

	baseUseCase := cryptoUseCase.NewKMSUseCase(
		txManager,
		keyRepo,
		saltRepo,
		c.KeyManager(),
		c.EnvelopeCipher(),
		custodian,
		c.KeyCache(),
		keyAlg,
		dataKeyAlg,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for kms use case: %w", err)
		}
		return cryptoUseCase.NewKMSUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
