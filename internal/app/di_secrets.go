package app

import (
	"fmt"

	foldersRepository "github.com/allisson/envsafe/internal/folders/repository"
	foldersUseCase "github.com/allisson/envsafe/internal/folders/usecase"
	secretsRepository "github.com/allisson/envsafe/internal/secrets/repository"
	secretsUseCase "github.com/allisson/envsafe/internal/secrets/usecase"
	snapshotsRepository "github.com/allisson/envsafe/internal/snapshots/repository"
	snapshotsUseCase "github.com/allisson/envsafe/internal/snapshots/usecase"
	versionsRepository "github.com/allisson/envsafe/internal/versions/repository"
	versionsUseCase "github.com/allisson/envsafe/internal/versions/usecase"
)

// SecretRepository returns the secret repository based on database driver.
func (c *Container) SecretRepository() (secretsUseCase.SecretRepository, error) {
	var err error
	c.secretRepoInit.Do(func() {
		c.secretRepo, err = c.initSecretRepository()
		if err != nil {
			c.initErrors["secretRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretRepo"]; exists {
		return nil, storedErr
	}
	return c.secretRepo, nil
}

// FolderRepository returns the folder repository based on database driver.
func (c *Container) FolderRepository() (foldersUseCase.FolderRepository, error) {
	var err error
	c.folderRepoInit.Do(func() {
		c.folderRepo, err = c.initFolderRepository()
		if err != nil {
			c.initErrors["folderRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["folderRepo"]; exists {
		return nil, storedErr
	}
	return c.folderRepo, nil
}

// SecretVersionRepository returns the secret version repository based on database driver.
func (c *Container) SecretVersionRepository() (versionsUseCase.SecretVersionRepository, error) {
	var err error
	c.secretVersionRepoInit.Do(func() {
		c.secretVersionRepo, err = c.initSecretVersionRepository()
		if err != nil {
			c.initErrors["secretVersionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretVersionRepo"]; exists {
		return nil, storedErr
	}
	return c.secretVersionRepo, nil
}

// FolderVersionRepository returns the folder version repository based on database driver.
func (c *Container) FolderVersionRepository() (versionsUseCase.FolderVersionRepository, error) {
	var err error
	c.folderVersionRepoInit.Do(func() {
		c.folderVersionRepo, err = c.initFolderVersionRepository()
		if err != nil {
			c.initErrors["folderVersionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["folderVersionRepo"]; exists {
		return nil, storedErr
	}
	return c.folderVersionRepo, nil
}

// SnapshotRepository returns the snapshot repository based on database driver.
func (c *Container) SnapshotRepository() (snapshotsUseCase.SnapshotRepository, error) {
	var err error
	c.snapshotRepoInit.Do(func() {
		c.snapshotRepo, err = c.initSnapshotRepository()
		if err != nil {
			c.initErrors["snapshotRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["snapshotRepo"]; exists {
		return nil, storedErr
	}
	return c.snapshotRepo, nil
}

// VersioningUseCase returns the versioning engine.
func (c *Container) VersioningUseCase() (versionsUseCase.VersioningUseCase, error) {
	var err error
	c.versioningUseCaseInit.Do(func() {
		c.versioningUseCase, err = c.initVersioningUseCase()
		if err != nil {
			c.initErrors["versioningUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["versioningUseCase"]; exists {
		return nil, storedErr
	}
	return c.versioningUseCase, nil
}

// SecretUseCase returns the secret use case.
func (c *Container) SecretUseCase() (secretsUseCase.SecretUseCase, error) {
	var err error
	c.secretUseCaseInit.Do(func() {
		c.secretUseCase, err = c.initSecretUseCase()
		if err != nil {
			c.initErrors["secretUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretUseCase"]; exists {
		return nil, storedErr
	}
	return c.secretUseCase, nil
}

// FolderUseCase returns the folder use case.
func (c *Container) FolderUseCase() (foldersUseCase.FolderUseCase, error) {
	var err error
	c.folderUseCaseInit.Do(func() {
		c.folderUseCase, err = c.initFolderUseCase()
		if err != nil {
			c.initErrors["folderUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["folderUseCase"]; exists {
		return nil, storedErr
	}
	return c.folderUseCase, nil
}

// SnapshotUseCase returns the snapshot use case.
func (c *Container) SnapshotUseCase() (snapshotsUseCase.SnapshotUseCase, error) {
	var err error
	c.snapshotUseCaseInit.Do(func() {
		c.snapshotUseCase, err = c.initSnapshotUseCase()
		if err != nil {
			c.initErrors["snapshotUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["snapshotUseCase"]; exists {
		return nil, storedErr
	}
	return c.snapshotUseCase, nil
}

// initSecretRepository creates the secret repository based on the database driver.
func (c *Container) initSecretRepository() (secretsUseCase.SecretRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for secret repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return secretsRepository.NewPostgreSQLSecretRepository(db), nil
	case "mysql":
		return secretsRepository.NewMySQLSecretRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initFolderRepository creates the folder repository based on the database driver.
func (c *Container) initFolderRepository() (foldersUseCase.FolderRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for folder repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return foldersRepository.NewPostgreSQLFolderRepository(db), nil
	case "mysql":
		return foldersRepository.NewMySQLFolderRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initSecretVersionRepository creates the secret version repository based on the database driver.
func (c *Container) initSecretVersionRepository() (versionsUseCase.SecretVersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for secret version repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return versionsRepository.NewPostgreSQLSecretVersionRepository(db), nil
	case "mysql":
		return versionsRepository.NewMySQLSecretVersionRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initFolderVersionRepository creates the folder version repository based on the database driver.
func (c *Container) initFolderVersionRepository() (versionsUseCase.FolderVersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for folder version repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return versionsRepository.NewPostgreSQLFolderVersionRepository(db), nil
	case "mysql":
		return versionsRepository.NewMySQLFolderVersionRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initSnapshotRepository creates the snapshot repository based on the database driver.
func (c *Container) initSnapshotRepository() (snapshotsUseCase.SnapshotRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for snapshot repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return snapshotsRepository.NewPostgreSQLSnapshotRepository(db), nil
	case "mysql":
		return snapshotsRepository.NewMySQLSnapshotRepository(db), nil
	default:
		return nil, driverError(c.config.DBDriver)
	}
}

// initVersioningUseCase creates the versioning engine over both version repositories.
func (c *Container) initVersioningUseCase() (versionsUseCase.VersioningUseCase, error) {
	secretVersionRepo, err := c.SecretVersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret version repository for versioning use case: %w", err)
	}

	folderVersionRepo, err := c.FolderVersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder version repository for versioning use case: %w", err)
	}

	return versionsUseCase.NewVersioningUseCase(secretVersionRepo, folderVersionRepo), nil
}

// initSecretUseCase creates the secret use case with all its dependencies.
func (c *Container) initSecretUseCase() (secretsUseCase.SecretUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for secret use case: %w", err)
	}

	secretRepo, err := c.SecretRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret repository for secret use case: %w", err)
	}

	folderRepo, err := c.FolderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder repository for secret use case: %w", err)
	}

	kms, err := c.KMSUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get kms use case for secret use case: %w", err)
	}

	versioning, err := c.VersioningUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get versioning use case for secret use case: %w", err)
	}

	baseUseCase := secretsUseCase.NewSecretUseCase(
		txManager,
		secretRepo,
		folderRepo,
		kms,
		c.BlindIndexer(),
		versioning,
		c.Retrier(),
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for secret use case: %w", err)
		}
		return secretsUseCase.NewSecretUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initFolderUseCase creates the folder use case. Folder deletion purges secrets
// through the secret use case.
func (c *Container) initFolderUseCase() (foldersUseCase.FolderUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for folder use case: %w", err)
	}

	folderRepo, err := c.FolderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder repository for folder use case: %w", err)
	}

	versioning, err := c.VersioningUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get versioning use case for folder use case: %w", err)
	}

	purger, err := c.SecretUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret use case for folder use case: %w", err)
	}

	baseUseCase := foldersUseCase.NewFolderUseCase(
		txManager,
		folderRepo,
		versioning,
		purger,
		c.Retrier(),
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for folder use case: %w", err)
		}
		return foldersUseCase.NewFolderUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initSnapshotUseCase creates the snapshot use case with all its dependencies.
func (c *Container) initSnapshotUseCase() (snapshotsUseCase.SnapshotUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for snapshot use case: %w", err)
	}

	snapshotRepo, err := c.SnapshotRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot repository for snapshot use case: %w", err)
	}

	folderRepo, err := c.FolderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder repository for snapshot use case: %w", err)
	}

	secretRepo, err := c.SecretRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret repository for snapshot use case: %w", err)
	}

	secretVersionRepo, err := c.SecretVersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret version repository for snapshot use case: %w", err)
	}

	versioning, err := c.VersioningUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get versioning use case for snapshot use case: %w", err)
	}

	baseUseCase := snapshotsUseCase.NewSnapshotUseCase(
		txManager,
		snapshotRepo,
		folderRepo,
		secretRepo,
		secretVersionRepo,
		versioning,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for snapshot use case: %w", err)
		}
		return snapshotsUseCase.NewSnapshotUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
