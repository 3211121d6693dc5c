// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/allisson/envsafe/internal/config"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
	cryptoUseCase "github.com/allisson/envsafe/internal/crypto/usecase"
	"github.com/allisson/envsafe/internal/database"
	foldersUseCase "github.com/allisson/envsafe/internal/folders/usecase"
	"github.com/allisson/envsafe/internal/http"
	"github.com/allisson/envsafe/internal/metrics"
	"github.com/allisson/envsafe/internal/retry"
	secretsUseCase "github.com/allisson/envsafe/internal/secrets/usecase"
	snapshotsUseCase "github.com/allisson/envsafe/internal/snapshots/usecase"
	versionsUseCase "github.com/allisson/envsafe/internal/versions/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	retrier         *retry.Retrier

	// Managers
	txManager database.TxManager

	// Crypto
	aeadManager    cryptoService.AEADManager
	envelopeCipher cryptoService.EnvelopeCipher
	keyManager     cryptoService.KeyManager
	blindIndexer   cryptoService.BlindIndexer
	kmsService     cryptoService.KMSService
	rootCustodian  cryptoService.RootCustodian
	keyCache       *cryptoUseCase.KeyCache
	kmsKeyRepo     cryptoUseCase.KmsKeyRepository
	saltRepo       cryptoUseCase.BlindIndexSaltRepository
	kmsUseCase     cryptoUseCase.KMSUseCase

	// Repositories
	secretRepo        secretsUseCase.SecretRepository
	folderRepo        foldersUseCase.FolderRepository
	secretVersionRepo versionsUseCase.SecretVersionRepository
	folderVersionRepo versionsUseCase.FolderVersionRepository
	snapshotRepo      snapshotsUseCase.SnapshotRepository

	// Use Cases
	versioningUseCase versionsUseCase.VersioningUseCase
	secretUseCase     secretsUseCase.SecretUseCase
	folderUseCase     foldersUseCase.FolderUseCase
	snapshotUseCase   snapshotsUseCase.SnapshotUseCase

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                    sync.Mutex
	loggerInit            sync.Once
	dbInit                sync.Once
	metricsProviderInit   sync.Once
	businessMetricsInit   sync.Once
	retrierInit           sync.Once
	txManagerInit         sync.Once
	aeadManagerInit       sync.Once
	envelopeCipherInit    sync.Once
	keyManagerInit        sync.Once
	blindIndexerInit      sync.Once
	kmsServiceInit        sync.Once
	rootCustodianInit     sync.Once
	keyCacheInit          sync.Once
	kmsKeyRepoInit        sync.Once
	saltRepoInit          sync.Once
	kmsUseCaseInit        sync.Once
	secretRepoInit        sync.Once
	folderRepoInit        sync.Once
	secretVersionRepoInit sync.Once
	folderVersionRepoInit sync.Once
	snapshotRepoInit      sync.Once
	versioningUseCaseInit sync.Once
	secretUseCaseInit     sync.Once
	folderUseCaseInit     sync.Once
	snapshotUseCaseInit   sync.Once
	httpServerInit        sync.Once
	metricsServerInit     sync.Once
	initErrors            map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when
// metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// Retrier returns the retrier used for transient provider failures.
func (c *Container) Retrier() *retry.Retrier {
	c.retrierInit.Do(func() {
		c.retrier = retry.New(retry.Policy{
			MaxRetries:      c.config.KMSRetryMaxAttempts,
			InitialInterval: c.config.KMSRetryInitialInterval,
			MaxInterval:     c.config.KMSRetryMaxInterval,
		}, c.Logger())
	})
	return c.retrier
}

// HTTPServer returns the operational HTTP server (health and readiness).
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result *multierror.Error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Unwrapped scope keys and the root key material are zeroed here.
	if c.keyCache != nil {
		c.keyCache.Close()
	}

	if c.rootCustodian != nil {
		if err := c.rootCustodian.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("root custodian close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("database close: %w", err))
		}
	}

	return result.ErrorOrNil()
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initMetricsProvider creates the Prometheus backed provider when metrics are enabled.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder on top of the provider.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initHTTPServer creates the operational HTTP server with its router.
func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(provider, c.config.MetricsNamespace)
	return server, nil
}

// initMetricsServer creates the metrics server. It requires metrics to be enabled.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("metrics are disabled")
	}
	return http.NewMetricsServer(c.config.MetricsHost, c.config.MetricsPort, c.Logger(), provider), nil
}

// driverError reports a DB_DRIVER no repository supports.
func driverError(driver string) error {
	return fmt.Errorf("unsupported database driver: %s", driver)
}
