// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/fieldcrypt/internal/config"
	"github.com/allisson/fieldcrypt/internal/database"
	"github.com/allisson/fieldcrypt/internal/metrics"
)

// DriverMemory selects the in-memory stores; no database connection is opened.
const DriverMemory = "memory"

// ErrNoDatabase is returned by DB when the container runs on the in-memory driver.
var ErrNoDatabase = errors.New("no database: DB_DRIVER is memory")

// Container holds all application dependencies and provides methods to access them.
// Components are created on first access and shared afterwards.
type Container struct {
	config *config.Config

	loggerInit sync.Once
	logger     *slog.Logger

	db              lazy[*sql.DB]
	txManager       lazy[database.TxManager]
	metricsProvider lazy[*metrics.Provider]
	businessMetrics lazy[metrics.BusinessMetrics]
	cacheMetrics    lazy[metrics.CacheMetrics]

	kmsComponents
	envelopeComponents
	auditComponents

	shutdownMu sync.Mutex
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{config: cfg}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger at the configured level.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection. It fails with ErrNoDatabase on the memory driver.
func (c *Container) DB() (*sql.DB, error) {
	return c.db.get(c.initDB)
}

// TxManager returns the transaction manager; a no-op one on the memory driver.
func (c *Container) TxManager() (database.TxManager, error) {
	return c.txManager.get(c.initTxManager)
}

// MetricsProvider returns the Prometheus-backed meter provider, or nil when metrics are
// disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return c.metricsProvider.get(c.initMetricsProvider)
}

// BusinessMetrics returns the operation metrics recorder. It is a no-op when metrics are
// disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return c.businessMetrics.get(c.initBusinessMetrics)
}

// CacheMetrics returns the data key cache metrics recorder. It is a no-op when metrics
// are disabled.
func (c *Container) CacheMetrics() (metrics.CacheMetrics, error) {
	return c.cacheMetrics.get(c.initCacheMetrics)
}

// Shutdown releases every component that was built, servers first.
func (c *Container) Shutdown(ctx context.Context) error {
	c.shutdownMu.Lock()
	defer c.shutdownMu.Unlock()

	var shutdownErrors []error

	if server, ok := c.httpServer.built(); ok {
		if err := server.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if server, ok := c.metricsServer.built(); ok && server != nil {
		if err := server.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if dataKeyCache, ok := c.dataKeyCache.built(); ok {
		if err := dataKeyCache.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("data key cache close: %w", err))
		}
	}

	if client, ok := c.kmsClient.built(); ok {
		if err := client.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("kms client close: %w", err))
		}
	}

	if keyManager, ok := c.keyManager.built(); ok {
		if err := keyManager.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("key manager close: %w", err))
		}
	}

	if provider, ok := c.metricsProvider.built(); ok && provider != nil {
		if err := provider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if db, ok := c.db.built(); ok {
		if err := db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
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

func (c *Container) initDB() (*sql.DB, error) {
	if c.config.DBDriver == DriverMemory {
		return nil, ErrNoDatabase
	}

	db, err := database.Connect(context.Background(), database.Config{
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

func (c *Container) initTxManager() (database.TxManager, error) {
	if c.config.DBDriver == DriverMemory {
		return database.NewNoopTxManager(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

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

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

func (c *Container) initCacheMetrics() (metrics.CacheMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpCacheMetrics(), nil
	}
	return metrics.NewCacheMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}
