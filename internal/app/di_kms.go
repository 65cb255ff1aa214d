package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	kmsRepository "github.com/allisson/fieldcrypt/internal/kms/repository"
	kmsService "github.com/allisson/fieldcrypt/internal/kms/service"
)

// ErrMasterKeyNotRegistered is returned when DB_DRIVER is memory and KMS_KEY_ID names a
// keeper key this process does not know. Keys created by another process are lost with
// it, so KMS_KEY_URI must register the key at startup.
var ErrMasterKeyNotRegistered = errors.New(
	"master key is not registered in this process: set KMS_KEY_URI when DB_DRIVER is memory",
)

type kmsComponents struct {
	masterKeyRepository lazy[kmsService.MasterKeyRepository]
	keyManager          lazy[kmsService.KeyManager]
	kmsClient           lazy[kmsService.Client]
}

// MasterKeyRepository returns the lifecycle store of keeper master keys.
func (c *Container) MasterKeyRepository() (kmsService.MasterKeyRepository, error) {
	return c.masterKeyRepository.get(c.initMasterKeyRepository)
}

// KeyManager returns a lifecycle-only key management client. It works before any
// KMS_KEY_ID is configured, so it backs the administrative commands.
func (c *Container) KeyManager() (kmsService.KeyManager, error) {
	return c.keyManager.get(c.initKeyManager)
}

// KMSClient returns the full key management client under KMS_KEY_ID, wrapped with
// metrics when enabled. It fails with ErrKMSNotConfigured when no key is configured.
func (c *Container) KMSClient() (kmsService.Client, error) {
	return c.kmsClient.get(c.initKMSClient)
}

func (c *Container) initMasterKeyRepository() (kmsService.MasterKeyRepository, error) {
	if c.config.DBDriver == DriverMemory {
		return c.initMemoryMasterKeyRepository()
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for master key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return kmsRepository.NewPostgreSQLMasterKeyRepository(db), nil
	case "mysql":
		return kmsRepository.NewMySQLMasterKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initMemoryMasterKeyRepository registers KMS_KEY_URI under KMS_KEY_ID, because an
// in-memory repository starts empty in every process.
func (c *Container) initMemoryMasterKeyRepository() (kmsService.MasterKeyRepository, error) {
	repo := kmsRepository.NewMemoryMasterKeyRepository()
	if c.config.KMSProvider != kmsService.ProviderKeeper || c.config.KMSKeyURI == "" {
		return repo, nil
	}
	if c.config.KMSKeyID == "" {
		return nil, fmt.Errorf("KMS_KEY_URI is set without KMS_KEY_ID: %w", kmsDomain.ErrKMSNotConfigured)
	}

	key, err := kmsService.RegisterKeeperKey(
		context.Background(), repo, c.config.KMSKeyID, c.config.KMSKeyURI, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register master key: %w", err)
	}

	c.Logger().Info("master key registered in memory",
		slog.String("key_id", key.ID),
		slog.String("key_ref", c.config.KMSKeyID),
		slog.String("key_uri", key.RedactedKeyURI()),
	)
	return repo, nil
}

// requireRegisteredKey fails fast when the in-memory repository cannot resolve
// KMS_KEY_ID, instead of rejecting every encrypt later with a not found error.
func (c *Container) requireRegisteredKey(repo kmsService.MasterKeyRepository) error {
	if c.config.DBDriver != DriverMemory ||
		c.config.KMSProvider != kmsService.ProviderKeeper ||
		c.config.KMSKeyID == "" {
		return nil
	}

	ctx := context.Background()
	keyID := c.config.KMSKeyID
	if kmsDomain.IsAlias(keyID) {
		alias, err := repo.GetAlias(ctx, keyID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMasterKeyNotRegistered, err)
		}
		keyID = alias.KeyID
	}
	if _, err := repo.Get(ctx, keyID); err != nil {
		return fmt.Errorf("%w: %w", ErrMasterKeyNotRegistered, err)
	}
	return nil
}

func (c *Container) clientConfig() kmsService.ClientConfig {
	return kmsService.ClientConfig{
		Provider:         c.config.KMSProvider,
		KeyID:            c.config.KMSKeyID,
		Region:           c.config.KMSRegion,
		Endpoint:         c.config.KMSEndpoint,
		OperationTimeout: c.config.KMSOperationTimeout,
	}
}

// clientDeps resolves the repository and transaction manager only for the keeper
// provider; the aws provider needs neither and must not require a database.
func (c *Container) clientDeps() (kmsService.ClientDeps, error) {
	deps := kmsService.ClientDeps{Logger: c.Logger()}
	if c.config.KMSProvider == kmsService.ProviderAWS {
		return deps, nil
	}

	repo, err := c.MasterKeyRepository()
	if err != nil {
		return deps, err
	}
	txManager, err := c.TxManager()
	if err != nil {
		return deps, err
	}
	deps.Repository = repo
	deps.TxManager = txManager
	return deps, nil
}

func (c *Container) initKeyManager() (kmsService.KeyManager, error) {
	deps, err := c.clientDeps()
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies for key manager: %w", err)
	}
	return kmsService.NewKeyManager(context.Background(), c.clientConfig(), deps)
}

func (c *Container) initKMSClient() (kmsService.Client, error) {
	deps, err := c.clientDeps()
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies for kms client: %w", err)
	}

	if deps.Repository != nil {
		if err := c.requireRegisteredKey(deps.Repository); err != nil {
			return nil, err
		}
	}

	client, err := kmsService.NewClient(context.Background(), c.clientConfig(), deps)
	if err != nil {
		return nil, err
	}

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for kms client: %w", err)
		}
		return kmsService.NewClientWithMetrics(client, businessMetrics), nil
	}
	return client, nil
}
