package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/quartz"

	"github.com/allisson/fieldcrypt/internal/database"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// DefaultOperationTimeout bounds a remote key service call when none is configured.
const DefaultOperationTimeout = 10 * time.Second

// Supported KMS providers.
const (
	ProviderAWS    = "aws"
	ProviderKeeper = "keeper"
)

// ClientConfig selects and configures the key management backend.
type ClientConfig struct {
	Provider         string
	KeyID            string
	Region           string
	Endpoint         string
	OperationTimeout time.Duration
}

// ClientDeps carries the collaborators of the backends. Repository and TxManager are
// required by the keeper provider. KMSAPI and KMSService default to the real
// implementations when nil.
type ClientDeps struct {
	Repository MasterKeyRepository
	TxManager  database.TxManager
	KMSService KMSService
	KMSAPI     KMSAPI
	Clock      quartz.Clock
	Logger     *slog.Logger
}

// NewKeyManager builds a lifecycle-only client. It works without a configured key.
func NewKeyManager(ctx context.Context, cfg ClientConfig, deps ClientDeps) (KeyManager, error) {
	return newClient(ctx, cfg, deps)
}

// NewClient builds the full client. It fails with ErrKMSNotConfigured when cfg.KeyID is
// empty, so a caller never holds a client that cannot generate data keys.
func NewClient(ctx context.Context, cfg ClientConfig, deps ClientDeps) (Client, error) {
	if strings.TrimSpace(cfg.KeyID) == "" {
		return nil, kmsDomain.ErrKMSNotConfigured
	}
	return newClient(ctx, cfg, deps)
}

func newClient(ctx context.Context, cfg ClientConfig, deps ClientDeps) (Client, error) {
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case ProviderAWS:
		api := deps.KMSAPI
		if api == nil {
			var err error
			api, err = NewAWSKMSAPI(ctx, cfg.Region, cfg.Endpoint)
			if err != nil {
				return nil, err
			}
		}
		return NewAWSClient(api, cfg.KeyID, logger, WithAWSOperationTimeout(timeout)), nil

	case ProviderKeeper, "":
		if deps.Repository == nil || deps.TxManager == nil {
			return nil, fmt.Errorf("keeper provider requires a master key repository and a transaction manager")
		}
		kmsService := deps.KMSService
		if kmsService == nil {
			kmsService = NewKMSService()
		}
		opts := []KeeperOption{WithKeeperOperationTimeout(timeout)}
		if deps.Clock != nil {
			opts = append(opts, WithKeeperClock(deps.Clock))
		}
		return NewKeeperClient(deps.Repository, deps.TxManager, kmsService, cfg.KeyID, logger, opts...), nil

	default:
		return nil, fmt.Errorf("%w: %q", kmsDomain.ErrUnsupportedProvider, cfg.Provider)
	}
}
