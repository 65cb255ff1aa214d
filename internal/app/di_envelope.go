package app

import (
	"context"
	"fmt"

	encoderDomain "github.com/allisson/fieldcrypt/internal/encoder/domain"
	encoderUseCase "github.com/allisson/fieldcrypt/internal/encoder/usecase"
	"github.com/allisson/fieldcrypt/internal/envelope/cache"
	envelopeHTTP "github.com/allisson/fieldcrypt/internal/envelope/http"
	envelopeService "github.com/allisson/fieldcrypt/internal/envelope/service"
	envelopeUseCase "github.com/allisson/fieldcrypt/internal/envelope/usecase"
	"github.com/allisson/fieldcrypt/internal/http"
)

type envelopeComponents struct {
	dataKeyCache    lazy[*cache.Cache]
	searchHasher    lazy[*envelopeService.HMACSearchHasher]
	engine          lazy[envelopeUseCase.Engine]
	envelopeHandler lazy[*envelopeHTTP.EnvelopeHandler]
	httpServer      lazy[*http.Server]
	metricsServer   lazy[*http.MetricsServer]
}

// DataKeyCache returns the running cache of unwrapped data keys. Shutdown stops its
// sweep and wipes it.
func (c *Container) DataKeyCache() (*cache.Cache, error) {
	return c.dataKeyCache.get(c.initDataKeyCache)
}

// SearchHasher returns the search hasher. It fails with ErrSearchSaltNotSet when
// ENCRYPTION_SEARCH_SALT is empty.
func (c *Container) SearchHasher() (*envelopeService.HMACSearchHasher, error) {
	return c.searchHasher.get(c.initSearchHasher)
}

// Engine returns the envelope engine with audit and metrics decorators as configured.
func (c *Container) Engine() (envelopeUseCase.Engine, error) {
	return c.engine.get(c.initEngine)
}

// APIKeyEncoder returns the encoder of api key envelopes.
func (c *Container) APIKeyEncoder() (encoderUseCase.Encoder[encoderDomain.APIKey], error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return encoderUseCase.NewAPIKeyEncoder(engine), nil
}

// OAuthTokenEncoder returns the encoder of oauth token envelopes.
func (c *Container) OAuthTokenEncoder() (encoderUseCase.Encoder[encoderDomain.OAuthToken], error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return encoderUseCase.NewOAuthTokenEncoder(engine), nil
}

// EmailEncoder returns the encoder of email addresses.
func (c *Container) EmailEncoder() (*encoderUseCase.EmailEncoder, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return encoderUseCase.NewEmailEncoder(engine), nil
}

// EnvelopeHandler returns the HTTP handler of the envelope operations.
func (c *Container) EnvelopeHandler() (*envelopeHTTP.EnvelopeHandler, error) {
	return c.envelopeHandler.get(c.initEnvelopeHandler)
}

// HTTPServer returns the API server with its router set up.
func (c *Container) HTTPServer() (*http.Server, error) {
	return c.httpServer.get(c.initHTTPServer)
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	return c.metricsServer.get(c.initMetricsServer)
}

func (c *Container) initDataKeyCache() (*cache.Cache, error) {
	cacheMetrics, err := c.CacheMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache metrics: %w", err)
	}

	dataKeyCache, err := cache.New(
		cache.WithTTL(c.config.DataKeyCacheTTL),
		cache.WithMaxEntries(c.config.DataKeyCacheMaxEntries),
		cache.WithSweepInterval(c.config.DataKeyCacheSweepInterval),
		cache.WithLogger(c.Logger()),
		cache.WithMetrics(cacheMetrics),
	)
	if err != nil {
		return nil, err
	}
	dataKeyCache.Start(context.Background())
	return dataKeyCache, nil
}

func (c *Container) initSearchHasher() (*envelopeService.HMACSearchHasher, error) {
	return envelopeService.NewHMACSearchHasher(c.config.SearchSalt)
}

func (c *Container) initEngine() (envelopeUseCase.Engine, error) {
	logger := c.Logger()

	client, err := c.KMSClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get kms client for engine: %w", err)
	}

	dataKeyCache, err := c.DataKeyCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get data key cache for engine: %w", err)
	}

	opts := []envelopeUseCase.Option{envelopeUseCase.WithDataKeyCache(dataKeyCache)}
	if c.config.DataKeyCacheDeduplicateUnwrap {
		opts = append(opts, envelopeUseCase.WithUnwrapDeduplication())
	}
	if c.config.SearchSalt != "" {
		hasher, err := c.SearchHasher()
		if err != nil {
			return nil, err
		}
		opts = append(opts, envelopeUseCase.WithSearchHasher(hasher))
	} else {
		logger.Warn("ENCRYPTION_SEARCH_SALT is empty, search hashing is disabled")
	}

	engine, err := envelopeUseCase.NewEngine(client, logger, opts...)
	if err != nil {
		return nil, err
	}

	if c.config.AuditEnabled {
		auditUseCase, err := c.AuditRecordUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get audit record use case for engine: %w", err)
		}
		engine = envelopeUseCase.NewEngineWithAudit(engine, auditUseCase, logger)
	}

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for engine: %w", err)
		}
		engine = envelopeUseCase.NewEngineWithMetrics(engine, businessMetrics)
	}

	return engine, nil
}

func (c *Container) initEnvelopeHandler() (*envelopeHTTP.EnvelopeHandler, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return envelopeHTTP.NewEnvelopeHandler(engine, c.Logger()), nil
}

func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	envelopeHandler, err := c.EnvelopeHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope handler for http server: %w", err)
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	var server *http.Server
	if c.config.DBDriver == DriverMemory {
		server = http.NewServer(nil, c.config.ServerHost, c.config.ServerPort, logger)
		server.DisableDatabaseCheck()
	} else {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for http server: %w", err)
		}
		server = http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
	}

	if err := server.SetupRouter(c.config, envelopeHandler, metricsProvider); err != nil {
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}
	return server, nil
}

func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, nil
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
