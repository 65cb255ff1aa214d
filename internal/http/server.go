// Package http provides the HTTP server, its middleware and the health endpoints.
package http

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/fieldcrypt/internal/config"
	envelopeHTTP "github.com/allisson/fieldcrypt/internal/envelope/http"
	"github.com/allisson/fieldcrypt/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger

	skipDatabaseCheck bool
}

// NewServer creates a new HTTP server. A nil db keeps /ready reporting not ready unless
// DisableDatabaseCheck is called.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: newHTTPServer(host, port),
	}
}

// DisableDatabaseCheck makes /ready report the database as disabled. Used with the
// in-memory driver.
func (s *Server) DisableDatabaseCheck() {
	s.skipDatabaseCheck = true
}

// SetupRouter registers middleware and every route. It must be called before Start.
func (s *Server) SetupRouter(
	cfg *config.Config,
	envelopeHandler *envelopeHTTP.EnvelopeHandler,
	metricsProvider *metrics.Provider,
) error {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		httpMetrics, err := metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace)
		if err != nil {
			return err
		}
		router.Use(httpMetrics)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		rateLimit, err := RateLimitMiddleware(
			cfg.RateLimitRequestsPerSec,
			cfg.RateLimitBurst,
			DefaultRateLimitClients,
			s.logger,
		)
		if err != nil {
			return err
		}
		v1.Use(rateLimit)
	}

	envelope := v1.Group("/envelope")
	envelope.POST("/encrypt", envelopeHandler.EncryptHandler)
	envelope.POST("/decrypt", envelopeHandler.DecryptHandler)
	envelope.POST("/rotate", envelopeHandler.RotateHandler)
	envelope.POST("/hash", envelopeHandler.HashHandler)

	s.router = router
	return nil
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return errors.New("router is not configured: call SetupRouter first")
	}
	s.server.Handler = s.router
	return listenAndServe(ctx, s.server, s.logger, "http server")
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the database answers a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	database := "ok"
	switch {
	case s.skipDatabaseCheck:
		database = "disabled"
	case s.db == nil:
		database = "error"
	default:
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.String("component", "database"), slog.Any("error", err))
			database = "error"
		}
	}

	status, code := "ready", http.StatusOK
	if database == "error" {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"components": gin.H{
			"database": database,
		},
	})
}
