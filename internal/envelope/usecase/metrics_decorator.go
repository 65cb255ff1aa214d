package usecase

import (
	"context"
	"time"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	"github.com/allisson/fieldcrypt/internal/metrics"
)

// engineWithMetrics decorates Engine with metrics instrumentation.
type engineWithMetrics struct {
	next    Engine
	metrics metrics.BusinessMetrics
}

// NewEngineWithMetrics wraps an Engine with metrics recording.
func NewEngineWithMetrics(engine Engine, m metrics.BusinessMetrics) Engine {
	return &engineWithMetrics{
		next:    engine,
		metrics: m,
	}
}

// Encrypt records metrics for encryption operations.
func (e *engineWithMetrics) Encrypt(ctx context.Context, plaintext []byte) (*envelopeDomain.EncryptionResult, error) {
	start := time.Now()
	result, err := e.next.Encrypt(ctx, plaintext)

	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(ctx, "envelope", "encrypt", status)
	e.metrics.RecordDuration(ctx, "envelope", "encrypt", time.Since(start), status)

	return result, err
}

// Decrypt records metrics for decryption operations.
func (e *engineWithMetrics) Decrypt(
	ctx context.Context,
	result *envelopeDomain.EncryptionResult,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := e.next.Decrypt(ctx, result)

	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(ctx, "envelope", "decrypt", status)
	e.metrics.RecordDuration(ctx, "envelope", "decrypt", time.Since(start), status)

	return plaintext, err
}

// Rotate records metrics for rotation operations.
func (e *engineWithMetrics) Rotate(
	ctx context.Context,
	result *envelopeDomain.EncryptionResult,
) (*envelopeDomain.EncryptionResult, error) {
	start := time.Now()
	rotated, err := e.next.Rotate(ctx, result)

	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(ctx, "envelope", "rotate", status)
	e.metrics.RecordDuration(ctx, "envelope", "rotate", time.Since(start), status)

	return rotated, err
}

// Hash records the hash count only; it has no context and takes microseconds.
func (e *engineWithMetrics) Hash(value string) (string, error) {
	hash, err := e.next.Hash(value)

	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(context.Background(), "envelope", "hash", status)

	return hash, err
}
