package usecase

import (
	"context"
	"log/slog"
	"time"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
)

// AuditRecorder appends to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, operation, entity, status string, duration time.Duration) error
}

// engineWithAudit writes one audit record per encrypt, decrypt and rotate. The entity
// comes from envelopeDomain.WithEntity. A failed audit write is logged and does not
// fail the operation it describes.
type engineWithAudit struct {
	next     Engine
	recorder AuditRecorder
	logger   *slog.Logger
}

// NewEngineWithAudit wraps an Engine with audit recording.
func NewEngineWithAudit(engine Engine, recorder AuditRecorder, logger *slog.Logger) Engine {
	return &engineWithAudit{next: engine, recorder: recorder, logger: logger}
}

func (e *engineWithAudit) record(ctx context.Context, operation string, start time.Time, err error) {
	status := auditDomain.StatusSuccess
	if err != nil {
		status = auditDomain.StatusError
	}

	entity := envelopeDomain.EntityFromContext(ctx)
	if rerr := e.recorder.Record(ctx, operation, entity, status, time.Since(start)); rerr != nil {
		e.logger.ErrorContext(ctx, "failed to write audit record",
			slog.String("operation", operation),
			slog.String("entity", entity),
			slog.Any("error", rerr),
		)
	}
}

func (e *engineWithAudit) Encrypt(ctx context.Context, plaintext []byte) (*envelopeDomain.EncryptionResult, error) {
	start := time.Now()
	result, err := e.next.Encrypt(ctx, plaintext)
	e.record(ctx, auditDomain.OperationEncrypt, start, err)
	return result, err
}

func (e *engineWithAudit) Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) ([]byte, error) {
	start := time.Now()
	plaintext, err := e.next.Decrypt(ctx, result)
	e.record(ctx, auditDomain.OperationDecrypt, start, err)
	return plaintext, err
}

func (e *engineWithAudit) Rotate(
	ctx context.Context,
	result *envelopeDomain.EncryptionResult,
) (*envelopeDomain.EncryptionResult, error) {
	start := time.Now()
	rotated, err := e.next.Rotate(ctx, result)
	e.record(ctx, auditDomain.OperationRotate, start, err)
	return rotated, err
}

// Hash is not audited.
func (e *engineWithAudit) Hash(value string) (string, error) {
	return e.next.Hash(value)
}
