// Package usecase records and verifies the audit trail of envelope operations.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
)

// AuditRecordRepository persists audit records.
type AuditRecordRepository interface {
	Create(ctx context.Context, record *auditDomain.AuditRecord) error
	ListByTimeRange(ctx context.Context, start, end time.Time) ([]*auditDomain.AuditRecord, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time, dryRun bool) (int64, error)
}

// AuditRecordUseCase is the audit trail.
type AuditRecordUseCase interface {
	// Record appends one signed record.
	Record(ctx context.Context, operation, entity, status string, duration time.Duration) error

	// VerifyBatch checks the signature of every record in [start, end).
	VerifyBatch(ctx context.Context, start, end time.Time) (*auditDomain.VerificationReport, error)

	// DeleteOlderThan removes records older than days. With dryRun it only counts them.
	DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error)
}
