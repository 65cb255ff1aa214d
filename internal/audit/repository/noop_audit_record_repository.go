package repository

import (
	"context"
	"time"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
)

// NoopAuditRecordRepository discards records. The memory database driver uses it.
type NoopAuditRecordRepository struct{}

// NewNoopAuditRecordRepository creates a repository that stores nothing.
func NewNoopAuditRecordRepository() *NoopAuditRecordRepository {
	return &NoopAuditRecordRepository{}
}

func (NoopAuditRecordRepository) Create(context.Context, *auditDomain.AuditRecord) error {
	return nil
}

func (NoopAuditRecordRepository) ListByTimeRange(
	context.Context,
	time.Time,
	time.Time,
) ([]*auditDomain.AuditRecord, error) {
	return []*auditDomain.AuditRecord{}, nil
}

func (NoopAuditRecordRepository) DeleteOlderThan(context.Context, time.Time, bool) (int64, error) {
	return 0, nil
}
