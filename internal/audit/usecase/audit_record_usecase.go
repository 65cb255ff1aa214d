package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
	auditService "github.com/allisson/fieldcrypt/internal/audit/service"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

type auditRecordUseCase struct {
	repo   AuditRecordRepository
	signer auditService.AuditSigner
	clock  quartz.Clock
}

// NewAuditRecordUseCase creates the audit trail. signer may be nil, in which case records
// are stored unsigned and VerifyBatch counts them as unsigned.
func NewAuditRecordUseCase(
	repo AuditRecordRepository,
	signer auditService.AuditSigner,
	clock quartz.Clock,
) AuditRecordUseCase {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &auditRecordUseCase{repo: repo, signer: signer, clock: clock}
}

func (a *auditRecordUseCase) Record(
	ctx context.Context,
	operation, entity, status string,
	duration time.Duration,
) error {
	record := &auditDomain.AuditRecord{
		ID:         uuid.Must(uuid.NewV7()),
		Operation:  operation,
		Entity:     entity,
		Status:     status,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  a.clock.Now().UTC().Truncate(time.Microsecond),
	}

	if a.signer != nil {
		signature, err := a.signer.Sign(record)
		if err != nil {
			return apperrors.Wrap(err, "failed to sign audit record")
		}
		record.Signature = signature
	}

	if err := a.repo.Create(ctx, record); err != nil {
		return apperrors.Wrap(err, "failed to create audit record")
	}
	return nil
}

func (a *auditRecordUseCase) VerifyBatch(
	ctx context.Context,
	start, end time.Time,
) (*auditDomain.VerificationReport, error) {
	records, err := a.repo.ListByTimeRange(ctx, start, end)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit records")
	}

	report := &auditDomain.VerificationReport{InvalidIDs: make([]uuid.UUID, 0)}
	for _, record := range records {
		report.TotalChecked++

		if !record.IsSigned() {
			report.UnsignedCount++
			continue
		}
		if a.signer == nil {
			return nil, auditDomain.ErrSigningKeyNotSet
		}

		err := a.signer.Verify(record)
		switch {
		case err == nil:
			report.ValidCount++
		case errors.Is(err, auditDomain.ErrSignatureInvalid):
			report.InvalidCount++
			report.InvalidIDs = append(report.InvalidIDs, record.ID)
		default:
			return nil, apperrors.Wrap(err, "failed to verify audit record")
		}
	}

	return report, nil
}

func (a *auditRecordUseCase) DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error) {
	if days < 0 {
		return 0, auditDomain.ErrInvalidRetention
	}

	olderThan := a.clock.Now().UTC().AddDate(0, 0, -days)

	count, err := a.repo.DeleteOlderThan(ctx, olderThan, dryRun)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit records")
	}
	return count, nil
}
