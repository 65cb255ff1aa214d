// Package mocks provides mock implementations of the audit use case for testing.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
)

// MockAuditRecordUseCase is a mock implementation of usecase.AuditRecordUseCase.
type MockAuditRecordUseCase struct {
	mock.Mock
}

// Record mocks the Record method.
func (m *MockAuditRecordUseCase) Record(
	ctx context.Context,
	operation, entity, status string,
	duration time.Duration,
) error {
	args := m.Called(ctx, operation, entity, status, duration)
	return args.Error(0)
}

// VerifyBatch mocks the VerifyBatch method.
func (m *MockAuditRecordUseCase) VerifyBatch(
	ctx context.Context,
	start, end time.Time,
) (*auditDomain.VerificationReport, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.VerificationReport), args.Error(1)
}

// DeleteOlderThan mocks the DeleteOlderThan method.
func (m *MockAuditRecordUseCase) DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error) {
	args := m.Called(ctx, days, dryRun)
	return args.Get(0).(int64), args.Error(1)
}
