package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
	auditService "github.com/allisson/fieldcrypt/internal/audit/service"
)

type mockAuditRecordRepository struct {
	mock.Mock
}

func (m *mockAuditRecordRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockAuditRecordRepository) ListByTimeRange(
	ctx context.Context,
	start, end time.Time,
) ([]*auditDomain.AuditRecord, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.AuditRecord), args.Error(1)
}

func (m *mockAuditRecordRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time, dryRun bool) (int64, error) {
	args := m.Called(ctx, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestSigner(t *testing.T) auditService.AuditSigner {
	t.Helper()
	signer, err := auditService.NewAuditSigner([]byte("pepper"))
	require.NoError(t, err)
	return signer
}

func newTestClock(t *testing.T) *quartz.Mock {
	clock := quartz.NewMock(t)
	clock.Set(testNow)
	return clock
}

func TestAuditRecordUseCase_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("Signed", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		signer := newTestSigner(t)
		uc := NewAuditRecordUseCase(repo, signer, newTestClock(t))

		var stored *auditDomain.AuditRecord
		repo.On("Create", ctx, mock.AnythingOfType("*domain.AuditRecord")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*auditDomain.AuditRecord) }).
			Return(nil)

		err := uc.Record(ctx, auditDomain.OperationEncrypt, "users", auditDomain.StatusSuccess, 1500*time.Microsecond)
		require.NoError(t, err)

		require.NotNil(t, stored)
		assert.Equal(t, uuid.Version(7), stored.ID.Version())
		assert.Equal(t, "encrypt", stored.Operation)
		assert.Equal(t, "users", stored.Entity)
		assert.Equal(t, "success", stored.Status)
		assert.Equal(t, int64(1), stored.DurationMs)
		assert.Equal(t, testNow, stored.CreatedAt)
		assert.True(t, stored.IsSigned())
		assert.NoError(t, signer.Verify(stored))
		repo.AssertExpectations(t)
	})

	t.Run("Unsigned", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		uc := NewAuditRecordUseCase(repo, nil, newTestClock(t))

		repo.On("Create", ctx, mock.MatchedBy(func(r *auditDomain.AuditRecord) bool {
			return !r.IsSigned()
		})).Return(nil)

		require.NoError(t, uc.Record(ctx, auditDomain.OperationDecrypt, "", auditDomain.StatusError, 0))
		repo.AssertExpectations(t)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		uc := NewAuditRecordUseCase(repo, nil, newTestClock(t))
		repo.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

		err := uc.Record(ctx, auditDomain.OperationRotate, "users", auditDomain.StatusSuccess, 0)
		assert.ErrorContains(t, err, "failed to create audit record")
	})
}

func TestAuditRecordUseCase_VerifyBatch(t *testing.T) {
	ctx := context.Background()
	start := testNow.Add(-time.Hour)
	end := testNow

	signed := func(t *testing.T, signer auditService.AuditSigner) *auditDomain.AuditRecord {
		record := &auditDomain.AuditRecord{
			ID:        uuid.Must(uuid.NewV7()),
			Operation: auditDomain.OperationDecrypt,
			Entity:    "users",
			Status:    auditDomain.StatusSuccess,
			CreatedAt: testNow.Add(-time.Minute),
		}
		sig, err := signer.Sign(record)
		require.NoError(t, err)
		record.Signature = sig
		return record
	}

	t.Run("Mixed", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		signer := newTestSigner(t)
		uc := NewAuditRecordUseCase(repo, signer, newTestClock(t))

		valid := signed(t, signer)
		tampered := signed(t, signer)
		tampered.Entity = "accounts"
		unsigned := &auditDomain.AuditRecord{ID: uuid.Must(uuid.NewV7())}

		repo.On("ListByTimeRange", ctx, start, end).
			Return([]*auditDomain.AuditRecord{valid, tampered, unsigned}, nil)

		report, err := uc.VerifyBatch(ctx, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(3), report.TotalChecked)
		assert.Equal(t, int64(1), report.ValidCount)
		assert.Equal(t, int64(1), report.InvalidCount)
		assert.Equal(t, int64(1), report.UnsignedCount)
		assert.Equal(t, []uuid.UUID{tampered.ID}, report.InvalidIDs)
		assert.False(t, report.Passed())
	})

	t.Run("SignedRecordsWithoutSigner", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		uc := NewAuditRecordUseCase(repo, nil, newTestClock(t))

		repo.On("ListByTimeRange", ctx, start, end).
			Return([]*auditDomain.AuditRecord{signed(t, newTestSigner(t))}, nil)

		_, err := uc.VerifyBatch(ctx, start, end)
		assert.ErrorIs(t, err, auditDomain.ErrSigningKeyNotSet)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		uc := NewAuditRecordUseCase(repo, newTestSigner(t), newTestClock(t))
		repo.On("ListByTimeRange", ctx, start, end).Return(nil, errors.New("db down"))

		_, err := uc.VerifyBatch(ctx, start, end)
		assert.ErrorContains(t, err, "failed to list audit records")
	})
}

func TestAuditRecordUseCase_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		uc := NewAuditRecordUseCase(repo, nil, newTestClock(t))
		repo.On("DeleteOlderThan", ctx, testNow.AddDate(0, 0, -90), true).Return(int64(12), nil)

		count, err := uc.DeleteOlderThan(ctx, 90, true)
		require.NoError(t, err)
		assert.Equal(t, int64(12), count)
		repo.AssertExpectations(t)
	})

	t.Run("NegativeDays", func(t *testing.T) {
		uc := NewAuditRecordUseCase(&mockAuditRecordRepository{}, nil, newTestClock(t))

		_, err := uc.DeleteOlderThan(ctx, -1, false)
		assert.ErrorIs(t, err, auditDomain.ErrInvalidRetention)
	})
}
