// Package repository persists audit records in PostgreSQL or MySQL.
package repository

import (
	"context"
	"database/sql"
	"time"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

// PostgreSQLAuditRecordRepository stores audit records with a native UUID id.
type PostgreSQLAuditRecordRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditRecordRepository creates a new PostgreSQL audit record repository.
func NewPostgreSQLAuditRecordRepository(db *sql.DB) *PostgreSQLAuditRecordRepository {
	return &PostgreSQLAuditRecordRepository{db: db}
}

// Create appends a record. A nil signature is stored as NULL.
func (p *PostgreSQLAuditRecordRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO audit_records (id, operation, entity, status, duration_ms, signature, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
		record.Operation,
		record.Entity,
		record.Status,
		record.DurationMs,
		record.Signature,
		record.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit record")
	}

	return nil
}

// ListByTimeRange returns records with start <= created_at < end, oldest first.
func (p *PostgreSQLAuditRecordRepository) ListByTimeRange(
	ctx context.Context,
	start, end time.Time,
) ([]*auditDomain.AuditRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, operation, entity, status, duration_ms, signature, created_at
			  FROM audit_records
			  WHERE created_at >= $1 AND created_at < $2
			  ORDER BY created_at ASC, id ASC`

	rows, err := querier.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit records")
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*auditDomain.AuditRecord, 0)
	for rows.Next() {
		var record auditDomain.AuditRecord
		err := rows.Scan(
			&record.ID,
			&record.Operation,
			&record.Entity,
			&record.Status,
			&record.DurationMs,
			&record.Signature,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit record")
		}
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit records")
	}

	return records, nil
}

// DeleteOlderThan removes records created before olderThan. With dryRun it only counts
// them.
func (p *PostgreSQLAuditRecordRepository) DeleteOlderThan(
	ctx context.Context,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records WHERE created_at < $1`, olderThan).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count audit records")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_records WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit records")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get affected rows count")
	}

	return count, nil
}
