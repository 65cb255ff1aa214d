package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
	auditUseCase "github.com/allisson/fieldcrypt/internal/audit/usecase"
)

// RunVerifyAuditRecords checks the HMAC signature of every audit record in [start, end).
// It fails when at least one signature does not match; unsigned records are reported but
// do not fail the run.
func RunVerifyAuditRecords(
	ctx context.Context,
	auditRecordUseCase auditUseCase.AuditRecordUseCase,
	logger *slog.Logger,
	writer io.Writer,
	startDate, endDate string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	start, err := parseDate(startDate)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := parseDate(endDate)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("end date must be after start date")
	}

	logger.Info("verifying audit records", slog.Time("start_date", start), slog.Time("end_date", end))

	report, err := auditRecordUseCase.VerifyBatch(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to verify audit records: %w", err)
	}

	if format == FormatJSON {
		if err := writeJSON(writer, verifyOutput(report)); err != nil {
			return err
		}
	} else {
		outputVerifyText(writer, report, start, end)
	}

	logger.Info("verification completed",
		slog.Int64("total_checked", report.TotalChecked),
		slog.Int64("valid", report.ValidCount),
		slog.Int64("invalid", report.InvalidCount),
		slog.Int64("unsigned", report.UnsignedCount),
	)

	if !report.Passed() {
		return fmt.Errorf("integrity check failed: %d invalid signature(s)", report.InvalidCount)
	}
	return nil
}

// parseDate accepts "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD" in UTC.
func parseDate(dateStr string) (time.Time, error) {
	if t, err := time.Parse(time.DateTime, dateStr); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"invalid date format (expected YYYY-MM-DD or YYYY-MM-DD HH:MM:SS): %s",
			dateStr,
		)
	}
	return t, nil
}

func outputVerifyText(writer io.Writer, report *auditDomain.VerificationReport, start, end time.Time) {
	_, _ = fmt.Fprintf(writer, "Audit Record Integrity Verification\n")
	_, _ = fmt.Fprintf(writer, "===================================\n\n")
	_, _ = fmt.Fprintf(writer, "Time Range: %s to %s\n\n", start.Format(time.DateTime), end.Format(time.DateTime))
	_, _ = fmt.Fprintf(writer, "Total Checked:  %d\n", report.TotalChecked)
	_, _ = fmt.Fprintf(writer, "Unsigned:       %d\n", report.UnsignedCount)
	_, _ = fmt.Fprintf(writer, "Valid:          %d\n", report.ValidCount)
	_, _ = fmt.Fprintf(writer, "Invalid:        %d\n\n", report.InvalidCount)

	switch {
	case report.InvalidCount > 0:
		_, _ = fmt.Fprintf(writer, "WARNING: %d record(s) failed integrity check!\n\n", report.InvalidCount)
		_, _ = fmt.Fprintf(writer, "Invalid Record IDs:\n")
		for _, id := range report.InvalidIDs {
			_, _ = fmt.Fprintf(writer, "  - %s\n", id)
		}
		_, _ = fmt.Fprintf(writer, "\nStatus: FAILED\n")
	case report.TotalChecked == 0:
		_, _ = fmt.Fprintf(writer, "Status: No records found in specified time range\n")
	default:
		_, _ = fmt.Fprintf(writer, "Status: PASSED\n")
	}
}

func verifyOutput(report *auditDomain.VerificationReport) map[string]any {
	invalidIDs := make([]string, 0, len(report.InvalidIDs))
	for _, id := range report.InvalidIDs {
		invalidIDs = append(invalidIDs, id.String())
	}
	return map[string]any{
		"total_checked":  report.TotalChecked,
		"unsigned_count": report.UnsignedCount,
		"valid_count":    report.ValidCount,
		"invalid_count":  report.InvalidCount,
		"invalid_ids":    invalidIDs,
		"passed":         report.Passed(),
	}
}

// RunCleanAuditRecords deletes audit records older than days. With dryRun it only counts
// them.
func RunCleanAuditRecords(
	ctx context.Context,
	auditRecordUseCase auditUseCase.AuditRecordUseCase,
	logger *slog.Logger,
	writer io.Writer,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("cleaning audit records", slog.Int("days", days), slog.Bool("dry_run", dryRun))

	count, err := auditRecordUseCase.DeleteOlderThan(ctx, days, dryRun)
	if err != nil {
		return fmt.Errorf("failed to delete audit records: %w", err)
	}

	if format == FormatJSON {
		if err := writeJSON(writer, map[string]any{"count": count, "days": days, "dry_run": dryRun}); err != nil {
			return err
		}
	} else if dryRun {
		_, _ = fmt.Fprintf(writer, "Dry-run mode: Would delete %d audit record(s) older than %d day(s)\n", count, days)
	} else {
		_, _ = fmt.Fprintf(writer, "Successfully deleted %d audit record(s) older than %d day(s)\n", count, days)
	}

	logger.Info("cleanup completed", slog.Int64("count", count), slog.Bool("dry_run", dryRun))
	return nil
}
