package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// Completion status labels for the regulatory export.
const (
	LabelReady         = "Ready for Completion"
	LabelRTIIncomplete = "RTI Incomplete"
	LabelOJTIncomplete = "OJT Incomplete"
	LabelInProgress    = "In Progress"
)

// Export builds the regulatory export for apprentices starting on or after
// the given date, with the derived completion label per row.
func (s *DefaultService) Export(ctx context.Context, since time.Time) (*models.ExportResponse, error) {
	rows, err := s.repo.ExportRows(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("error getting export rows: %w", err)
	}

	thresholds, err := s.repo.CategoryThresholds(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting category thresholds: %w", err)
	}
	rtiRequired := thresholds[models.CategoryRTI]
	ojtRequired := thresholds[models.CategoryOJT]

	for i := range rows {
		rows[i].CompletionStatus = completionStatus(rows[i].RTIHours, rows[i].OJTHours, rtiRequired, ojtRequired)
	}

	return &models.ExportResponse{
		OK:          true,
		Since:       since.Format("2006-01-02"),
		Count:       len(rows),
		GeneratedAt: time.Now().UTC(),
		Rows:        rows,
	}, nil
}

// ExportCSV renders the regulatory export as delimited text.
func (s *DefaultService) ExportCSV(ctx context.Context, since time.Time) ([]byte, error) {
	export, err := s.Export(ctx, since)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"first_name", "last_name", "email", "raid", "start_date", "expected_end",
		"status", "rti_hours", "ojt_hours", "rti_sessions", "ojt_sessions", "completion_status",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, row := range export.Rows {
		record := []string{
			row.FirstName,
			row.LastName,
			row.Email,
			deref(row.RAID),
			formatDate(row.StartDate),
			formatDate(row.ExpectedEnd),
			row.Status,
			row.RTIHours.StringFixed(2),
			row.OJTHours.StringFixed(2),
			fmt.Sprintf("%d", row.RTISessions),
			fmt.Sprintf("%d", row.OJTSessions),
			row.CompletionStatus,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TimesheetExportCSV renders the flat timesheet export for a date range.
func (s *DefaultService) TimesheetExportCSV(ctx context.Context, start, end time.Time) ([]byte, error) {
	rows, err := s.repo.TimesheetExportRows(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("error getting timesheet export rows: %w", err)
	}

	header := []string{
		"timesheet_id", "apprentice_first", "apprentice_last", "apprentice_email",
		"mentor_name", "date", "hours", "description", "status", "signed_at",
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(header, ","))

	for _, row := range rows {
		signedAt := ""
		if row.SignedAt != nil {
			signedAt = row.SignedAt.UTC().Format(time.RFC3339)
		}
		fields := []string{
			csvSafe(row.TimesheetID),
			csvSafe(row.ApprenticeFirst),
			csvSafe(row.ApprenticeLast),
			csvSafe(row.ApprenticeEmail),
			csvSafe(deref(row.MentorName)),
			csvSafe(row.Date.Format("2006-01-02")),
			csvSafe(row.Hours.StringFixed(2)),
			csvSafe(row.Description),
			csvSafe(row.Status),
			csvSafe(signedAt),
		}
		lines = append(lines, strings.Join(fields, ","))
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// completionStatus derives the regulatory label from both category totals.
func completionStatus(rtiHours, ojtHours, rtiRequired, ojtRequired decimal.Decimal) string {
	switch {
	case rtiHours.GreaterThanOrEqual(rtiRequired) && ojtHours.GreaterThanOrEqual(ojtRequired):
		return LabelReady
	case rtiHours.LessThan(rtiRequired):
		return LabelRTIIncomplete
	case ojtHours.LessThan(ojtRequired):
		return LabelOJTIncomplete
	default:
		return LabelInProgress
	}
}

// csvSafe wraps a field in double quotes when it contains a comma, quote or
// newline, doubling internal quotes.
func csvSafe(value string) string {
	if strings.ContainsAny(value, "\",\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
