package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// CategoryThresholds returns the regulatory hour requirement per category
// from reference data.
func (r *PostgresRepository) CategoryThresholds(ctx context.Context) (map[string]decimal.Decimal, error) {
	var categories []models.HourCategory
	if err := r.db.SelectContext(ctx, &categories, `SELECT code, required_hours FROM hour_categories`); err != nil {
		return nil, err
	}

	thresholds := make(map[string]decimal.Decimal, len(categories))
	for _, c := range categories {
		thresholds[c.Code] = c.RequiredHours
	}
	return thresholds, nil
}

func (r *PostgresRepository) ProgressByEmail(ctx context.Context, email string) (*models.ProgressRecord, error) {
	query := `
		SELECT
			a.id,
			a.first_name,
			a.last_name,
			a.email,
			a.start_date,
			a.expected_end,
			a.status,
			COALESCE(rt.hours_total, 0) AS rti_hours,
			COALESCE(ot.hours_total, 0) AS ojt_hours,
			COALESCE(rt.sessions_count, 0) AS rti_sessions,
			COALESCE(ot.sessions_count, 0) AS ojt_sessions,
			rt.last_calc AS rti_last_updated,
			ot.last_calc AS ojt_last_updated
		FROM apprentices a
		LEFT JOIN hours_totals rt ON rt.apprentice_id = a.id AND rt.category = 'RTI'
		LEFT JOIN hours_totals ot ON ot.apprentice_id = a.id AND ot.category = 'OJT'
		WHERE LOWER(a.email) = LOWER($1)
		LIMIT 1
	`

	var record models.ProgressRecord
	err := r.db.GetContext(ctx, &record, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Apprentice not found
		}
		return nil, err
	}

	return &record, nil
}

func (r *PostgresRepository) ExportRows(ctx context.Context, since time.Time) ([]models.ExportRow, error) {
	query := `
		SELECT
			a.first_name,
			a.last_name,
			a.email,
			a.sponsor_program_id AS raid,
			a.start_date,
			a.expected_end,
			a.status,
			COALESCE(rt.hours_total, 0) AS rti_hours,
			COALESCE(ot.hours_total, 0) AS ojt_hours,
			COALESCE(rt.sessions_count, 0) AS rti_sessions,
			COALESCE(ot.sessions_count, 0) AS ojt_sessions
		FROM apprentices a
		LEFT JOIN hours_totals rt ON rt.apprentice_id = a.id AND rt.category = 'RTI'
		LEFT JOIN hours_totals ot ON ot.apprentice_id = a.id AND ot.category = 'OJT'
		WHERE a.start_date IS NULL OR a.start_date >= $1
		ORDER BY a.last_name, a.first_name
	`

	var rows []models.ExportRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PostgresRepository) DashboardStats(ctx context.Context, rtiRequired, ojtRequired decimal.Decimal) (*models.DashboardStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_apprentices,
			COUNT(*) FILTER (WHERE a.status = 'active') AS active_apprentices,
			COUNT(*) FILTER (WHERE a.status = 'completed') AS completed_apprentices,
			COALESCE(SUM(rt.hours_total), 0) AS total_rti_hours,
			COALESCE(SUM(ot.hours_total), 0) AS total_ojt_hours,
			COUNT(*) FILTER (
				WHERE COALESCE(rt.hours_total, 0) >= $1 AND COALESCE(ot.hours_total, 0) >= $2
			) AS ready_for_completion,
			COUNT(*) FILTER (WHERE COALESCE(rt.hours_total, 0) < $1) AS rti_incomplete
		FROM apprentices a
		LEFT JOIN hours_totals rt ON rt.apprentice_id = a.id AND rt.category = 'RTI'
		LEFT JOIN hours_totals ot ON ot.apprentice_id = a.id AND ot.category = 'OJT'
		WHERE a.status IN ('active', 'completed')
	`

	var stats models.DashboardStats
	if err := r.db.GetContext(ctx, &stats, query, rtiRequired, ojtRequired); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *PostgresRepository) RecentImports(ctx context.Context, limit int) ([]models.ImportBatchSummary, error) {
	query := `
		SELECT id, rows_imported, minutes_added, imported_at
		FROM import_batches
		ORDER BY imported_at DESC
		LIMIT $1
	`

	var imports []models.ImportBatchSummary
	if err := r.db.SelectContext(ctx, &imports, query, limit); err != nil {
		return nil, err
	}
	return imports, nil
}

func (r *PostgresRepository) TimesheetExportRows(ctx context.Context, start, end time.Time) ([]models.TimesheetExportRow, error) {
	query := `
		SELECT
			ts.id,
			a.first_name,
			a.last_name,
			a.email AS apprentice_email,
			m.full_name AS mentor_name,
			ts.date,
			ts.hours,
			ts.description,
			ts.status,
			ts.signed_at
		FROM timesheet_entries ts
		JOIN apprentices a ON a.id = ts.apprentice_id
		LEFT JOIN mentors m ON m.id = ts.mentor_id
		WHERE ts.date >= $1 AND ts.date <= $2
		ORDER BY ts.date ASC, a.last_name ASC
	`

	var rows []models.TimesheetExportRow
	if err := r.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, err
	}
	return rows, nil
}
