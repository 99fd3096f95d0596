package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// Sentinel errors for the signing workflow guard. Callers branch on these
// to render accurate outcomes instead of a generic failure.
var (
	ErrTimesheetNotFound = errors.New("timesheet not found")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrAlreadySigned     = errors.New("timesheet already signed")
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// Provider registry and intake
	ActiveProvider(ctx context.Context, name string) (*models.Provider, error)
	CreateApprentice(ctx context.Context, apprentice *models.Apprentice) error
	CreateMentor(ctx context.Context, mentor *models.Mentor) error
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	CreateTimesheet(ctx context.Context, entry *models.TimesheetEntry) error
	GetApprenticeByEmail(ctx context.Context, email string) (*models.Apprentice, error)

	// Session import and ledger recomputation
	InsertSession(ctx context.Context, session *models.TrainingSession) (bool, error)
	RecordBatch(ctx context.Context, batch *models.ImportBatch) error
	ApprenticesTouchedByBatch(ctx context.Context, providerID, batchID string) ([]string, error)
	RecalcTotals(ctx context.Context, apprenticeID, category string) error
	GetHoursTotal(ctx context.Context, apprenticeID, category string) (*models.HoursTotal, error)

	// Capability tokens
	InsertSignToken(ctx context.Context, timesheetID, secret string, expiresAt time.Time) (string, error)
	VerifySignToken(ctx context.Context, timesheetID, secret string, now time.Time) (bool, error)
	DeleteSignTokens(ctx context.Context, timesheetID string) (int64, error)
	PurgeExpiredSignTokens(ctx context.Context, now time.Time) (int64, error)

	// Signing workflow and maintenance
	TimesheetDetail(ctx context.Context, timesheetID string) (*models.TimesheetDetail, error)
	ApproveTimesheet(ctx context.Context, timesheetID, secret string, audit models.SignAudit) (*models.ApprovedTimesheet, error)
	MarkStalePendingEntries(ctx context.Context, olderThan time.Time) (int64, error)

	// Reporting views
	CategoryThresholds(ctx context.Context) (map[string]decimal.Decimal, error)
	ProgressByEmail(ctx context.Context, email string) (*models.ProgressRecord, error)
	ExportRows(ctx context.Context, since time.Time) ([]models.ExportRow, error)
	DashboardStats(ctx context.Context, rtiRequired, ojtRequired decimal.Decimal) (*models.DashboardStats, error)
	RecentImports(ctx context.Context, limit int) ([]models.ImportBatchSummary, error)
	TimesheetExportRows(ctx context.Context, start, end time.Time) ([]models.TimesheetExportRow, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *PostgresRepository) ActiveProvider(ctx context.Context, name string) (*models.Provider, error) {
	query := `SELECT * FROM providers WHERE name = $1 AND active = true LIMIT 1`

	var provider models.Provider
	err := r.db.GetContext(ctx, &provider, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Provider not registered
		}
		return nil, err
	}

	return &provider, nil
}

func (r *PostgresRepository) CreateApprentice(ctx context.Context, apprentice *models.Apprentice) error {
	query := `
		INSERT INTO apprentices (id, first_name, last_name, email, sponsor_program_id, start_date, expected_end, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if apprentice.ID == "" {
		apprentice.ID = uuid.New().String()
	}
	if apprentice.Status == "" {
		apprentice.Status = "active"
	}
	apprentice.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		apprentice.ID, apprentice.FirstName, apprentice.LastName, apprentice.Email,
		apprentice.SponsorProgramID, apprentice.StartDate, apprentice.ExpectedEnd,
		apprentice.Status, apprentice.CreatedAt)

	return err
}

func (r *PostgresRepository) CreateMentor(ctx context.Context, mentor *models.Mentor) error {
	if mentor.ID == "" {
		mentor.ID = uuid.New().String()
	}

	query := `INSERT INTO mentors (id, full_name, email) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, mentor.ID, mentor.FullName, mentor.Email)
	return err
}

func (r *PostgresRepository) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	query := `
		INSERT INTO enrollments (apprentice_id, provider_id, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id, provider_user_id) DO NOTHING
	`

	enrollment.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		enrollment.ApprenticeID, enrollment.ProviderID, enrollment.ProviderUserID, enrollment.CreatedAt)
	return err
}

func (r *PostgresRepository) CreateTimesheet(ctx context.Context, entry *models.TimesheetEntry) error {
	query := `
		INSERT INTO timesheet_entries (id, apprentice_id, mentor_id, date, hours, description, skills_practiced, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = models.StatusPending
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.ApprenticeID, entry.MentorID, entry.Date, entry.Hours,
		entry.Description, entry.SkillsPracticed, entry.Status, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) GetApprenticeByEmail(ctx context.Context, email string) (*models.Apprentice, error) {
	query := `SELECT * FROM apprentices WHERE LOWER(email) = LOWER($1)`

	var apprentice models.Apprentice
	err := r.db.GetContext(ctx, &apprentice, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Apprentice not found
		}
		return nil, err
	}

	return &apprentice, nil
}

// InsertSession inserts a training session keyed by its content hash.
// A duplicate is a no-op; the return value reports whether a new row landed.
func (r *PostgresRepository) InsertSession(ctx context.Context, session *models.TrainingSession) (bool, error) {
	query := `
		INSERT INTO training_sessions (
			id, provider_id, provider_user_id, lesson_id, lesson_title,
			started_at, ended_at, minutes, import_batch_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	session.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		session.ID, session.ProviderID, session.ProviderUserID,
		session.LessonID, session.LessonTitle,
		session.StartedAt, session.EndedAt, session.Minutes,
		session.ImportBatchID, session.CreatedAt)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresRepository) RecordBatch(ctx context.Context, batch *models.ImportBatch) error {
	query := `
		INSERT INTO import_batches (id, provider_id, rows_processed, rows_imported, rows_failed, minutes_added, errors, imported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	batch.ImportedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.ProviderID, batch.RowsProcessed, batch.RowsImported,
		batch.RowsFailed, batch.MinutesAdded, batch.Errors, batch.ImportedAt)
	return err
}

// ApprenticesTouchedByBatch resolves the distinct apprentices whose sessions
// were written by the given batch, through the provider enrollment mapping.
func (r *PostgresRepository) ApprenticesTouchedByBatch(ctx context.Context, providerID, batchID string) ([]string, error) {
	query := `
		SELECT DISTINCT e.apprentice_id
		FROM enrollments e
		WHERE e.provider_id = $1
		  AND LOWER(e.provider_user_id) IN (
			SELECT DISTINCT LOWER(provider_user_id)
			FROM training_sessions
			WHERE import_batch_id = $2
		  )
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, providerID, batchID); err != nil {
		return nil, err
	}
	return ids, nil
}

// RecalcTotals recomputes the hours ledger row for one apprentice and
// category from the underlying source rows and replaces it atomically.
// The apprentice row is locked for the duration so concurrent recomputes
// for the same apprentice serialize instead of caching a partial sum.
func (r *PostgresRepository) RecalcTotals(ctx context.Context, apprenticeID, category string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := recalcTotalsTx(ctx, tx, apprenticeID, category); err != nil {
		return err
	}

	return tx.Commit()
}

func recalcTotalsTx(ctx context.Context, tx *sqlx.Tx, apprenticeID, category string) error {
	// Serialize per apprentice.
	var locked string
	err := tx.GetContext(ctx, &locked, `SELECT id FROM apprentices WHERE id = $1 FOR UPDATE`, apprenticeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // No apprentice, nothing to recompute
		}
		return err
	}

	var sumQuery string
	switch category {
	case models.CategoryOJT:
		// Only approved entries count toward the OJT total.
		sumQuery = `
			SELECT COALESCE(ROUND(SUM(hours), 2), 0) AS hours, COUNT(id) AS sessions
			FROM timesheet_entries
			WHERE apprentice_id = $1 AND status = 'approved'
		`
	default:
		sumQuery = `
			SELECT COALESCE(ROUND(SUM(s.minutes)::numeric / 60, 2), 0) AS hours, COUNT(s.id) AS sessions
			FROM training_sessions s
			JOIN enrollments e
			  ON e.provider_id = s.provider_id
			 AND LOWER(e.provider_user_id) = LOWER(s.provider_user_id)
			WHERE e.apprentice_id = $1
		`
	}

	var totals struct {
		Hours    decimal.Decimal `db:"hours"`
		Sessions int             `db:"sessions"`
	}
	if err := tx.GetContext(ctx, &totals, sumQuery, apprenticeID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hours_totals (apprentice_id, category, hours_total, sessions_count, last_calc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (apprentice_id, category) DO UPDATE
		SET hours_total = EXCLUDED.hours_total,
		    sessions_count = EXCLUDED.sessions_count,
		    last_calc = EXCLUDED.last_calc
	`, apprenticeID, category, totals.Hours, totals.Sessions, time.Now().UTC())
	return err
}

func (r *PostgresRepository) GetHoursTotal(ctx context.Context, apprenticeID, category string) (*models.HoursTotal, error) {
	query := `SELECT * FROM hours_totals WHERE apprentice_id = $1 AND category = $2`

	var total models.HoursTotal
	err := r.db.GetContext(ctx, &total, query, apprenticeID, category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Never recomputed yet
		}
		return nil, err
	}

	return &total, nil
}
