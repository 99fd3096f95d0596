package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// InsertSignToken stores a new capability token for a timesheet. The secret
// itself is never persisted, only its bcrypt hash.
func (r *PostgresRepository) InsertSignToken(ctx context.Context, timesheetID, secret string, expiresAt time.Time) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	query := `
		INSERT INTO sign_tokens (id, timesheet_id, secret_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.ExecContext(ctx, query, id, timesheetID, string(hash), expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// VerifySignToken reports whether the presented secret matches any live
// token for the timesheet. Absence, mismatch and expiry are all a plain
// false, never an error.
func (r *PostgresRepository) VerifySignToken(ctx context.Context, timesheetID, secret string, now time.Time) (bool, error) {
	var tokens []models.SignToken
	query := `SELECT * FROM sign_tokens WHERE timesheet_id = $1 AND expires_at > $2`
	if err := r.db.SelectContext(ctx, &tokens, query, timesheetID, now.UTC()); err != nil {
		return false, err
	}
	return matchesAny(tokens, secret), nil
}

func matchesAny(tokens []models.SignToken, secret string) bool {
	for _, token := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)) == nil {
			return true
		}
	}
	return false
}

// DeleteSignTokens burns every token for a timesheet.
func (r *PostgresRepository) DeleteSignTokens(ctx context.Context, timesheetID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sign_tokens WHERE timesheet_id = $1`, timesheetID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpiredSignTokens deletes all tokens past expiry, used or not.
func (r *PostgresRepository) PurgeExpiredSignTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sign_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkStalePendingEntries flags pending timesheets older than the cutoff
// for operator attention. Marking only, no remediation.
func (r *PostgresRepository) MarkStalePendingEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE timesheet_entries
		SET stale = true
		WHERE status = 'pending' AND stale = false AND created_at < $1
	`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TimesheetDetail loads the signing-page view of a timesheet.
// Returns nil when the timesheet does not exist.
func (r *PostgresRepository) TimesheetDetail(ctx context.Context, timesheetID string) (*models.TimesheetDetail, error) {
	query := `
		SELECT
			ts.id,
			ts.date,
			ts.hours,
			ts.description,
			ts.skills_practiced,
			ts.status,
			a.first_name || ' ' || a.last_name AS apprentice_name,
			a.email AS apprentice_email
		FROM timesheet_entries ts
		JOIN apprentices a ON a.id = ts.apprentice_id
		WHERE ts.id = $1
	`

	var detail models.TimesheetDetail
	err := r.db.GetContext(ctx, &detail, query, timesheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &detail, nil
}

// ApproveTimesheet executes the pending -> approved transition as a single
// transaction: guard (exists, not yet approved, live token), then the
// status update, audit append, token burn and OJT ledger recompute. Two
// concurrent attempts against the same timesheet race safely because the
// entry row is locked first: exactly one commits, the other observes
// ErrAlreadySigned once the winner's status update is visible.
func (r *PostgresRepository) ApproveTimesheet(ctx context.Context, timesheetID, secret string, audit models.SignAudit) (*models.ApprovedTimesheet, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var entry models.TimesheetEntry
	err = tx.GetContext(ctx, &entry, `SELECT * FROM timesheet_entries WHERE id = $1 FOR UPDATE`, timesheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimesheetNotFound
		}
		return nil, err
	}

	// Approved is terminal. Checked before the token so a replay after the
	// winning sign burned the tokens reports conflict, not forbidden.
	if entry.Status == models.StatusApproved {
		return nil, ErrAlreadySigned
	}

	now := time.Now().UTC()
	valid, err := verifyTokenTx(ctx, tx, timesheetID, secret, now)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidToken
	}

	signature := models.SignaturePlaceholder
	if audit.MentorEmail != nil && *audit.MentorEmail != "" {
		signature = *audit.MentorEmail
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE timesheet_entries
		SET status = 'approved', signed_at = $2, mentor_signature = $3
		WHERE id = $1
	`, timesheetID, now, signature)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sign_audit (id, timesheet_id, mentor_email, ip, user_agent, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), timesheetID, audit.MentorEmail, audit.IP, audit.UserAgent, now)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM sign_tokens WHERE timesheet_id = $1`, timesheetID); err != nil {
		return nil, err
	}

	if err = recalcTotalsTx(ctx, tx, entry.ApprenticeID, models.CategoryOJT); err != nil {
		return nil, err
	}

	var approved models.ApprovedTimesheet
	err = tx.GetContext(ctx, &approved, `
		SELECT
			ts.id,
			ts.apprentice_id,
			a.email AS apprentice_email,
			a.first_name,
			m.full_name AS mentor_name,
			ts.date,
			ts.hours,
			ts.description
		FROM timesheet_entries ts
		JOIN apprentices a ON a.id = ts.apprentice_id
		LEFT JOIN mentors m ON m.id = ts.mentor_id
		WHERE ts.id = $1
	`, timesheetID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &approved, nil
}

// verifyTokenTx locks the token rows for the timesheet and compares the
// presented secret inside the signing transaction, so a concurrent burn
// cannot validate the same token twice.
func verifyTokenTx(ctx context.Context, tx *sqlx.Tx, timesheetID, secret string, now time.Time) (bool, error) {
	var tokens []models.SignToken
	query := `SELECT * FROM sign_tokens WHERE timesheet_id = $1 AND expires_at > $2 FOR UPDATE`
	if err := tx.SelectContext(ctx, &tokens, query, timesheetID, now); err != nil {
		return false, err
	}
	return matchesAny(tokens, secret), nil
}
