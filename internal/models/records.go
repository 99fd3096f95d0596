package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProgressRecord is the raw per-apprentice progress row as read from the
// store, before the derived percentages are computed.
type ProgressRecord struct {
	ID             string          `db:"id"`
	FirstName      string          `db:"first_name"`
	LastName       string          `db:"last_name"`
	Email          string          `db:"email"`
	StartDate      *time.Time      `db:"start_date"`
	ExpectedEnd    *time.Time      `db:"expected_end"`
	Status         string          `db:"status"`
	RTIHours       decimal.Decimal `db:"rti_hours"`
	OJTHours       decimal.Decimal `db:"ojt_hours"`
	RTISessions    int             `db:"rti_sessions"`
	OJTSessions    int             `db:"ojt_sessions"`
	RTILastUpdated *time.Time      `db:"rti_last_updated"`
	OJTLastUpdated *time.Time      `db:"ojt_last_updated"`
}

// ApprovedTimesheet is what the signing transaction hands back for the
// post-commit notification.
type ApprovedTimesheet struct {
	TimesheetID     string          `db:"id"`
	ApprenticeID    string          `db:"apprentice_id"`
	ApprenticeEmail string          `db:"apprentice_email"`
	FirstName       string          `db:"first_name"`
	MentorName      *string         `db:"mentor_name"`
	Date            time.Time       `db:"date"`
	Hours           decimal.Decimal `db:"hours"`
	Description     string          `db:"description"`
}
