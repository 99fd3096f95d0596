package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hour categories tracked by the ledger.
const (
	CategoryRTI = "RTI" // Related Technical Instruction (classroom/e-learning)
	CategoryOJT = "OJT" // On-the-Job Training (mentor-attested)
)

// Timesheet entry statuses. Approved is terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// SignaturePlaceholder is recorded when a mentor signs without supplying an email.
const SignaturePlaceholder = "Digital Signature"

// Provider represents an RTI e-learning provider in the provider registry
type Provider struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// HourCategory is reference data holding the regulatory hour threshold per category
type HourCategory struct {
	Code          string          `db:"code" json:"code"`
	RequiredHours decimal.Decimal `db:"required_hours" json:"requiredHours"`
}

// Apprentice represents an enrolled apprentice
type Apprentice struct {
	ID               string     `db:"id" json:"id"`
	FirstName        string     `db:"first_name" json:"firstName"`
	LastName         string     `db:"last_name" json:"lastName"`
	Email            string     `db:"email" json:"email"`
	SponsorProgramID *string    `db:"sponsor_program_id" json:"sponsorProgramId,omitempty"`
	StartDate        *time.Time `db:"start_date" json:"startDate,omitempty"`
	ExpectedEnd      *time.Time `db:"expected_end" json:"expectedEnd,omitempty"`
	Status           string     `db:"status" json:"status"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

// Mentor represents a workplace mentor who attests OJT entries
type Mentor struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"fullName"`
	Email    string `db:"email" json:"email"`
}

// Enrollment links an apprentice to their identity at a provider
type Enrollment struct {
	ApprenticeID   string    `db:"apprentice_id" json:"apprenticeId"`
	ProviderID     string    `db:"provider_id" json:"providerId"`
	ProviderUserID string    `db:"provider_user_id" json:"providerUserId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// TrainingSession is an immutable RTI session fact imported from a provider
// export. Its ID is a content hash of (subject, lesson, start, minutes) so
// re-importing the same export can never double-count.
type TrainingSession struct {
	ID             string     `db:"id" json:"id"`
	ProviderID     string     `db:"provider_id" json:"providerId"`
	ProviderUserID string     `db:"provider_user_id" json:"providerUserId"`
	LessonID       *string    `db:"lesson_id" json:"lessonId,omitempty"`
	LessonTitle    *string    `db:"lesson_title" json:"lessonTitle,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"startedAt,omitempty"`
	EndedAt        *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	Minutes        int        `db:"minutes" json:"minutes"`
	ImportBatchID  string     `db:"import_batch_id" json:"importBatchId"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// ImportBatch is the append-only summary of one import invocation
type ImportBatch struct {
	ID            string    `db:"id" json:"batchId"`
	ProviderID    string    `db:"provider_id" json:"providerId"`
	RowsProcessed int       `db:"rows_processed" json:"rowsProcessed"`
	RowsImported  int       `db:"rows_imported" json:"rowsImported"`
	RowsFailed    int       `db:"rows_failed" json:"rowsFailed"`
	MinutesAdded  int       `db:"minutes_added" json:"minutesAdded"`
	Errors        string    `db:"errors" json:"errors,omitempty"` // JSON-encoded row error list
	ImportedAt    time.Time `db:"imported_at" json:"importedAt"`
}

// HoursTotal is the derived ledger row for one apprentice and category.
// It is a cache over the session log and is always recomputed, never
// incrementally patched.
type HoursTotal struct {
	ApprenticeID  string          `db:"apprentice_id" json:"apprenticeId"`
	Category      string          `db:"category" json:"category"`
	HoursTotal    decimal.Decimal `db:"hours_total" json:"hoursTotal"`
	SessionsCount int             `db:"sessions_count" json:"sessionsCount"`
	LastCalc      time.Time       `db:"last_calc" json:"lastCalc"`
}

// TimesheetEntry is a mutable OJT workflow record. Hours do not count toward
// the OJT ledger until the entry is approved through the signing workflow.
type TimesheetEntry struct {
	ID              string          `db:"id" json:"id"`
	ApprenticeID    string          `db:"apprentice_id" json:"apprenticeId"`
	MentorID        *string         `db:"mentor_id" json:"mentorId,omitempty"`
	Date            time.Time       `db:"date" json:"date"`
	Hours           decimal.Decimal `db:"hours" json:"hours"`
	Description     string          `db:"description" json:"description"`
	SkillsPracticed string          `db:"skills_practiced" json:"skillsPracticed"`
	Status          string          `db:"status" json:"status"`
	Stale           bool            `db:"stale" json:"stale"`
	SignedAt        *time.Time      `db:"signed_at" json:"signedAt,omitempty"`
	MentorSignature *string         `db:"mentor_signature" json:"mentorSignature,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// SignToken is a single-use, time-limited capability that authorizes signing
// exactly one timesheet. The secret is stored only as a bcrypt hash.
type SignToken struct {
	ID          string    `db:"id" json:"id"`
	TimesheetID string    `db:"timesheet_id" json:"timesheetId"`
	SecretHash  string    `db:"secret_hash" json:"-"`
	ExpiresAt   time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// SignAudit is one append-only row per successful signing event
type SignAudit struct {
	ID          string    `db:"id" json:"id"`
	TimesheetID string    `db:"timesheet_id" json:"timesheetId"`
	MentorEmail *string   `db:"mentor_email" json:"mentorEmail,omitempty"`
	IP          string    `db:"ip" json:"ip"`
	UserAgent   string    `db:"user_agent" json:"userAgent"`
	SignedAt    time.Time `db:"signed_at" json:"signedAt"`
}
