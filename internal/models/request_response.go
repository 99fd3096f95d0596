package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request models
type SignRequest struct {
	TimesheetID string `json:"timesheet_id" binding:"required"`
	Token       string `json:"token" binding:"required"`
	MentorEmail string `json:"mentor_email"`
}

// RowError records why a single import row was rejected
type RowError struct {
	Row   string `json:"row"` // subject identifier of the failed row, or its position
	Error string `json:"error"`
}

// Response models
type ImportResponse struct {
	OK           bool       `json:"ok"`
	BatchID      string     `json:"batch_id"`
	Processed    int        `json:"processed"`
	Imported     int        `json:"imported"`
	Failed       int        `json:"failed"`
	MinutesAdded int        `json:"minutes_added"`
	HoursAdded   float64    `json:"hours_added"`
	Errors       []RowError `json:"errors,omitempty"`
}

type ProgressResponse struct {
	ID                    string          `json:"id"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	Email                 string          `json:"email"`
	StartDate             *time.Time      `json:"start_date,omitempty"`
	ExpectedEnd           *time.Time      `json:"expected_end,omitempty"`
	Status                string          `json:"status"`
	RTIHours              decimal.Decimal `json:"rti_hours"`
	OJTHours              decimal.Decimal `json:"ojt_hours"`
	RTISessions           int             `json:"rti_sessions"`
	OJTSessions           int             `json:"ojt_sessions"`
	RTILastUpdated        *time.Time      `json:"rti_last_updated,omitempty"`
	OJTLastUpdated        *time.Time      `json:"ojt_last_updated,omitempty"`
	RTIProgressPercent    float64         `json:"rti_progress_percent"`
	OJTProgressPercent    float64         `json:"ojt_progress_percent"`
	RTIRemaining          decimal.Decimal `json:"rti_remaining"`
	OJTRemaining          decimal.Decimal `json:"ojt_remaining"`
	IsRTIComplete         bool            `json:"is_rti_complete"`
	IsOJTComplete         bool            `json:"is_ojt_complete"`
	IsReadyForCompletion  bool            `json:"is_ready_for_completion"`
}

// ExportRow is one apprentice line of the regulatory export
type ExportRow struct {
	FirstName        string          `db:"first_name" json:"first_name"`
	LastName         string          `db:"last_name" json:"last_name"`
	Email            string          `db:"email" json:"email"`
	RAID             *string         `db:"raid" json:"raid,omitempty"`
	StartDate        *time.Time      `db:"start_date" json:"start_date,omitempty"`
	ExpectedEnd      *time.Time      `db:"expected_end" json:"expected_end,omitempty"`
	Status           string          `db:"status" json:"status"`
	RTIHours         decimal.Decimal `db:"rti_hours" json:"rti_hours"`
	OJTHours         decimal.Decimal `db:"ojt_hours" json:"ojt_hours"`
	RTISessions      int             `db:"rti_sessions" json:"rti_sessions"`
	OJTSessions      int             `db:"ojt_sessions" json:"ojt_sessions"`
	CompletionStatus string          `db:"-" json:"completion_status"`
}

type ExportResponse struct {
	OK          bool        `json:"ok"`
	Since       string      `json:"since"`
	Count       int         `json:"count"`
	GeneratedAt time.Time   `json:"generated_at"`
	Rows        []ExportRow `json:"rows"`
}

// DashboardStats holds the aggregate counters for the admin dashboard
type DashboardStats struct {
	TotalApprentices     int             `db:"total_apprentices" json:"total_apprentices"`
	ActiveApprentices    int             `db:"active_apprentices" json:"active_apprentices"`
	CompletedApprentices int             `db:"completed_apprentices" json:"completed_apprentices"`
	TotalRTIHours        decimal.Decimal `db:"total_rti_hours" json:"total_rti_hours"`
	TotalOJTHours        decimal.Decimal `db:"total_ojt_hours" json:"total_ojt_hours"`
	ReadyForCompletion   int             `db:"ready_for_completion" json:"ready_for_completion"`
	RTIIncomplete        int             `db:"rti_incomplete" json:"rti_incomplete"`
}

// ImportBatchSummary is the recent-imports slice of the stats payload
type ImportBatchSummary struct {
	BatchID      string    `db:"id" json:"batch_id"`
	RowsImported int       `db:"rows_imported" json:"rows_imported"`
	MinutesAdded int       `db:"minutes_added" json:"minutes_added"`
	ImportedAt   time.Time `db:"imported_at" json:"imported_at"`
}

type StatsResponse struct {
	OK            bool                 `json:"ok"`
	Stats         DashboardStats       `json:"stats"`
	RecentImports []ImportBatchSummary `json:"recent_imports"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// TimesheetDetail is what the signing page sees after the token check passes
type TimesheetDetail struct {
	ID              string          `db:"id" json:"id"`
	Date            time.Time       `db:"date" json:"date"`
	Hours           decimal.Decimal `db:"hours" json:"hours"`
	Description     string          `db:"description" json:"description"`
	SkillsPracticed string          `db:"skills_practiced" json:"skills_practiced"`
	Status          string          `db:"status" json:"status"`
	ApprenticeName  string          `db:"apprentice_name" json:"apprentice_name"`
	ApprenticeEmail string          `db:"apprentice_email" json:"apprentice_email"`
}

type TimesheetResponse struct {
	OK        bool            `json:"ok"`
	Timesheet TimesheetDetail `json:"timesheet"`
}

type SignResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// TimesheetExportRow is one line of the flat timesheet export
type TimesheetExportRow struct {
	TimesheetID     string          `db:"id"`
	ApprenticeFirst string          `db:"first_name"`
	ApprenticeLast  string          `db:"last_name"`
	ApprenticeEmail string          `db:"apprentice_email"`
	MentorName      *string         `db:"mentor_name"`
	Date            time.Time       `db:"date"`
	Hours           decimal.Decimal `db:"hours"`
	Description     string          `db:"description"`
	Status          string          `db:"status"`
	SignedAt        *time.Time      `db:"signed_at"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
