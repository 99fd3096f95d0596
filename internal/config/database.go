package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	// Seed reference data (provider registry, category thresholds)
	if err := seedReferenceData(db); err != nil {
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS hour_categories (
			code VARCHAR(10) PRIMARY KEY,
			required_hours NUMERIC(10,2) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS apprentices (
			id VARCHAR(36) PRIMARY KEY,
			first_name VARCHAR(255) NOT NULL,
			last_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			sponsor_program_id VARCHAR(64),
			start_date DATE,
			expected_end DATE,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS mentors (
			id VARCHAR(36) PRIMARY KEY,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			apprentice_id VARCHAR(36) NOT NULL REFERENCES apprentices(id) ON DELETE CASCADE,
			provider_id VARCHAR(36) NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
			provider_user_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (provider_id, provider_user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS training_sessions (
			id VARCHAR(64) PRIMARY KEY,
			provider_id VARCHAR(36) NOT NULL REFERENCES providers(id),
			provider_user_id VARCHAR(255) NOT NULL,
			lesson_id VARCHAR(255),
			lesson_title TEXT,
			started_at TIMESTAMP,
			ended_at TIMESTAMP,
			minutes INTEGER NOT NULL CHECK (minutes > 0),
			import_batch_id VARCHAR(36) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS import_batches (
			id VARCHAR(36) PRIMARY KEY,
			provider_id VARCHAR(36) NOT NULL REFERENCES providers(id),
			rows_processed INTEGER NOT NULL,
			rows_imported INTEGER NOT NULL,
			rows_failed INTEGER NOT NULL,
			minutes_added INTEGER NOT NULL,
			errors TEXT NOT NULL DEFAULT '[]',
			imported_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS hours_totals (
			apprentice_id VARCHAR(36) NOT NULL REFERENCES apprentices(id) ON DELETE CASCADE,
			category VARCHAR(10) NOT NULL REFERENCES hour_categories(code),
			hours_total NUMERIC(10,2) NOT NULL DEFAULT 0,
			sessions_count INTEGER NOT NULL DEFAULT 0,
			last_calc TIMESTAMP NOT NULL,
			PRIMARY KEY (apprentice_id, category)
		)`,
		`CREATE TABLE IF NOT EXISTS timesheet_entries (
			id VARCHAR(36) PRIMARY KEY,
			apprentice_id VARCHAR(36) NOT NULL REFERENCES apprentices(id) ON DELETE CASCADE,
			mentor_id VARCHAR(36) REFERENCES mentors(id),
			date DATE NOT NULL,
			hours NUMERIC(10,2) NOT NULL CHECK (hours > 0),
			description TEXT NOT NULL DEFAULT '',
			skills_practiced TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			stale BOOLEAN NOT NULL DEFAULT false,
			signed_at TIMESTAMP,
			mentor_signature VARCHAR(255),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sign_tokens (
			id VARCHAR(36) PRIMARY KEY,
			timesheet_id VARCHAR(36) NOT NULL REFERENCES timesheet_entries(id) ON DELETE CASCADE,
			secret_hash VARCHAR(255) NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sign_audit (
			id VARCHAR(36) PRIMARY KEY,
			timesheet_id VARCHAR(36) NOT NULL REFERENCES timesheet_entries(id),
			mentor_email VARCHAR(255),
			ip VARCHAR(64) NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			signed_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_batch ON training_sessions(import_batch_id)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_subject ON training_sessions(provider_id, provider_user_id)",
		"CREATE INDEX IF NOT EXISTS idx_sign_tokens_timesheet ON sign_tokens(timesheet_id)",
		"CREATE INDEX IF NOT EXISTS idx_sign_tokens_expiry ON sign_tokens(expires_at)",
		"CREATE INDEX IF NOT EXISTS idx_timesheets_status_date ON timesheet_entries(status, date)",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}

// seedReferenceData inserts the provider registry entry and the regulatory
// hour thresholds. Thresholds live in reference data, not in code.
func seedReferenceData(db *sqlx.DB) error {
	_, err := db.Exec(`
		INSERT INTO providers (id, name, active)
		VALUES ('553b28a3-6c3e-4a25-9d43-0a0f83cbd5c4', 'Milady CIMA', true)
		ON CONFLICT (name) DO NOTHING
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO hour_categories (code, required_hours)
		VALUES ('RTI', 288), ('OJT', 1500)
		ON CONFLICT (code) DO NOTHING
	`)
	return err
}
