package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

// InitializeDatabase creates and initializes a SQLite database at dbPath.
// This function is idempotent and safe to call multiple times. The service
// goes through the singleton Initialize; tests use this directly.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=ON&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the
// current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// An empty database gets a fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies migrations from the current to the target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(_ *sql.DB, version int) error {
	switch version {
	case 1:
		return nil // Base schema, created fresh by createSchema
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// One row per completed pipeline run. Nested payload parts are
		// stored as JSON text, mirroring the response object.
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			image_url TEXT NOT NULL DEFAULT '',
			item_name TEXT NOT NULL,
			item_description TEXT NOT NULL DEFAULT '',
			condition TEXT NOT NULL DEFAULT 'unknown',
			estimated_price_range TEXT NOT NULL DEFAULT '{}',
			market_context TEXT NOT NULL DEFAULT '',
			best_platform TEXT NOT NULL DEFAULT '',
			platforms TEXT NOT NULL DEFAULT '[]',
			local_stores TEXT NOT NULL DEFAULT '[]',
			negotiation_strategy TEXT,
			condition_tips TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0,
			processing_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS negotiation_jobs (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL REFERENCES analyses(id),
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','in_progress','done')),
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS store_offers (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES negotiation_jobs(id),
			store_name TEXT NOT NULL,
			store_address TEXT NOT NULL DEFAULT '',
			store_phone TEXT NOT NULL DEFAULT '',
			store_specialty TEXT NOT NULL DEFAULT '',
			accepted INTEGER NOT NULL DEFAULT 0,
			agreed_price REAL,
			call_summary TEXT
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_jobs_analysis ON negotiation_jobs(analysis_id)",
		"CREATE INDEX IF NOT EXISTS idx_offers_job ON store_offers(job_id)",
	}
	for _, index := range indices {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return setSchemaVersion(db, CurrentSchemaVersion)
}

// GetSchemaVersion returns the database's schema version, 0 when the
// database is empty.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") || errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return int(version.Int64), nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}
