// Package sqlite persists cost records, analysis outputs, and budget alert
// state in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const costRecordsSchema = `
	CREATE TABLE IF NOT EXISTS cost_records (
		provider TEXT NOT NULL,
		account_id TEXT NOT NULL,
		service TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		amount REAL NOT NULL,
		usage_quantity REAL,
		usage_unit TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (provider, account_id, service, resource_id, date)
	);
`

const utilizationSignalsSchema = `
	CREATE TABLE IF NOT EXISTS utilization_signals (
		resource_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		date TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (resource_id, metric, date)
	);
`

const findingsSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		service TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		severity TEXT NOT NULL,
		evidence TEXT NOT NULL,
		estimated_monthly_savings REAL,
		status TEXT NOT NULL,
		detected_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_scope_status ON findings (scope, status);
`

const forecastPointsSchema = `
	CREATE TABLE IF NOT EXISTS forecast_points (
		scope TEXT NOT NULL,
		date TEXT NOT NULL,
		point_estimate REAL NOT NULL,
		lower_bound REAL NOT NULL,
		upper_bound REAL NOT NULL,
		model_confidence REAL NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (scope, date)
	);
`

const recommendationsSchema = `
	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		scope TEXT NOT NULL,
		description TEXT NOT NULL,
		estimated_monthly_savings REAL NOT NULL,
		confidence REAL NOT NULL,
		source_finding_ids TEXT NOT NULL,
		implementation_steps TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations (status);
`

const budgetAlertEventsSchema = `
	CREATE TABLE IF NOT EXISTS budget_alert_events (
		budget_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		threshold_pct REAL NOT NULL DEFAULT 0,
		period_key TEXT NOT NULL,
		actual_spend REAL NOT NULL,
		projected_spend REAL,
		triggered_at TIMESTAMP NOT NULL,
		PRIMARY KEY (budget_id, kind, threshold_pct, period_key)
	);
`

const budgetStateSchema = `
	CREATE TABLE IF NOT EXISTS budget_state (
		budget_id TEXT PRIMARY KEY,
		period_key TEXT NOT NULL,
		crossed_thresholds TEXT NOT NULL,
		projected_fired INTEGER NOT NULL DEFAULT 0
	);
`

var bootQueries = []string{
	costRecordsSchema,
	utilizationSignalsSchema,
	findingsSchema,
	forecastPointsSchema,
	recommendationsSchema,
	budgetAlertEventsSchema,
	budgetStateSchema,
}

type Settings struct {
	Path string
	// RetentionDays bounds how long raw cost records and stale findings are
	// kept. Zero disables cleanup.
	RetentionDays int
}

// NewDB opens (creating if needed) the database at settings.Path and applies
// the schema. WAL plus a busy timeout lets the web server and a scheduled
// analysis run share the file.
func NewDB(settings Settings) (*sql.DB, error) {
	if settings.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", settings.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	for _, q := range bootQueries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return db, nil
}

// Cleanup removes cost records, signals, and stale findings older than the
// retention window.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	cutoffDay := cutoff.Format("2006-01-02")

	queries := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM cost_records WHERE date < ?", []any{cutoffDay}},
		{"DELETE FROM utilization_signals WHERE date < ?", []any{cutoffDay}},
		{"DELETE FROM findings WHERE status = ? AND detected_at < ?", []any{"stale", cutoff}},
		{"DELETE FROM forecast_points WHERE date < ?", []any{cutoffDay}},
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q.query, q.args...); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	return nil
}
