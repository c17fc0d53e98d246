// Package migrate creates the tables the pipeline reads and writes.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transcript_status TEXT NOT NULL DEFAULT 'pending',
		transcription_artifact_key TEXT,
		translation_status TEXT NOT NULL DEFAULT 'pending',
		translation_artifact_key TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS service_pricing (
		id BIGSERIAL PRIMARY KEY,
		organization_id TEXT,
		service TEXT NOT NULL,
		provider TEXT,
		price_per_token DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_per_minute DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_pricing_lookup ON service_pricing (service, organization_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS service_usage (
		id BIGSERIAL PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		service TEXT NOT NULL,
		provider TEXT,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		audio_duration_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
		bytes BIGINT NOT NULL DEFAULT 0,
		cost NUMERIC(12, 2) NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		request_metadata TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_usage_org_created ON service_usage (organization_id, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transcript_status TEXT NOT NULL DEFAULT 'pending',
		transcription_artifact_key TEXT,
		translation_status TEXT NOT NULL DEFAULT 'pending',
		translation_artifact_key TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS service_pricing (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT,
		service TEXT NOT NULL,
		provider TEXT,
		price_per_token REAL NOT NULL DEFAULT 0,
		price_per_minute REAL NOT NULL DEFAULT 0,
		unit TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS service_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		service TEXT NOT NULL,
		provider TEXT,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		audio_duration_minutes REAL NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		request_metadata TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_usage_org_created ON service_usage (organization_id, created_at)`,
}

// Statements returns the schema for driver.
func Statements(driver string) ([]string, error) {
	switch driver {
	case "postgres":
		return postgresSchema, nil
	case "sqlite3":
		return sqliteSchema, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Apply creates any missing tables inside one transaction.
func Apply(ctx context.Context, db *sql.DB, driver string) error {
	statements, err := Statements(driver)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
