// Package store archives experiment runs in SQLite.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    model TEXT NOT NULL,

    -- protocol; NULL when unset
    period REAL,
    on_duration REAL,
    amin REAL,
    amax REAL,
    rates TEXT NOT NULL,  -- JSON array

    created_at TEXT NOT NULL,
    started_at TEXT,
    ended_at TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,

    -- summary; NULL until the run completes
    habituation_time REAL,
    habituation_steps INTEGER,
    recovery_time REAL,
    outcome TEXT,
    periods INTEGER,
    degraded_periods INTEGER,

    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS peaks (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    step INTEGER NOT NULL,
    level REAL,
    PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
`

// migrate creates the schema and records its version.
func migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	var version int
	err := db.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version < SchemaVersion {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}
