// Package database handles database migrations.
package database

import (
	"fmt"
)

// migrate runs all database migrations.
func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := getAllMigrations()
	for _, m := range migrations {
		if m.version > currentVersion {
			if err := db.runMigration(m); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
		}
	}

	return nil
}

type migration struct {
	version int
	sql     string
}

func (db *DB) runMigration(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

func getAllMigrations() []migration {
	return []migration{
		{
			version: 1,
			sql:     migration001InitialSchema,
		},
	}
}

const migration001InitialSchema = `
-- Bookings table
-- Visit booking requests. Rows are never deleted; expired and rejected
-- bookings remain as an audit trail.
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,                    -- "bkg_" + nanoid(16)
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN (
        'pending', 'approved', 'rejected', 'expired'
    )),
    name TEXT,
    email TEXT,
    phone TEXT,
    purpose TEXT,
    notes TEXT,
    needs_meet_link INTEGER NOT NULL DEFAULT 0,
    is_urgent INTEGER NOT NULL DEFAULT 0,
    visitor_timezone TEXT NOT NULL,
    start_at_utc TEXT NOT NULL,             -- ISO8601 UTC
    end_at_utc TEXT NOT NULL,
    hold_event_id TEXT,                     -- provider event reference
    hold_status TEXT NOT NULL DEFAULT 'missing' CHECK (hold_status IN (
        'missing', 'created', 'confirmed', 'released', 'error'
    )),
    hold_expires_at TEXT NOT NULL,
    decided_at TEXT,
    decision_source TEXT CHECK (decision_source IN (
        'email_link', 'admin_panel', 'maintenance'
    )),
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);
CREATE INDEX IF NOT EXISTS idx_bookings_pending_hold
    ON bookings(hold_expires_at) WHERE status = 'pending';


-- Action tokens table
-- Single-use approve/reject bearer tokens; only the SHA-256 hash of the
-- bearer value is stored.
CREATE TABLE IF NOT EXISTS action_tokens (
    id TEXT PRIMARY KEY,                    -- "atk_" + nanoid(16)
    booking_id TEXT NOT NULL REFERENCES bookings(id),
    action TEXT NOT NULL CHECK (action IN ('approve', 'reject')),
    token_hash TEXT UNIQUE NOT NULL,
    expires_at TEXT NOT NULL,
    used_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_action_tokens_hash ON action_tokens(token_hash);
CREATE INDEX IF NOT EXISTS idx_action_tokens_booking ON action_tokens(booking_id);


-- Calendar connection
-- Single row (id='primary') holding the provider account binding. Tokens
-- are AES-256-GCM encrypted at rest.
CREATE TABLE IF NOT EXISTS calendar_connection (
    id TEXT PRIMARY KEY,
    account_email TEXT NOT NULL DEFAULT '',
    calendar_id TEXT NOT NULL DEFAULT 'primary',
    refresh_token_enc BLOB NOT NULL,
    access_token_enc BLOB,
    access_expires_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);


-- Audit log
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT DEFAULT (datetime('now')),
    event_type TEXT NOT NULL,
    booking_id TEXT,
    actor TEXT,
    details TEXT                            -- JSON
);

CREATE INDEX IF NOT EXISTS idx_audit_log_booking ON audit_log(booking_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);


-- Webhook failures
-- Failed operator notification deliveries kept for retry.
CREATE TABLE IF NOT EXISTS webhook_failures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    webhook_id TEXT NOT NULL,
    booking_id TEXT NOT NULL,
    event TEXT NOT NULL,
    payload TEXT NOT NULL,
    error TEXT,
    attempts INTEGER NOT NULL DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    resolved_at TEXT
);


-- Settings
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT DEFAULT (datetime('now'))
);
`
