// Package engine provides audit logging functionality.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/util"
)

// AuditLogger records booking lifecycle events. Writes are best-effort; an
// audit failure never blocks a booking transition.
type AuditLogger struct {
	db *database.DB
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(db *database.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

// Log records an audit event.
func (a *AuditLogger) Log(ctx context.Context, eventType, bookingID, actor string, details map[string]interface{}) {
	var detailsJSON []byte
	if details != nil {
		detailsJSON, _ = json.Marshal(details)
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, booking_id, actor, details)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)
	`, eventType, bookingID, actor, string(detailsJSON))

	if err != nil {
		util.Error("Failed to write audit log", "error", err, "event_type", eventType)
	}
}

// GetRecent retrieves recent audit entries.
func (a *AuditLogger) GetRecent(ctx context.Context, limit int) ([]database.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, booking_id, actor, details
		FROM audit_log
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// GetByBookingID retrieves audit entries for one booking, oldest first.
func (a *AuditLogger) GetByBookingID(ctx context.Context, bookingID string) ([]database.AuditLogEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, booking_id, actor, details
		FROM audit_log
		WHERE booking_id = ?
		ORDER BY timestamp ASC, id ASC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// Count returns the total number of audit entries.
func (a *AuditLogger) Count(ctx context.Context) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count)
	return count, err
}

// DeleteOlderThan removes audit entries older than the given number of days.
func (a *AuditLogger) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	result, err := a.db.ExecContext(ctx, `
		DELETE FROM audit_log
		WHERE timestamp < datetime('now', ?)
	`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func scanAuditEntries(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]database.AuditLogEntry, error) {
	var entries []database.AuditLogEntry
	for rows.Next() {
		var (
			entry       database.AuditLogEntry
			timestamp   string
			detailsJSON []byte
		)

		if err := rows.Scan(
			&entry.ID, &timestamp, &entry.EventType,
			&entry.BookingID, &entry.Actor, &detailsJSON,
		); err != nil {
			return nil, err
		}

		entry.Timestamp, _ = util.ParseSQLiteTimestamp(timestamp)
		if len(detailsJSON) > 0 {
			entry.Details = detailsJSON
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
