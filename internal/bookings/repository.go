// Package bookings provides booking storage and retrieval.
package bookings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/util"
)

// Repository handles booking storage. Bookings are never deleted; terminal
// rows remain as an audit trail.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new booking repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const bookingColumns = `
	id, status, name, email, phone, purpose, notes,
	needs_meet_link, is_urgent, visitor_timezone,
	start_at_utc, end_at_utc,
	hold_event_id, hold_status, hold_expires_at,
	decided_at, decision_source, created_at, updated_at`

// CreateBooking contains the data needed to persist a new pending booking.
type CreateBooking struct {
	Name            string
	Email           string
	Phone           string
	Purpose         string
	Notes           string
	NeedsMeetLink   bool
	IsUrgent        bool
	VisitorTimezone string
	StartAtUTC      time.Time
	EndAtUTC        time.Time
	HoldExpiresAt   time.Time
}

// Create stores a new pending booking and returns the persisted row.
func (r *Repository) Create(ctx context.Context, req *CreateBooking) (*database.Booking, error) {
	id, err := crypto.GenerateBookingID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate booking ID: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bookings (
			id, status, name, email, phone, purpose, notes,
			needs_meet_link, is_urgent, visitor_timezone,
			start_at_utc, end_at_utc, hold_status, hold_expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, database.StatusPending,
		nullable(req.Name), nullable(req.Email), nullable(req.Phone),
		nullable(req.Purpose), nullable(req.Notes),
		req.NeedsMeetLink, req.IsUrgent, req.VisitorTimezone,
		util.SQLiteTimestamp(req.StartAtUTC), util.SQLiteTimestamp(req.EndAtUTC),
		database.HoldMissing, util.SQLiteTimestamp(req.HoldExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID retrieves a booking by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*database.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

// List retrieves bookings, optionally filtered by status, newest first.
func (r *Repository) List(ctx context.Context, status string, limit int) ([]database.Booking, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
			status, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC LIMIT ?`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// GetExpiredPending retrieves pending bookings whose hold expiry has passed.
func (r *Repository) GetExpiredPending(ctx context.Context, now time.Time) ([]database.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = ? AND hold_expires_at <= ?`,
		database.StatusPending, util.SQLiteTimestamp(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// GetPendingMissingHold retrieves still-live pending bookings whose hold was
// never created or last errored, for the sweeper's retry pass.
func (r *Repository) GetPendingMissingHold(ctx context.Context, now time.Time) ([]database.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE status = ? AND hold_status IN (?, ?) AND hold_expires_at > ?`,
		database.StatusPending, database.HoldMissing, database.HoldError,
		util.SQLiteTimestamp(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query uncovered bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// Decide atomically transitions a booking from pending to a terminal status,
// stamping the decision metadata. Returns false when the booking was already
// transitioned by a concurrent caller.
func (r *Repository) Decide(ctx context.Context, id, toStatus, source string) (bool, error) {
	if !database.IsTerminal(toStatus) {
		return false, fmt.Errorf("not a terminal status: %s", toStatus)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, decided_at = datetime('now'), decision_source = ?,
		    updated_at = datetime('now')
		WHERE id = ? AND status = ?
	`, toStatus, source, id, database.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// SetHold records a hold event id and hold status.
func (r *Repository) SetHold(ctx context.Context, id, eventID, holdStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET hold_event_id = ?, hold_status = ?, updated_at = datetime('now')
		WHERE id = ?
	`, nullable(eventID), holdStatus, id)
	if err != nil {
		return fmt.Errorf("failed to set hold: %w", err)
	}
	return nil
}

// SetHoldStatus updates only the hold sub-state.
func (r *Repository) SetHoldStatus(ctx context.Context, id, holdStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET hold_status = ?, updated_at = datetime('now')
		WHERE id = ?
	`, holdStatus, id)
	if err != nil {
		return fmt.Errorf("failed to set hold status: %w", err)
	}
	return nil
}

// CountByStatus returns booking counts grouped by status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM bookings GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*database.Booking, error) {
	var b database.Booking
	var startAt, endAt, holdExpiresAt, createdAt, updatedAt string
	var decidedAt sql.NullString

	err := row.Scan(
		&b.ID, &b.Status, &b.Name, &b.Email, &b.Phone, &b.Purpose, &b.Notes,
		&b.NeedsMeetLink, &b.IsUrgent, &b.VisitorTimezone,
		&startAt, &endAt,
		&b.HoldEventID, &b.HoldStatus, &holdExpiresAt,
		&decidedAt, &b.DecisionSource, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if b.StartAtUTC, err = util.ParseSQLiteTimestamp(startAt); err != nil {
		return nil, fmt.Errorf("invalid start_at_utc: %w", err)
	}
	if b.EndAtUTC, err = util.ParseSQLiteTimestamp(endAt); err != nil {
		return nil, fmt.Errorf("invalid end_at_utc: %w", err)
	}
	if b.HoldExpiresAt, err = util.ParseSQLiteTimestamp(holdExpiresAt); err != nil {
		return nil, fmt.Errorf("invalid hold_expires_at: %w", err)
	}
	if decidedAt.Valid {
		if t, err := util.ParseSQLiteTimestamp(decidedAt.String); err == nil {
			b.DecidedAt = sql.NullTime{Time: t, Valid: true}
		}
	}
	if t, err := util.ParseSQLiteTimestamp(createdAt); err == nil {
		b.CreatedAt = t
	}
	if t, err := util.ParseSQLiteTimestamp(updatedAt); err == nil {
		b.UpdatedAt = t
	}

	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]database.Booking, error) {
	var bookings []database.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
