// Package tokens stores issued action tokens. Only the SHA-256 hash of a
// bearer value is ever persisted; a leaked database dump cannot be replayed.
package tokens

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/util"
)

// Repository handles action token storage.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new token repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Insert records an issued token by hash.
func (r *Repository) Insert(ctx context.Context, bookingID, action, tokenHash string, expiresAt time.Time) (*database.ActionToken, error) {
	id, err := crypto.GenerateTokenID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token ID: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO action_tokens (id, booking_id, action, token_hash, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, bookingID, action, tokenHash, util.SQLiteTimestamp(expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert action token: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID retrieves a token record by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*database.ActionToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, booking_id, action, token_hash, expires_at, used_at, created_at
		FROM action_tokens WHERE id = ?
	`, id)
	return scanToken(row)
}

// GetByHash looks up a token record by the hash of a presented bearer value.
func (r *Repository) GetByHash(ctx context.Context, tokenHash string) (*database.ActionToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, booking_id, action, token_hash, expires_at, used_at, created_at
		FROM action_tokens WHERE token_hash = ?
	`, tokenHash)
	return scanToken(row)
}

// IsUsable reports whether a token record is unused and unexpired. Whether
// the owning booking is still pending is the orchestrator's check.
func IsUsable(token *database.ActionToken, now time.Time) bool {
	return !token.UsedAt.Valid && token.ExpiresAt.After(now)
}

// InvalidateForBooking marks every unused token for a booking as used. Run
// on any terminal decision so the sibling token cannot be replayed.
func (r *Repository) InvalidateForBooking(ctx context.Context, bookingID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE action_tokens
		SET used_at = datetime('now')
		WHERE booking_id = ? AND used_at IS NULL
	`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes token records whose expiry passed before the cutoff.
// Unlike bookings, spent token hashes carry no audit value.
func (r *Repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM action_tokens WHERE expires_at < ?
	`, util.SQLiteTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return result.RowsAffected()
}

func scanToken(row *sql.Row) (*database.ActionToken, error) {
	var t database.ActionToken
	var expiresAt, createdAt string
	var usedAt sql.NullString

	err := row.Scan(&t.ID, &t.BookingID, &t.Action, &t.TokenHash, &expiresAt, &usedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("action token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan action token: %w", err)
	}

	if t.ExpiresAt, err = util.ParseSQLiteTimestamp(expiresAt); err != nil {
		return nil, fmt.Errorf("invalid expires_at: %w", err)
	}
	if usedAt.Valid {
		if parsed, err := util.ParseSQLiteTimestamp(usedAt.String); err == nil {
			t.UsedAt = sql.NullTime{Time: parsed, Valid: true}
		}
	}
	if parsed, err := util.ParseSQLiteTimestamp(createdAt); err == nil {
		t.CreatedAt = parsed
	}

	return &t, nil
}
