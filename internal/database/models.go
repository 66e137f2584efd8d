// Package database provides shared model structs used across the application.
package database

import (
	"database/sql"
	"time"
)

// Booking represents a visit booking request.
type Booking struct {
	ID              string
	Status          string
	Name            sql.NullString
	Email           sql.NullString
	Phone           sql.NullString
	Purpose         sql.NullString
	Notes           sql.NullString
	NeedsMeetLink   bool
	IsUrgent        bool
	VisitorTimezone string
	StartAtUTC      time.Time
	EndAtUTC        time.Time
	HoldEventID     sql.NullString
	HoldStatus      string
	HoldExpiresAt   time.Time
	DecidedAt       sql.NullTime
	DecisionSource  sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Booking status constants
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

// Hold status constants
const (
	HoldMissing   = "missing"
	HoldCreated   = "created"
	HoldConfirmed = "confirmed"
	HoldReleased  = "released"
	HoldError     = "error"
)

// Decision source constants
const (
	SourceEmailLink   = "email_link"
	SourceAdminPanel  = "admin_panel"
	SourceMaintenance = "maintenance"
)

// Decision action constants
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// IsTerminal reports whether a booking status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// ActionToken represents a single-use approve/reject token bound to a booking.
type ActionToken struct {
	ID        string
	BookingID string
	Action    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    sql.NullTime
	CreatedAt time.Time
}

// CalendarConnection represents the single stored provider connection.
type CalendarConnection struct {
	ID              string
	AccountEmail    string
	CalendarID      string
	RefreshTokenEnc []byte
	AccessTokenEnc  []byte
	AccessExpiresAt sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuditLogEntry represents an audit log record.
type AuditLogEntry struct {
	ID        int64
	Timestamp time.Time
	EventType string
	BookingID sql.NullString
	Actor     sql.NullString
	Details   []byte
}

// Audit event types
const (
	AuditBookingCreated   = "booking_created"
	AuditBookingApproved  = "booking_approved"
	AuditBookingRejected  = "booking_rejected"
	AuditBookingExpired   = "booking_expired"
	AuditHoldCreated      = "hold_created"
	AuditHoldRetried      = "hold_retried"
	AuditHoldFailed       = "hold_failed"
	AuditHoldReleased     = "hold_released"
	AuditCalendarLinked   = "calendar_linked"
	AuditCalendarRefresh  = "calendar_token_refreshed"
	AuditCalendarFailure  = "calendar_failure"
	AuditNotificationSent = "notification_sent"
)

// WebhookFailure represents a failed operator webhook delivery.
type WebhookFailure struct {
	ID         int64
	WebhookID  string
	BookingID  string
	Event      string
	Payload    []byte
	Error      sql.NullString
	Attempts   int
	CreatedAt  time.Time
	ResolvedAt sql.NullTime
}

// Setting represents a key/value configuration row.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
