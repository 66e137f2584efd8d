// Package engine provides the core booking workflow: validation, creation,
// decision application, and expiry.
package engine

import (
	"context"
	"time"

	"github.com/example/visitbook/internal/bookings"
	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/google"
	"github.com/example/visitbook/internal/tokens"
	"github.com/example/visitbook/internal/util"
	"github.com/example/visitbook/internal/window"
)

// CalendarGateway is the engine's view of the external calendar provider.
// A fake implementation substitutes for the real one in tests.
type CalendarGateway interface {
	Context(ctx context.Context) google.Connection
	CheckBusy(ctx context.Context, start, end time.Time) (bool, error)
	CreateHold(ctx context.Context, intent google.HoldIntent) (string, error)
	ConfirmOrCreate(ctx context.Context, intent google.ConfirmIntent) (*google.EventResult, error)
	Cancel(ctx context.Context, eventID string) error
}

// Notifier delivers operator notifications. All calls are best-effort; the
// booking workflow never fails on a notification error.
type Notifier interface {
	BookingCreated(ctx context.Context, booking *database.Booking, approveToken, rejectToken string)
	BookingDecided(ctx context.Context, booking *database.Booking)
}

// Engine orchestrates the booking state machine.
type Engine struct {
	config      *config.Config
	bookingRepo *bookings.Repository
	tokenRepo   *tokens.Repository
	gateway     CalendarGateway
	signer      *crypto.TokenSigner
	audit       *AuditLogger
	notifier    Notifier
}

// NewEngine creates a new engine instance.
func NewEngine(
	cfg *config.Config,
	bookingRepo *bookings.Repository,
	tokenRepo *tokens.Repository,
	gateway CalendarGateway,
	signer *crypto.TokenSigner,
	audit *AuditLogger,
) *Engine {
	return &Engine{
		config:      cfg,
		bookingRepo: bookingRepo,
		tokenRepo:   tokenRepo,
		gateway:     gateway,
		signer:      signer,
		audit:       audit,
	}
}

// SetNotifier sets the operator notifier.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

func (e *Engine) policy() window.Policy {
	return window.Policy{
		MinDuration:      e.config.Booking.MinDuration,
		MaxDuration:      e.config.Booking.MaxDuration,
		BusinessLocation: e.config.Booking.BusinessLocation(),
		OpenHour:         e.config.Booking.OpenHour,
		CloseHour:        e.config.Booking.CloseHour,
	}
}

// ValidationResult is the read-only outcome of Validate.
type ValidationResult struct {
	Valid                bool     `json:"valid"`
	Errors               []string `json:"errors,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	HasConflict          bool     `json:"has_conflict"`
	OutsideWorkingWindow bool     `json:"is_outside_working_window"`
	RequiresUrgent       bool     `json:"requires_urgent"`
	CalendarConnected    bool     `json:"google_connected"`
	CalendarReachable    bool     `json:"google_reachable"`
}

// Validate runs the normalizer and, when the submission has valid shape, a
// provider conflict check. It never mutates state and is safe to call on
// every keystroke.
func (e *Engine) Validate(ctx context.Context, sub window.Submission) *ValidationResult {
	norm := window.Normalize(sub, e.policy())

	result := &ValidationResult{
		Errors:               norm.Errors,
		OutsideWorkingWindow: norm.OutsideWorkingWindow,
		RequiresUrgent:       norm.RequiresUrgent,
	}

	conn := e.gateway.Context(ctx)
	result.CalendarConnected = conn.Connected
	result.CalendarReachable = conn.Reachable

	if !conn.Connected {
		result.Warnings = append(result.Warnings, "calendar not connected yet; conflict checking unavailable")
	} else if !conn.Reachable {
		result.Warnings = append(result.Warnings, "calendar unreachable; conflict checking unavailable")
	}

	if norm.OK() && conn.Connected && conn.Reachable {
		busy, err := e.gateway.CheckBusy(ctx, norm.Normalized.StartUTC, norm.Normalized.EndUTC)
		if err != nil {
			result.CalendarReachable = false
			result.Warnings = append(result.Warnings, "calendar unreachable; conflict checking unavailable")
		} else if busy {
			result.HasConflict = true
			result.Errors = append(result.Errors, ErrSlotUnavailable.Error())
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// CreateResult is returned by Create. The bearer tokens appear here exactly
// once; only their hashes are persisted.
type CreateResult struct {
	Booking      *database.Booking
	ApproveToken string
	RejectToken  string
	Warnings     []string
}

// Create validates the submission from scratch, persists a pending booking
// with a bounded hold expiry, attempts a tentative calendar hold, and mints
// the approve/reject token pair. A hold failure degrades to a warning; a
// provider-reported conflict creates nothing.
func (e *Engine) Create(ctx context.Context, sub window.Submission) (*CreateResult, error) {
	norm := window.Normalize(sub, e.policy())
	if !norm.OK() {
		return nil, &ValidationError{Errors: norm.Errors}
	}
	n := norm.Normalized

	var warnings []string

	conn := e.gateway.Context(ctx)
	switch {
	case !conn.Connected:
		warnings = append(warnings, "calendar not connected; the visit slot is not protected by a hold")
	case !conn.Reachable:
		warnings = append(warnings, "calendar unreachable; the visit slot is not protected by a hold")
	default:
		busy, err := e.gateway.CheckBusy(ctx, n.StartUTC, n.EndUTC)
		if err != nil {
			conn.Reachable = false
			warnings = append(warnings, "calendar unreachable; conflict checking skipped")
		} else if busy {
			return nil, ErrSlotUnavailable
		}
	}

	now := util.NowUTC()
	booking, err := e.bookingRepo.Create(ctx, &bookings.CreateBooking{
		Name:            n.Name,
		Email:           n.Email,
		Phone:           n.Phone,
		Purpose:         n.Purpose,
		Notes:           n.Notes,
		NeedsMeetLink:   n.NeedsMeetLink,
		IsUrgent:        n.IsUrgent,
		VisitorTimezone: n.VisitorTimezone,
		StartAtUTC:      n.StartUTC,
		EndAtUTC:        n.EndUTC,
		HoldExpiresAt:   now.Add(e.config.Booking.HoldTTL),
	})
	if err != nil {
		return nil, err
	}

	if conn.Connected && conn.Reachable {
		if warn := e.createHold(ctx, booking); warn != "" {
			warnings = append(warnings, warn)
		}
	}

	approveToken, err := e.issueToken(ctx, booking, database.ActionApprove)
	if err != nil {
		return nil, err
	}
	rejectToken, err := e.issueToken(ctx, booking, database.ActionReject)
	if err != nil {
		return nil, err
	}

	e.audit.Log(ctx, database.AuditBookingCreated, booking.ID, "visitor", map[string]interface{}{
		"start_at_utc": booking.StartAtUTC.Format(time.RFC3339),
		"end_at_utc":   booking.EndAtUTC.Format(time.RFC3339),
		"is_urgent":    booking.IsUrgent,
	})

	// Re-read to pick up the hold outcome
	booking, err = e.bookingRepo.GetByID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	if e.notifier != nil {
		// Detached context: delivery retries must not stall the visitor's
		// response or die with the request
		go e.notifier.BookingCreated(context.Background(), booking, approveToken, rejectToken)
	}

	return &CreateResult{
		Booking:      booking,
		ApproveToken: approveToken,
		RejectToken:  rejectToken,
		Warnings:     warnings,
	}, nil
}

// createHold attempts the tentative hold. Returns a warning string when the
// booking is left uncovered.
func (e *Engine) createHold(ctx context.Context, booking *database.Booking) string {
	eventID, err := e.gateway.CreateHold(ctx, holdIntent(booking))
	if err != nil {
		util.Warn("Hold creation failed", "booking_id", booking.ID, "error", err)
		e.audit.Log(ctx, database.AuditHoldFailed, booking.ID, "system", map[string]interface{}{
			"error": err.Error(),
		})
		return "calendar hold could not be created; it will be retried automatically"
	}

	if err := e.bookingRepo.SetHold(ctx, booking.ID, eventID, database.HoldCreated); err != nil {
		util.Error("Failed to record hold", "booking_id", booking.ID, "error", err)
		return "calendar hold could not be recorded"
	}
	e.audit.Log(ctx, database.AuditHoldCreated, booking.ID, "system", map[string]interface{}{
		"event_id": eventID,
	})
	return ""
}

func (e *Engine) issueToken(ctx context.Context, booking *database.Booking, action string) (string, error) {
	bearer, err := e.signer.Sign(booking.ID, action, booking.HoldExpiresAt)
	if err != nil {
		return "", err
	}
	if _, err := e.tokenRepo.Insert(ctx, booking.ID, action, crypto.HashSHA256(bearer), booking.HoldExpiresAt); err != nil {
		return "", err
	}
	return bearer, nil
}

// ResolveActionToken verifies a presented bearer token and returns its
// stored record. It checks signature, shape, single-use, and expiry; whether
// the booking is still pending is re-checked by Decide.
func (e *Engine) ResolveActionToken(ctx context.Context, bearer string) (*database.ActionToken, error) {
	claims, ok := e.signer.Verify(bearer)
	if !ok {
		return nil, &TokenError{Reason: "is invalid"}
	}

	record, err := e.tokenRepo.GetByHash(ctx, crypto.HashSHA256(bearer))
	if err != nil {
		return nil, &TokenError{Reason: "is not recognized"}
	}
	if record.BookingID != claims.BookingID || record.Action != claims.Action {
		return nil, &TokenError{Reason: "does not match its booking"}
	}
	if !tokens.IsUsable(record, util.NowUTC()) {
		if record.UsedAt.Valid {
			return nil, &TokenError{Reason: "has already been used"}
		}
		return nil, &TokenError{Reason: "has expired"}
	}

	return record, nil
}

// Decide applies a terminal decision to a pending booking. Expiry is
// discovered lazily here: a stale pending booking is transitioned to
// expired and the decision itself rejected.
func (e *Engine) Decide(ctx context.Context, bookingID, action, source, emailOverride string) (*database.Booking, error) {
	booking, err := e.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}

	if database.IsTerminal(booking.Status) {
		return nil, &StateConflictError{Status: booking.Status}
	}

	now := util.NowUTC()
	if !booking.HoldExpiresAt.After(now) {
		e.expire(ctx, booking)
		return nil, &StateConflictError{Status: database.StatusExpired}
	}

	switch action {
	case database.ActionApprove:
		return e.approve(ctx, booking, source, emailOverride)
	case database.ActionReject:
		return e.reject(ctx, booking, source)
	default:
		return nil, &TokenError{Reason: "carries an unknown action"}
	}
}

// reject finalizes a rejection. Calendar flakiness during hold release
// degrades the hold bookkeeping but never blocks the terminal transition.
func (e *Engine) reject(ctx context.Context, booking *database.Booking, source string) (*database.Booking, error) {
	// Win the status transition before touching the calendar: a lost race
	// means a concurrent approval may have confirmed the hold event, and the
	// stale in-memory copy must not authorize its cancellation.
	ok, err := e.bookingRepo.Decide(ctx, booking.ID, database.StatusRejected, source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.stateConflict(ctx, booking.ID)
	}

	e.releaseHold(ctx, booking)

	if err := e.tokenRepo.InvalidateForBooking(ctx, booking.ID); err != nil {
		util.Error("Failed to invalidate tokens", "booking_id", booking.ID, "error", err)
	}

	e.audit.Log(ctx, database.AuditBookingRejected, booking.ID, source, nil)
	util.Info("Booking rejected", "booking_id", booking.ID, "source", source)

	return e.finalize(ctx, booking.ID)
}

// approve confirms the calendar event and finalizes the approval. Unlike
// rejection, this path is synchronous and user-facing: provider errors
// propagate and the booking stays pending.
func (e *Engine) approve(ctx context.Context, booking *database.Booking, source, emailOverride string) (*database.Booking, error) {
	email := booking.Email.String
	if emailOverride != "" {
		email = emailOverride
	}
	if email == "" {
		return nil, ErrEmailRequired
	}

	conn := e.gateway.Context(ctx)
	if !conn.Connected || !conn.Reachable {
		return nil, &CalendarUnavailableError{Connected: conn.Connected, Reason: conn.Reason}
	}

	// If no hold covers the slot, the window may have filled while the
	// booking sat pending. Re-check immediately before confirming.
	covered := booking.HoldStatus == database.HoldCreated || booking.HoldStatus == database.HoldConfirmed
	if !covered {
		busy, err := e.gateway.CheckBusy(ctx, booking.StartAtUTC, booking.EndAtUTC)
		if err != nil {
			return nil, &CalendarUnavailableError{Connected: true, Reason: err.Error()}
		}
		if busy {
			return nil, ErrSlotUnavailable
		}
	}

	intent := google.ConfirmIntent{
		BookingID:     booking.ID,
		Start:         booking.StartAtUTC,
		End:           booking.EndAtUTC,
		VisitorName:   booking.Name.String,
		Email:         email,
		Purpose:       booking.Purpose.String,
		Notes:         booking.Notes.String,
		NeedsMeetLink: booking.NeedsMeetLink,
	}
	if booking.HoldStatus == database.HoldCreated && booking.HoldEventID.Valid {
		intent.EventID = booking.HoldEventID.String
	}

	event, err := e.gateway.ConfirmOrCreate(ctx, intent)
	if err != nil {
		e.audit.Log(ctx, database.AuditCalendarFailure, booking.ID, source, map[string]interface{}{
			"operation": "confirm",
			"error":     err.Error(),
		})
		return nil, err
	}

	ok, err := e.bookingRepo.Decide(ctx, booking.ID, database.StatusApproved, source)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent decision won the race after we confirmed the event.
		// Only a freshly created event is ours to remove; a patched hold is
		// the same event a concurrent approval just confirmed, and cancelling
		// it would delete the winner's confirmed event.
		if intent.EventID == "" {
			if cancelErr := e.gateway.Cancel(ctx, event.EventID); cancelErr != nil {
				util.Error("Failed to release event after lost decision race",
					"booking_id", booking.ID, "event_id", event.EventID, "error", cancelErr)
			}
		}
		return nil, e.stateConflict(ctx, booking.ID)
	}

	if err := e.bookingRepo.SetHold(ctx, booking.ID, event.EventID, database.HoldConfirmed); err != nil {
		util.Error("Failed to record confirmed hold", "booking_id", booking.ID, "error", err)
	}
	if err := e.tokenRepo.InvalidateForBooking(ctx, booking.ID); err != nil {
		util.Error("Failed to invalidate tokens", "booking_id", booking.ID, "error", err)
	}

	details := map[string]interface{}{"event_id": event.EventID}
	if event.MeetLink != "" {
		details["meet_link"] = event.MeetLink
	}
	e.audit.Log(ctx, database.AuditBookingApproved, booking.ID, source, details)
	util.Info("Booking approved", "booking_id", booking.ID, "source", source, "event_id", event.EventID)

	return e.finalize(ctx, booking.ID)
}

// expire transitions a stale pending booking to expired. Shared by the lazy
// check in Decide and the sweeper so the transition logic exists once.
// Returns true when this caller performed the transition.
func (e *Engine) expire(ctx context.Context, booking *database.Booking) bool {
	// Status transition first, hold release second, for the same reason as
	// reject: a lost race means this copy of the booking is stale.
	ok, err := e.bookingRepo.Decide(ctx, booking.ID, database.StatusExpired, database.SourceMaintenance)
	if err != nil {
		util.Error("Failed to expire booking", "booking_id", booking.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	e.releaseHold(ctx, booking)

	if err := e.tokenRepo.InvalidateForBooking(ctx, booking.ID); err != nil {
		util.Error("Failed to invalidate tokens", "booking_id", booking.ID, "error", err)
	}

	e.audit.Log(ctx, database.AuditBookingExpired, booking.ID, "system", nil)
	util.Info("Booking expired", "booking_id", booking.ID)

	if e.notifier != nil {
		if updated, err := e.bookingRepo.GetByID(ctx, booking.ID); err == nil {
			go e.notifier.BookingDecided(context.Background(), updated)
		}
	}
	return true
}

// releaseHold best-effort cancels a created hold. Failure degrades the hold
// sub-state to error without blocking the caller's terminal transition.
func (e *Engine) releaseHold(ctx context.Context, booking *database.Booking) {
	if booking.HoldStatus != database.HoldCreated || !booking.HoldEventID.Valid {
		return
	}

	if err := e.gateway.Cancel(ctx, booking.HoldEventID.String); err != nil {
		util.Warn("Hold release failed", "booking_id", booking.ID, "error", err)
		if err := e.bookingRepo.SetHoldStatus(ctx, booking.ID, database.HoldError); err != nil {
			util.Error("Failed to record hold error", "booking_id", booking.ID, "error", err)
		}
		return
	}

	if err := e.bookingRepo.SetHoldStatus(ctx, booking.ID, database.HoldReleased); err != nil {
		util.Error("Failed to record hold release", "booking_id", booking.ID, "error", err)
	}
	e.audit.Log(ctx, database.AuditHoldReleased, booking.ID, "system", nil)
}

// retryMissingHold retries hold creation for a still-pending booking whose
// hold is missing or errored. A now-conflicting window is marked as an
// error for human attention; the booking itself stays pending.
func (e *Engine) retryMissingHold(ctx context.Context, booking *database.Booking) {
	busy, err := e.gateway.CheckBusy(ctx, booking.StartAtUTC, booking.EndAtUTC)
	if err != nil {
		util.Warn("Hold retry skipped, calendar unreachable", "booking_id", booking.ID, "error", err)
		return
	}
	if busy {
		util.Warn("Pending booking window now conflicts", "booking_id", booking.ID)
		if err := e.bookingRepo.SetHoldStatus(ctx, booking.ID, database.HoldError); err != nil {
			util.Error("Failed to record hold error", "booking_id", booking.ID, "error", err)
		}
		e.audit.Log(ctx, database.AuditHoldFailed, booking.ID, "system", map[string]interface{}{
			"reason": "window now conflicts",
		})
		return
	}

	eventID, err := e.gateway.CreateHold(ctx, holdIntent(booking))
	if err != nil {
		util.Warn("Hold retry failed", "booking_id", booking.ID, "error", err)
		e.audit.Log(ctx, database.AuditHoldFailed, booking.ID, "system", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := e.bookingRepo.SetHold(ctx, booking.ID, eventID, database.HoldCreated); err != nil {
		util.Error("Failed to record retried hold", "booking_id", booking.ID, "error", err)
		return
	}
	e.audit.Log(ctx, database.AuditHoldRetried, booking.ID, "system", map[string]interface{}{
		"event_id": eventID,
	})
	util.Info("Hold created on retry", "booking_id", booking.ID, "event_id", eventID)
}

// RunMaintenance expires stale pending bookings and retries missing holds.
// Safe to run concurrently with itself and with live decisions; the
// repository's status guard makes repeated runs idempotent.
func (e *Engine) RunMaintenance(ctx context.Context) {
	now := util.NowUTC()

	expired, err := e.bookingRepo.GetExpiredPending(ctx, now)
	if err != nil {
		util.Error("Maintenance query for expired bookings failed", "error", err)
	} else {
		for i := range expired {
			e.expire(ctx, &expired[i])
		}
	}

	conn := e.gateway.Context(ctx)
	if conn.Connected && conn.Reachable {
		uncovered, err := e.bookingRepo.GetPendingMissingHold(ctx, now)
		if err != nil {
			util.Error("Maintenance query for uncovered bookings failed", "error", err)
		} else {
			for i := range uncovered {
				e.retryMissingHold(ctx, &uncovered[i])
			}
		}
	}
}

// GetBooking retrieves a booking by id.
func (e *Engine) GetBooking(ctx context.Context, id string) (*database.Booking, error) {
	booking, err := e.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// ListBookings lists bookings for the admin surface.
func (e *Engine) ListBookings(ctx context.Context, status string, limit int) ([]database.Booking, error) {
	return e.bookingRepo.List(ctx, status, limit)
}

// Stats returns booking counts by status.
func (e *Engine) Stats(ctx context.Context) (map[string]int, error) {
	return e.bookingRepo.CountByStatus(ctx)
}

func (e *Engine) finalize(ctx context.Context, bookingID string) (*database.Booking, error) {
	booking, err := e.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if e.notifier != nil {
		go e.notifier.BookingDecided(context.Background(), booking)
	}
	return booking, nil
}

// stateConflict re-reads the booking after a lost update race and reports
// the winning status.
func (e *Engine) stateConflict(ctx context.Context, bookingID string) error {
	booking, err := e.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return &StateConflictError{Status: "decided"}
	}
	return &StateConflictError{Status: booking.Status}
}

func holdIntent(booking *database.Booking) google.HoldIntent {
	return google.HoldIntent{
		BookingID:   booking.ID,
		Start:       booking.StartAtUTC,
		End:         booking.EndAtUTC,
		VisitorName: booking.Name.String,
		Email:       booking.Email.String,
		Phone:       booking.Phone.String,
		Purpose:     booking.Purpose.String,
		Notes:       booking.Notes.String,
		IsUrgent:    booking.IsUrgent,
	}
}
