// Package api provides REST API handlers.
package api

import (
	"net/http"
	"time"

	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/engine"
	"github.com/example/visitbook/internal/google"
	"github.com/example/visitbook/internal/response"
	"github.com/example/visitbook/internal/util"
)

// Handler provides REST API handlers.
type Handler struct {
	config      *config.Config
	engine      *engine.Engine
	oauth       *google.OAuthManager
	gateway     engine.CalendarGateway
	auditLogger *engine.AuditLogger
	db          *database.DB
}

// NewHandler creates a new API handler.
func NewHandler(
	cfg *config.Config,
	eng *engine.Engine,
	oauth *google.OAuthManager,
	gateway engine.CalendarGateway,
	auditLogger *engine.AuditLogger,
	db *database.DB,
) *Handler {
	return &Handler{
		config:      cfg,
		engine:      eng,
		oauth:       oauth,
		gateway:     gateway,
		auditLogger: auditLogger,
		db:          db,
	}
}

// RegisterPublicRoutes registers the unauthenticated routes: submission,
// validation, email action links, and the OAuth callback.
func (h *Handler) RegisterPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/bookings/validate", h.ValidateBooking)
	mux.HandleFunc("POST /api/v1/bookings", h.CreateBooking)

	// Email clients prefetch and follow links with GET; both verbs land on
	// the same single-use token check.
	mux.HandleFunc("GET /action/{token}", h.ActionToken)
	mux.HandleFunc("POST /action/{token}", h.ActionToken)

	mux.HandleFunc("GET /oauth/callback", h.OAuthCallback)
	mux.HandleFunc("GET /healthz", h.Health)
}

// RegisterAdminRoutes registers the admin-key-guarded routes.
func (h *Handler) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/bookings", h.ListBookings)
	mux.HandleFunc("GET /api/v1/admin/bookings/{id}", h.GetBooking)
	mux.HandleFunc("GET /api/v1/admin/bookings/{id}/audit", h.GetBookingAudit)
	mux.HandleFunc("POST /api/v1/admin/bookings/{id}/approve", h.ApproveBooking)
	mux.HandleFunc("POST /api/v1/admin/bookings/{id}/reject", h.RejectBooking)
	mux.HandleFunc("GET /api/v1/admin/stats", h.GetStats)
	mux.HandleFunc("GET /api/v1/admin/audit", h.GetAuditLog)
	mux.HandleFunc("GET /api/v1/admin/calendar/status", h.CalendarStatus)
	mux.HandleFunc("GET /api/v1/admin/calendar/connect", h.CalendarConnect)
	mux.HandleFunc("DELETE /api/v1/admin/calendar", h.CalendarDisconnect)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"google_configured": h.oauth.IsConfigured(),
		"google_connected":  h.oauth.HasConnection(r.Context()),
	})
}

// bookingJSON converts a booking to its wire representation. Times are
// RFC3339 UTC; a display rendering in the configured operator timezone is
// included for human consumers.
func (h *Handler) bookingJSON(b *database.Booking) map[string]interface{} {
	item := map[string]interface{}{
		"id":               b.ID,
		"status":           b.Status,
		"needs_meet_link":  b.NeedsMeetLink,
		"is_urgent":        b.IsUrgent,
		"visitor_timezone": b.VisitorTimezone,
		"start_at":         b.StartAtUTC.UTC().Format(time.RFC3339),
		"end_at":           b.EndAtUTC.UTC().Format(time.RFC3339),
		"hold_status":      b.HoldStatus,
		"hold_expires_at":  b.HoldExpiresAt.UTC().Format(time.RFC3339),
		"created_at":       b.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":       b.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if b.Name.Valid {
		item["name"] = b.Name.String
	}
	if b.Email.Valid {
		item["email"] = b.Email.String
	}
	if b.Phone.Valid {
		item["phone"] = b.Phone.String
	}
	if b.Purpose.Valid {
		item["purpose"] = b.Purpose.String
	}
	if b.Notes.Valid {
		item["notes"] = b.Notes.String
	}
	if b.HoldEventID.Valid {
		item["hold_event_id"] = b.HoldEventID.String
	}
	if b.DecidedAt.Valid {
		item["decided_at"] = b.DecidedAt.Time.UTC().Format(time.RFC3339)
	}
	if b.DecisionSource.Valid {
		item["decision_source"] = b.DecisionSource.String
	}

	formatter := util.GetDefaultFormatter()
	item["start_display"] = formatter.FormatDateTimeWithZone(b.StartAtUTC)
	item["end_display"] = formatter.FormatDateTimeWithZone(b.EndAtUTC)
	if b.Status == database.StatusPending {
		item["hold_expires_in"] = formatter.FormatExpiresIn(b.HoldExpiresAt)
	}

	return item
}
