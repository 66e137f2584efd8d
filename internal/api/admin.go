package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/response"
)

// ListBookings returns bookings, optionally filtered by status.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", database.StatusPending, database.StatusApproved,
		database.StatusRejected, database.StatusExpired:
	default:
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeValidationError,
			"unknown status filter")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	bookings, err := h.engine.ListBookings(r.Context(), status, limit)
	if err != nil {
		response.WriteInternalError(w, "failed to list bookings")
		return
	}

	items := make([]map[string]interface{}, 0, len(bookings))
	for i := range bookings {
		items = append(items, h.bookingJSON(&bookings[i]))
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"bookings": items,
	})
}

// GetBooking returns a single booking.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.engine.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"booking": h.bookingJSON(booking),
	})
}

// GetBookingAudit returns the audit trail for a booking.
func (h *Handler) GetBookingAudit(w http.ResponseWriter, r *http.Request) {
	bookingID := r.PathValue("id")

	// 404 for unknown bookings rather than an empty trail
	if _, err := h.engine.GetBooking(r.Context(), bookingID); err != nil {
		h.writeEngineError(w, err)
		return
	}

	entries, err := h.auditLogger.GetByBookingID(r.Context(), bookingID)
	if err != nil {
		response.WriteInternalError(w, "failed to load audit trail")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"booking_id": bookingID,
		"entries":    auditJSON(entries),
	})
}

type decisionRequest struct {
	EmailOverride string `json:"email_override"`
}

// ApproveBooking applies an approval from the admin panel.
func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.WriteError(w, http.StatusBadRequest, response.ErrCodeValidationError,
				"invalid JSON body")
			return
		}
	}

	booking, err := h.engine.Decide(r.Context(), r.PathValue("id"),
		database.ActionApprove, database.SourceAdminPanel, req.EmailOverride)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"booking": h.bookingJSON(booking),
	})
}

// RejectBooking applies a rejection from the admin panel.
func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.engine.Decide(r.Context(), r.PathValue("id"),
		database.ActionReject, database.SourceAdminPanel, "")
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"booking": h.bookingJSON(booking),
	})
}

// GetStats returns booking counts by status.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		response.WriteInternalError(w, "failed to get stats")
		return
	}

	auditCount, err := h.auditLogger.Count(r.Context())
	if err != nil {
		response.WriteInternalError(w, "failed to get audit count")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"bookings":    stats,
		"audit_count": auditCount,
	})
}

// GetAuditLog returns recent audit entries.
func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	entries, err := h.auditLogger.GetRecent(r.Context(), limit)
	if err != nil {
		response.WriteInternalError(w, "failed to load audit log")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"entries": auditJSON(entries),
	})
}

func auditJSON(entries []database.AuditLogEntry) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		item := map[string]interface{}{
			"id":         entry.ID,
			"timestamp":  entry.Timestamp.UTC().Format(time.RFC3339),
			"event_type": entry.EventType,
		}
		if entry.BookingID.Valid {
			item["booking_id"] = entry.BookingID.String
		}
		if entry.Actor.Valid {
			item["actor"] = entry.Actor.String
		}
		if len(entry.Details) > 0 {
			var details map[string]interface{}
			if err := json.Unmarshal(entry.Details, &details); err == nil {
				item["details"] = details
			}
		}
		items = append(items, item)
	}
	return items
}
