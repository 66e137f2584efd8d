package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/engine"
	"github.com/example/visitbook/internal/response"
	"github.com/example/visitbook/internal/window"
)

// ValidateBooking runs validation plus a conflict check without creating
// anything. Intended for form-level feedback before submission.
func (h *Handler) ValidateBooking(w http.ResponseWriter, r *http.Request) {
	var sub window.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeValidationError,
			"invalid JSON body")
		return
	}

	result := h.engine.Validate(r.Context(), sub)
	response.JSON(w, http.StatusOK, result)
}

// CreateBooking accepts a visit submission and creates a pending booking.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var sub window.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeValidationError,
			"invalid JSON body")
		return
	}

	result, err := h.engine.Create(r.Context(), sub)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	payload := map[string]interface{}{
		"booking":       h.bookingJSON(result.Booking),
		"approve_token": result.ApproveToken,
		"reject_token":  result.RejectToken,
	}
	if len(result.Warnings) > 0 {
		payload["warnings"] = result.Warnings
	}

	response.JSON(w, http.StatusCreated, payload)
}

// ActionToken applies a decision carried by an emailed approve/reject link.
func (h *Handler) ActionToken(w http.ResponseWriter, r *http.Request) {
	bearer := r.PathValue("token")
	if bearer == "" {
		response.WriteInvalidToken(w, "action token required")
		return
	}

	ctx := r.Context()
	record, err := h.engine.ResolveActionToken(ctx, bearer)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	booking, err := h.engine.Decide(ctx, record.BookingID, record.Action, database.SourceEmailLink, "")
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"action":  record.Action,
		"booking": h.bookingJSON(booking),
	})
}

// writeEngineError maps engine errors onto the API's error vocabulary.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var validationErr *engine.ValidationError
	var stateErr *engine.StateConflictError
	var calendarErr *engine.CalendarUnavailableError
	var tokenErr *engine.TokenError

	switch {
	case errors.As(err, &validationErr):
		response.WriteValidationError(w, validationErr.Errors)
	case errors.Is(err, engine.ErrSlotUnavailable):
		response.WriteSlotUnavailable(w)
	case errors.As(err, &stateErr):
		response.WriteAlreadyDecided(w, stateErr.Status)
	case errors.Is(err, engine.ErrBookingNotFound):
		response.WriteBookingNotFound(w)
	case errors.Is(err, engine.ErrEmailRequired):
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeEmailRequired,
			engine.ErrEmailRequired.Error())
	case errors.As(err, &calendarErr):
		response.WriteCalendarUnavailable(w, calendarErr.Error())
	case errors.As(err, &tokenErr):
		response.WriteInvalidToken(w, tokenErr.Error())
	default:
		response.WriteInternalError(w, "failed to process booking")
	}
}
