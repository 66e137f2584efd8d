// Package response provides standardized HTTP response helpers.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Error codes surfaced by the booking API.
const (
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeSlotUnavailable     = "SLOT_UNAVAILABLE"
	ErrCodeAlreadyDecided      = "ALREADY_DECIDED"
	ErrCodeBookingNotFound     = "BOOKING_NOT_FOUND"
	ErrCodeEmailRequired       = "EMAIL_REQUIRED"
	ErrCodeCalendarUnavailable = "CALENDAR_UNAVAILABLE"
	ErrCodeInvalidToken        = "INVALID_TOKEN"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError in the standard response format.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	JSON(w, status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteValidationError writes a 400 with the accumulated error list.
func WriteValidationError(w http.ResponseWriter, errs []string) {
	WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationError,
		"The submission failed validation",
		map[string]interface{}{"errors": errs})
}

// WriteSlotUnavailable writes a 409: the remedy is picking another time.
func WriteSlotUnavailable(w http.ResponseWriter) {
	WriteError(w, http.StatusConflict, ErrCodeSlotUnavailable,
		"The requested time is no longer available")
}

// WriteAlreadyDecided writes a 409 for a terminal booking.
func WriteAlreadyDecided(w http.ResponseWriter, status string) {
	WriteErrorWithDetails(w, http.StatusConflict, ErrCodeAlreadyDecided,
		"This booking has already been decided",
		map[string]interface{}{"status": status})
}

// WriteBookingNotFound writes a 404.
func WriteBookingNotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, ErrCodeBookingNotFound, "Booking not found")
}

// WriteCalendarUnavailable writes a 502: retryable provider outage.
func WriteCalendarUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, ErrCodeCalendarUnavailable, message)
}

// WriteInvalidToken writes a 401 for a bad or spent action token.
func WriteInvalidToken(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, ErrCodeInvalidToken, message)
}

// WriteUnauthorized writes a 401.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
}

// WriteRateLimited writes a 429 with a Retry-After hint.
func WriteRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorWithDetails(w, http.StatusTooManyRequests, ErrCodeRateLimited,
		"Too many requests, please slow down",
		map[string]interface{}{"retry_after_seconds": retryAfter})
}

// WriteInternalError writes a 500.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}
