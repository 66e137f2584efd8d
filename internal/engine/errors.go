package engine

import (
	"errors"
	"fmt"
)

// ErrSlotUnavailable is returned when the provider reports a conflicting
// busy interval. Its remedy is picking another time, not fixing a field.
var ErrSlotUnavailable = errors.New("the requested time is no longer available")

// ErrEmailRequired is returned when approval has no deliverable
// confirmation channel.
var ErrEmailRequired = errors.New("an email address is required to approve a booking")

// ErrBookingNotFound is returned for an unknown booking id.
var ErrBookingNotFound = errors.New("booking not found")

// ValidationError aggregates the normalizer's rejection reasons.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return fmt.Sprintf("submission failed %d validation checks", len(e.Errors))
}

// StateConflictError guards against double-processing: the booking already
// reached a terminal status. Non-retryable.
type StateConflictError struct {
	Status string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("booking already %s", e.Status)
}

// CalendarUnavailableError is returned when a synchronous calendar
// operation (approval) cannot reach the provider. Retryable.
type CalendarUnavailableError struct {
	Connected bool
	Reason    string
}

func (e *CalendarUnavailableError) Error() string {
	if !e.Connected {
		return "calendar is not connected"
	}
	return fmt.Sprintf("calendar is unreachable: %s; try again shortly", e.Reason)
}

// TokenError is returned when a presented action token is unusable.
type TokenError struct {
	Reason string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("action token %s", e.Reason)
}
