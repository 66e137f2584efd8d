package google

import "time"

// Connection is the tri-state reachability context for the bound calendar.
// Not connected means no operator has completed the OAuth flow; connected
// but unreachable is a transient provider or refresh failure.
type Connection struct {
	Connected  bool   `json:"connected"`
	Reachable  bool   `json:"reachable"`
	Reason     string `json:"reason,omitempty"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// HoldIntent describes a tentative hold event for a pending booking. Holds
// are opaque: no attendees, no notifications.
type HoldIntent struct {
	BookingID   string
	Start       time.Time
	End         time.Time
	VisitorName string
	Email       string
	Phone       string
	Purpose     string
	Notes       string
	IsUrgent    bool
}

// ConfirmIntent describes the confirmed, attendee-notified event created or
// patched on approval. EventID empty means no hold exists and a fresh event
// is created.
type ConfirmIntent struct {
	EventID       string
	BookingID     string
	Start         time.Time
	End           time.Time
	VisitorName   string
	Email         string
	Purpose       string
	Notes         string
	NeedsMeetLink bool
}

// EventResult is what the orchestrator needs back from event creation.
type EventResult struct {
	EventID  string `json:"event_id"`
	HTMLLink string `json:"html_link,omitempty"`
	MeetLink string `json:"meet_link,omitempty"`
}
