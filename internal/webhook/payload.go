package webhook

// Payload is the JSON body delivered to the operator webhook.
type Payload struct {
	Event       string `json:"event"`
	DeliveryID  string `json:"delivery_id"`
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	VisitorName string `json:"visitor_name,omitempty"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
	Timezone    string `json:"visitor_timezone,omitempty"`
	IsUrgent    bool   `json:"is_urgent,omitempty"`
	ApproveURL  string `json:"approve_url,omitempty"`
	RejectURL   string `json:"reject_url,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Event types for operator notifications.
const (
	EventBookingCreated  = "booking.created"
	EventBookingApproved = "booking.approved"
	EventBookingRejected = "booking.rejected"
	EventBookingExpired  = "booking.expired"
)
