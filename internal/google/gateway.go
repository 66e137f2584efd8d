package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/example/visitbook/internal/util"
)

// Gateway is the thin adapter in front of the Google Calendar API. Every
// call carries a bounded timeout so maintenance sweeps and approvals cannot
// hang on a stalled provider.
type Gateway struct {
	oauth   *OAuthManager
	timeout time.Duration
}

// NewGateway creates a calendar gateway over an OAuth manager.
func NewGateway(oauth *OAuthManager, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{oauth: oauth, timeout: timeout}
}

// Context resolves the connection tri-state. Unreachability is a normal
// outcome here, never an error return.
func (g *Gateway) Context(ctx context.Context) Connection {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if !g.oauth.IsConfigured() || !g.oauth.HasConnection(ctx) {
		return Connection{Connected: false, Reason: "calendar not connected"}
	}

	if _, err := g.oauth.GetValidToken(ctx); err != nil {
		return Connection{Connected: true, Reachable: false, Reason: err.Error()}
	}

	return Connection{
		Connected:  true,
		Reachable:  true,
		CalendarID: g.oauth.CalendarID(ctx),
	}
}

// CheckBusy reports whether the provider has any busy interval overlapping
// the window on the bound calendar. A provider failure returns an error and
// false; callers treat that as "no conflict" with reduced reachability.
func (g *Gateway) CheckBusy(ctx context.Context, start, end time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, calendarID, err := g.service(ctx)
	if err != nil {
		return false, err
	}

	resp, err := service.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("free/busy query failed: %w", err)
	}

	info, ok := resp.Calendars[calendarID]
	if !ok {
		return false, nil
	}
	for _, e := range info.Errors {
		return false, fmt.Errorf("free/busy error for calendar %s: %s", calendarID, e.Reason)
	}
	return len(info.Busy) > 0, nil
}

// CreateHold creates a tentative, non-notifying event spanning the window
// and returns its id. Callers keep the booking alive when this fails; the
// sweeper retries.
func (g *Gateway) CreateHold(ctx context.Context, intent HoldIntent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, calendarID, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	event := &calendar.Event{
		Summary:     holdSummary(intent),
		Description: holdDescription(intent),
		Status:      "tentative",
		Visibility:  "private",
		Start:       &calendar.EventDateTime{DateTime: intent.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: intent.End.Format(time.RFC3339)},
		Reminders:   &calendar.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}},
	}

	created, err := service.Events.Insert(calendarID, event).
		SendUpdates("none").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create hold event: %w", err)
	}

	util.Debug("Created hold event", "booking_id", intent.BookingID, "event_id", created.Id)
	return created.Id, nil
}

// ConfirmOrCreate patches an existing hold into a confirmed, attendee-
// notified event, or creates a fresh confirmed event when no hold exists.
// Provider errors propagate: approval fails loudly.
func (g *Gateway) ConfirmOrCreate(ctx context.Context, intent ConfirmIntent) (*EventResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, calendarID, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	event := &calendar.Event{
		Summary:     confirmedSummary(intent),
		Description: confirmedDescription(intent),
		Status:      "confirmed",
		Start:       &calendar.EventDateTime{DateTime: intent.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: intent.End.Format(time.RFC3339)},
		Attendees:   []*calendar.EventAttendee{{Email: intent.Email}},
	}
	if intent.NeedsMeetLink {
		event.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	var saved *calendar.Event
	if intent.EventID != "" {
		saved, err = service.Events.Patch(calendarID, intent.EventID, event).
			SendUpdates("all").
			ConferenceDataVersion(1).
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to confirm hold event %s: %w", intent.EventID, err)
		}
	} else {
		saved, err = service.Events.Insert(calendarID, event).
			SendUpdates("all").
			ConferenceDataVersion(1).
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to create confirmed event: %w", err)
		}
	}

	result := &EventResult{EventID: saved.Id, HTMLLink: saved.HtmlLink}
	if saved.ConferenceData != nil {
		for _, ep := range saved.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				result.MeetLink = ep.Uri
				break
			}
		}
	}
	return result, nil
}

// Cancel deletes an event without notifying attendees. An already-deleted
// event is treated as success.
func (g *Gateway) Cancel(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, calendarID, err := g.service(ctx)
	if err != nil {
		return err
	}

	err = service.Events.Delete(calendarID, eventID).
		SendUpdates("none").
		Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && (apiErr.Code == 404 || apiErr.Code == 410) {
			return nil
		}
		return fmt.Errorf("failed to cancel event %s: %w", eventID, err)
	}
	return nil
}

func (g *Gateway) service(ctx context.Context) (*calendar.Service, string, error) {
	httpClient, err := g.oauth.HTTPClient(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get OAuth client: %w", err)
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create calendar service: %w", err)
	}

	return service, g.oauth.CalendarID(ctx), nil
}

func holdSummary(intent HoldIntent) string {
	name := intent.VisitorName
	if name == "" {
		name = "visitor"
	}
	summary := fmt.Sprintf("[HOLD] Showroom visit - %s", name)
	if intent.IsUrgent {
		summary = "[URGENT] " + summary
	}
	return summary
}

func holdDescription(intent HoldIntent) string {
	var b strings.Builder
	b.WriteString("Tentative showroom visit awaiting approval.\n\n")
	writeVisitorDetails(&b, intent.VisitorName, intent.Email, intent.Phone, intent.Purpose, intent.Notes)
	fmt.Fprintf(&b, "\nBooking: %s\n", intent.BookingID)
	return b.String()
}

func confirmedSummary(intent ConfirmIntent) string {
	name := intent.VisitorName
	if name == "" {
		name = intent.Email
	}
	return fmt.Sprintf("Showroom visit - %s", name)
}

func confirmedDescription(intent ConfirmIntent) string {
	var b strings.Builder
	b.WriteString("Confirmed showroom visit.\n\n")
	writeVisitorDetails(&b, intent.VisitorName, intent.Email, "", intent.Purpose, intent.Notes)
	fmt.Fprintf(&b, "\nBooking: %s\n", intent.BookingID)
	return b.String()
}

func writeVisitorDetails(b *strings.Builder, name, email, phone, purpose, notes string) {
	if name != "" {
		fmt.Fprintf(b, "Name: %s\n", name)
	}
	if email != "" {
		fmt.Fprintf(b, "Email: %s\n", email)
	}
	if phone != "" {
		fmt.Fprintf(b, "Phone: %s\n", phone)
	}
	if purpose != "" {
		fmt.Fprintf(b, "Purpose: %s\n", purpose)
	}
	if notes != "" {
		fmt.Fprintf(b, "Notes: %s\n", notes)
	}
}
