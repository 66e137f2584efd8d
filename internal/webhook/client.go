// Package webhook delivers operator notifications for booking events. The
// created-event payload carries the one-time approve/reject links, so the
// operator can decide straight from the notification.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/util"
)

// maxQueueAttempts bounds redelivery of queued failures, independent of the
// inline retry count.
const maxQueueAttempts = 5

// Client delivers operator webhooks. It implements the engine's Notifier;
// all deliveries are best-effort and failures are queued for retry.
type Client struct {
	config     *config.Config
	db         *database.DB
	httpClient *http.Client
}

// NewClient creates a new webhook client.
func NewClient(cfg *config.Config, db *database.DB) *Client {
	timeout := 30 * time.Second
	if cfg.Notify.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Notify.TimeoutSeconds) * time.Second
	}
	return &Client{
		config: cfg,
		db:     db,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled returns whether the webhook client is configured.
func (c *Client) Enabled() bool {
	return c.config.Notify.Enabled && c.config.Notify.URL != ""
}

// BookingCreated notifies the operator of a new pending booking, including
// the action links.
func (c *Client) BookingCreated(ctx context.Context, booking *database.Booking, approveToken, rejectToken string) {
	if !c.Enabled() {
		return
	}

	payload := c.basePayload(EventBookingCreated, booking)
	payload.Message = fmt.Sprintf("New visit request from %s for %s awaiting approval",
		visitorLabel(booking), util.GetDefaultFormatter().FormatDateTimeWithZone(booking.StartAtUTC))
	payload.ApproveURL = fmt.Sprintf("%s/action/%s", c.config.Server.BaseURL, approveToken)
	payload.RejectURL = fmt.Sprintf("%s/action/%s", c.config.Server.BaseURL, rejectToken)

	c.deliver(ctx, booking.ID, payload)
}

// BookingDecided notifies the operator of a terminal transition.
func (c *Client) BookingDecided(ctx context.Context, booking *database.Booking) {
	if !c.Enabled() {
		return
	}

	event := EventBookingApproved
	switch booking.Status {
	case database.StatusRejected:
		event = EventBookingRejected
	case database.StatusExpired:
		event = EventBookingExpired
	}

	payload := c.basePayload(event, booking)
	payload.Message = fmt.Sprintf("Visit request from %s is now %s", visitorLabel(booking), booking.Status)

	c.deliver(ctx, booking.ID, payload)
}

func (c *Client) basePayload(event string, booking *database.Booking) Payload {
	return Payload{
		Event:       event,
		DeliveryID:  "whk_" + uuid.NewString(),
		BookingID:   booking.ID,
		Status:      booking.Status,
		VisitorName: booking.Name.String,
		StartAt:     booking.StartAtUTC.Format(time.RFC3339),
		EndAt:       booking.EndAtUTC.Format(time.RFC3339),
		Timezone:    booking.VisitorTimezone,
		IsUrgent:    booking.IsUrgent,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// deliver attempts delivery with retries, then queues the payload on
// persistent failure.
func (c *Client) deliver(ctx context.Context, bookingID string, payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		util.Error("Failed to marshal webhook payload", "error", err)
		return
	}

	var lastErr error
	maxAttempts := c.config.Notify.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoffSeconds := attempt * 2
			if attempt-1 < len(c.config.Notify.RetryBackoff) {
				backoffSeconds = c.config.Notify.RetryBackoff[attempt-1]
			}
			time.Sleep(time.Duration(backoffSeconds) * time.Second)
		}

		if err := c.doDelivery(ctx, data); err == nil {
			util.Info("Webhook delivered", "booking_id", bookingID, "event", payload.Event)
			return
		} else {
			lastErr = err
			util.Warn("Webhook delivery failed", "attempt", attempt+1, "error", err)
		}
	}

	c.logFailure(ctx, payload.DeliveryID, bookingID, payload.Event, data, lastErr)
}

func (c *Client) doDelivery(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.config.Notify.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "visitbook/1.0")

	if c.config.Notify.Token != "" {
		req.Header.Set("X-Visitbook-Signature", signPayload(data, c.config.Notify.Token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) logFailure(ctx context.Context, deliveryID, bookingID, event string, payload []byte, err error) {
	_, dbErr := c.db.ExecContext(ctx, `
		INSERT INTO webhook_failures (webhook_id, booking_id, event, payload, error, attempts)
		VALUES (?, ?, ?, ?, ?, 1)
	`, deliveryID, bookingID, event, string(payload), err.Error())
	if dbErr != nil {
		util.Error("Failed to log webhook failure", "error", dbErr)
	}
}

// RetryFailures attempts to redeliver queued webhook failures.
func (c *Client) RetryFailures(ctx context.Context) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, webhook_id, booking_id, payload, attempts
		FROM webhook_failures
		WHERE resolved_at IS NULL
		AND attempts < ?
		ORDER BY created_at ASC
		LIMIT 10
	`, maxQueueAttempts)
	if err != nil {
		util.Error("Failed to query webhook failures", "error", err)
		return
	}
	defer rows.Close()

	type retry struct {
		id        int64
		webhookID string
		bookingID string
		payload   string
		attempts  int
	}
	var retries []retry
	for rows.Next() {
		var r retry
		if err := rows.Scan(&r.id, &r.webhookID, &r.bookingID, &r.payload, &r.attempts); err != nil {
			continue
		}
		retries = append(retries, r)
	}
	rows.Close()

	for _, r := range retries {
		if err := c.doDelivery(ctx, []byte(r.payload)); err == nil {
			c.db.ExecContext(ctx, `UPDATE webhook_failures SET resolved_at = datetime('now') WHERE id = ?`, r.id)
			util.Info("Webhook retry succeeded", "booking_id", r.bookingID, "webhook_id", r.webhookID)
		} else {
			c.db.ExecContext(ctx, `UPDATE webhook_failures SET attempts = attempts + 1 WHERE id = ?`, r.id)
			util.Warn("Webhook retry failed", "booking_id", r.bookingID, "attempts", r.attempts+1, "error", err)
		}
	}
}

// StartRetryWorker periodically redelivers failed webhooks.
func (c *Client) StartRetryWorker(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	util.Info("Starting webhook retry worker")

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			util.Info("Webhook retry worker stopping")
			return
		case <-ticker.C:
			c.RetryFailures(ctx)
		}
	}
}

func signPayload(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func visitorLabel(booking *database.Booking) string {
	if booking.Name.Valid && booking.Name.String != "" {
		return booking.Name.String
	}
	if booking.Email.Valid && booking.Email.String != "" {
		return booking.Email.String
	}
	return "a visitor"
}
