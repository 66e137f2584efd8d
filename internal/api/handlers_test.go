package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/visitbook/internal/bookings"
	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/engine"
	"github.com/example/visitbook/internal/google"
	"github.com/example/visitbook/internal/response"
	"github.com/example/visitbook/internal/tokens"
	"github.com/example/visitbook/internal/util"
	"github.com/example/visitbook/internal/window"
)

// fakeGateway substitutes for the real calendar gateway.
type fakeGateway struct {
	connected bool
	reachable bool
	busy      bool
	nextEvent int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{connected: true, reachable: true}
}

func (f *fakeGateway) Context(ctx context.Context) google.Connection {
	reason := ""
	if !f.connected {
		reason = "no stored connection"
	} else if !f.reachable {
		reason = "provider unreachable"
	}
	return google.Connection{Connected: f.connected, Reachable: f.connected && f.reachable, Reason: reason}
}

func (f *fakeGateway) CheckBusy(ctx context.Context, start, end time.Time) (bool, error) {
	return f.busy, nil
}

func (f *fakeGateway) CreateHold(ctx context.Context, intent google.HoldIntent) (string, error) {
	f.nextEvent++
	return fmt.Sprintf("evt-%d", f.nextEvent), nil
}

func (f *fakeGateway) ConfirmOrCreate(ctx context.Context, intent google.ConfirmIntent) (*google.EventResult, error) {
	eventID := intent.EventID
	if eventID == "" {
		f.nextEvent++
		eventID = fmt.Sprintf("evt-%d", f.nextEvent)
	}
	return &google.EventResult{EventID: eventID}, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, eventID string) error {
	return nil
}

func setupTestHandler(t *testing.T) (*Handler, *fakeGateway) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Booking: config.BookingConfig{
			MinDuration:      4 * time.Hour,
			MaxDuration:      12 * time.Hour,
			HoldTTL:          6 * time.Hour,
			BusinessTimezone: "Asia/Shanghai",
			OpenHour:         7,
			CloseHour:        21,
		},
		Display: config.DisplayConfig{
			Timezone:       "Asia/Shanghai",
			DatetimeFormat: "Jan 2, 2006 at 3:04 PM",
		},
		Auth: config.AuthConfig{
			SecretKey:     "api-test-secret-key",
			EncryptionKey: "api-test-encryption-key",
		},
	}

	signer, err := crypto.NewTokenSigner(cfg.Auth.SecretKey)
	if err != nil {
		t.Fatalf("NewTokenSigner failed: %v", err)
	}
	encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}

	formatter, err := util.NewDisplayFormatter(cfg.Display.Timezone, cfg.Display.DatetimeFormat)
	if err != nil {
		t.Fatalf("NewDisplayFormatter failed: %v", err)
	}
	util.SetDefaultFormatter(formatter)

	gateway := newFakeGateway()
	audit := engine.NewAuditLogger(db)
	eng := engine.NewEngine(cfg, bookings.NewRepository(db), tokens.NewRepository(db),
		gateway, signer, audit)
	oauth := google.NewOAuthManager(cfg, db, encryptor)

	return NewHandler(cfg, eng, oauth, gateway, audit, db), gateway
}

func validSubmission() window.Submission {
	return window.Submission{
		Start:    "2025-03-10T09:00",
		End:      "2025-03-10T13:00",
		Timezone: "Asia/Shanghai",
		Name:     "Li Wei",
		Email:    "li.wei@example.com",
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}

	req := httptest.NewRequest("POST", target, strings.NewReader(string(data)))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) response.APIError {
	t.Helper()

	var body response.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body.Error
}

func TestCreateBooking(t *testing.T) {
	h, _ := setupTestHandler(t)

	rr := postJSON(t, h.CreateBooking, "/api/v1/bookings", validSubmission())
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)

	booking, ok := body["booking"].(map[string]interface{})
	if !ok {
		t.Fatalf("response missing booking object")
	}
	if booking["status"] != "pending" {
		t.Errorf("expected pending status, got %v", booking["status"])
	}
	if booking["hold_status"] != "created" {
		t.Errorf("expected created hold status, got %v", booking["hold_status"])
	}
	if booking["start_at"] != "2025-03-10T01:00:00Z" {
		t.Errorf("start_at mismatch: got %v", booking["start_at"])
	}
	if booking["start_display"] != "Mar 10, 2025 at 9:00 AM CST" {
		t.Errorf("start_display mismatch: got %v", booking["start_display"])
	}
	if booking["hold_expires_in"] == "" || booking["hold_expires_in"] == nil {
		t.Errorf("expected a hold countdown for a pending booking")
	}

	approve, _ := body["approve_token"].(string)
	reject, _ := body["reject_token"].(string)
	if approve == "" || reject == "" {
		t.Fatalf("expected both action tokens in response")
	}
	if approve == reject {
		t.Errorf("approve and reject tokens must differ")
	}
}

func TestCreateBookingInvalidJSON(t *testing.T) {
	h, _ := setupTestHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/bookings", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.CreateBooking(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Code != response.ErrCodeValidationError {
		t.Errorf("expected VALIDATION_ERROR, got %s", apiErr.Code)
	}
}

func TestCreateBookingValidationFailure(t *testing.T) {
	h, _ := setupTestHandler(t)

	sub := validSubmission()
	sub.End = "2025-03-10T08:00"

	rr := postJSON(t, h.CreateBooking, "/api/v1/bookings", sub)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	apiErr := decodeError(t, rr)
	if apiErr.Code != response.ErrCodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %s", apiErr.Code)
	}
	if _, ok := apiErr.Details["errors"]; !ok {
		t.Errorf("expected error details to carry the rejection reasons")
	}
}

func TestCreateBookingConflict(t *testing.T) {
	h, gw := setupTestHandler(t)
	gw.busy = true

	rr := postJSON(t, h.CreateBooking, "/api/v1/bookings", validSubmission())
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Code != response.ErrCodeSlotUnavailable {
		t.Errorf("expected SLOT_UNAVAILABLE, got %s", apiErr.Code)
	}
}

func TestValidateBooking(t *testing.T) {
	h, _ := setupTestHandler(t)

	rr := postJSON(t, h.ValidateBooking, "/api/v1/bookings/validate", validSubmission())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := decodeBody(t, rr)
	if body["valid"] != true {
		t.Errorf("expected valid submission, got %v", rr.Body.String())
	}
	if body["google_connected"] != true {
		t.Errorf("expected google_connected true")
	}
}

func TestActionTokenApprove(t *testing.T) {
	h, _ := setupTestHandler(t)

	created := postJSON(t, h.CreateBooking, "/api/v1/bookings", validSubmission())
	if created.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", created.Code)
	}
	approve := decodeBody(t, created)["approve_token"].(string)

	req := httptest.NewRequest("GET", "/action/"+approve, nil)
	req.SetPathValue("token", approve)
	rr := httptest.NewRecorder()
	h.ActionToken(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["action"] != "approve" {
		t.Errorf("expected approve action, got %v", body["action"])
	}
	booking := body["booking"].(map[string]interface{})
	if booking["status"] != "approved" {
		t.Errorf("expected approved status, got %v", booking["status"])
	}

	// The token is single-use; a second presentation is rejected
	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/action/"+approve, nil)
	req2.SetPathValue("token", approve)
	h.ActionToken(rr2, req2)

	if rr2.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 on reuse, got %d", rr2.Code)
	}
}

func TestActionTokenInvalid(t *testing.T) {
	h, _ := setupTestHandler(t)

	req := httptest.NewRequest("GET", "/action/garbage", nil)
	req.SetPathValue("token", "garbage")
	rr := httptest.NewRecorder()
	h.ActionToken(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Code != response.ErrCodeInvalidToken {
		t.Errorf("expected INVALID_TOKEN, got %s", apiErr.Code)
	}
}

func TestApproveBookingEmailRequired(t *testing.T) {
	h, _ := setupTestHandler(t)

	sub := validSubmission()
	sub.Email = ""
	sub.Phone = "+86 21 5555 0100"

	created := postJSON(t, h.CreateBooking, "/api/v1/bookings", sub)
	if created.Code != http.StatusCreated {
		t.Fatalf("create failed: %d: %s", created.Code, created.Body.String())
	}
	bookingID := decodeBody(t, created)["booking"].(map[string]interface{})["id"].(string)

	req := httptest.NewRequest("POST", "/api/v1/admin/bookings/"+bookingID+"/approve", nil)
	req.SetPathValue("id", bookingID)
	rr := httptest.NewRecorder()
	h.ApproveBooking(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if apiErr := decodeError(t, rr); apiErr.Code != response.ErrCodeEmailRequired {
		t.Errorf("expected EMAIL_REQUIRED, got %s", apiErr.Code)
	}

	// Supplying an override lets the approval through
	body := strings.NewReader(`{"email_override":"front.desk@example.com"}`)
	req2 := httptest.NewRequest("POST", "/api/v1/admin/bookings/"+bookingID+"/approve", body)
	req2.SetPathValue("id", bookingID)
	rr2 := httptest.NewRecorder()
	h.ApproveBooking(rr2, req2)

	if rr2.Code != http.StatusOK {
		t.Fatalf("expected status 200 with override, got %d: %s", rr2.Code, rr2.Body.String())
	}
}

func TestRejectBookingAlreadyDecided(t *testing.T) {
	h, _ := setupTestHandler(t)

	created := postJSON(t, h.CreateBooking, "/api/v1/bookings", validSubmission())
	bookingID := decodeBody(t, created)["booking"].(map[string]interface{})["id"].(string)

	reject := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/admin/bookings/"+bookingID+"/reject", nil)
		req.SetPathValue("id", bookingID)
		rr := httptest.NewRecorder()
		h.RejectBooking(rr, req)
		return rr
	}

	if rr := reject(); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := reject()
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Code != response.ErrCodeAlreadyDecided {
		t.Fatalf("expected ALREADY_DECIDED, got %s", apiErr.Code)
	}
	if apiErr.Details["status"] != "rejected" {
		t.Errorf("expected rejected in details, got %v", apiErr.Details)
	}
}

func TestGetBookingNotFound(t *testing.T) {
	h, _ := setupTestHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/admin/bookings/bk_missing", nil)
	req.SetPathValue("id", "bk_missing")
	rr := httptest.NewRecorder()
	h.GetBooking(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestListBookingsStatusFilter(t *testing.T) {
	h, _ := setupTestHandler(t)

	postJSON(t, h.CreateBooking, "/api/v1/bookings", validSubmission())

	req := httptest.NewRequest("GET", "/api/v1/admin/bookings?status=pending", nil)
	rr := httptest.NewRecorder()
	h.ListBookings(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	items := decodeBody(t, rr)["bookings"].([]interface{})
	if len(items) != 1 {
		t.Errorf("expected 1 pending booking, got %d", len(items))
	}

	bad := httptest.NewRequest("GET", "/api/v1/admin/bookings?status=bogus", nil)
	rrBad := httptest.NewRecorder()
	h.ListBookings(rrBad, bad)
	if rrBad.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bogus filter, got %d", rrBad.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _ := setupTestHandler(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	h.Health(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	if body["google_connected"] != false {
		t.Errorf("expected google_connected false without a stored connection")
	}
}
