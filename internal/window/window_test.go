package window

import (
	"strings"
	"testing"
	"time"
)

func testPolicy(t *testing.T) Policy {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	return Policy{
		MinDuration:      4 * time.Hour,
		MaxDuration:      12 * time.Hour,
		BusinessLocation: loc,
		OpenHour:         7,
		CloseHour:        21,
	}
}

func validSubmission() Submission {
	return Submission{
		Start:    "2025-03-10T09:00",
		End:      "2025-03-10T13:00",
		Timezone: "Asia/Shanghai",
		Name:     "Li Wei",
		Email:    "li.wei@example.com",
	}
}

func hasError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestNormalize_Valid(t *testing.T) {
	result := Normalize(validSubmission(), testPolicy(t))
	if !result.OK() {
		t.Fatalf("Expected valid submission, got errors: %v", result.Errors)
	}

	n := result.Normalized
	if n == nil {
		t.Fatal("Normalized is nil for a valid submission")
	}
	if n.VisitorTimezone != "Asia/Shanghai" {
		t.Errorf("VisitorTimezone = %q", n.VisitorTimezone)
	}
	// 09:00 Shanghai is 01:00 UTC
	wantStart := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	if !n.StartUTC.Equal(wantStart) {
		t.Errorf("StartUTC = %v, want %v", n.StartUTC, wantStart)
	}
	if n.EndUTC.Sub(n.StartUTC) != 4*time.Hour {
		t.Errorf("Duration = %v, want 4h", n.EndUTC.Sub(n.StartUTC))
	}
	if n.OutsideWorkingWindow {
		t.Error("09:00-13:00 Shanghai should be inside the business window")
	}
}

func TestNormalize_CrossTimezone(t *testing.T) {
	// 21:00 New York (EDT) is 09:00 next-day Shanghai
	sub := validSubmission()
	sub.Start = "2025-03-10T21:00"
	sub.End = "2025-03-11T01:00"
	sub.Timezone = "America/New_York"

	result := Normalize(sub, testPolicy(t))
	if !result.OK() {
		t.Fatalf("Expected valid submission, got errors: %v", result.Errors)
	}
	if result.Normalized.OutsideWorkingWindow {
		t.Error("Window maps to 09:00-13:00 Shanghai, should be inside business hours")
	}
}

func TestNormalize_EndBeforeStart(t *testing.T) {
	sub := validSubmission()
	sub.Start = "2025-03-10T13:00"
	sub.End = "2025-03-10T09:00"

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for end before start")
	}
	if !hasError(result.Errors, "end time must be after start time") {
		t.Errorf("Missing end-after-start error: %v", result.Errors)
	}
}

func TestNormalize_EndEqualsStart(t *testing.T) {
	sub := validSubmission()
	sub.End = sub.Start

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for zero-length window")
	}
}

func TestNormalize_DurationBoundaries(t *testing.T) {
	cases := []struct {
		name  string
		start string
		end   string
		valid bool
	}{
		{"just under minimum", "2025-03-10T09:00", "2025-03-10T12:59", false},
		{"exactly minimum", "2025-03-10T09:00", "2025-03-10T13:00", true},
		{"exactly maximum", "2025-03-10T08:00", "2025-03-10T20:00", true},
		{"just over maximum", "2025-03-10T08:00", "2025-03-10T20:01", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := validSubmission()
			sub.Start = tc.start
			sub.End = tc.end

			result := Normalize(sub, testPolicy(t))
			if result.OK() != tc.valid {
				t.Errorf("OK() = %v, want %v (errors: %v)", result.OK(), tc.valid, result.Errors)
			}
		})
	}
}

func TestNormalize_OffHourAlignment(t *testing.T) {
	sub := validSubmission()
	sub.Start = "2025-03-10T09:30"
	sub.End = "2025-03-10T13:30"

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for off-hour start")
	}
	if !hasError(result.Errors, "on the hour") {
		t.Errorf("Missing alignment error: %v", result.Errors)
	}
}

func TestNormalize_OutsideWindowRequiresUrgent(t *testing.T) {
	sub := validSubmission()
	sub.Start = "2025-03-10T22:00"
	sub.End = "2025-03-11T02:00"

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for a 22:00 start without urgent flag")
	}
	if !result.RequiresUrgent {
		t.Error("RequiresUrgent should be set")
	}
	if !result.OutsideWorkingWindow {
		t.Error("OutsideWorkingWindow should be set")
	}
	if !hasError(result.Errors, "urgent") {
		t.Errorf("Missing urgent-override error: %v", result.Errors)
	}
}

func TestNormalize_OutsideWindowUrgentOverride(t *testing.T) {
	sub := validSubmission()
	sub.Start = "2025-03-10T22:00"
	sub.End = "2025-03-11T02:00"
	sub.IsUrgent = true

	result := Normalize(sub, testPolicy(t))
	if !result.OK() {
		t.Fatalf("Urgent flag should allow an out-of-window time, got: %v", result.Errors)
	}
	if !result.Normalized.OutsideWorkingWindow {
		t.Error("OutsideWorkingWindow should still be recorded")
	}
}

func TestNormalize_WindowEdges(t *testing.T) {
	cases := []struct {
		name    string
		start   string
		end     string
		outside bool
	}{
		{"opens at 07:00", "2025-03-10T07:00", "2025-03-10T11:00", false},
		{"ends at 21:00", "2025-03-10T17:00", "2025-03-10T21:00", false},
		{"starts before open", "2025-03-10T06:00", "2025-03-10T10:00", true},
		{"ends past close", "2025-03-10T18:00", "2025-03-10T22:00", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := validSubmission()
			sub.Start = tc.start
			sub.End = tc.end
			sub.IsUrgent = true // isolate the window computation

			result := Normalize(sub, testPolicy(t))
			if !result.OK() {
				t.Fatalf("Unexpected errors: %v", result.Errors)
			}
			if result.Normalized.OutsideWorkingWindow != tc.outside {
				t.Errorf("OutsideWorkingWindow = %v, want %v", result.Normalized.OutsideWorkingWindow, tc.outside)
			}
		})
	}
}

func TestNormalize_MissingContact(t *testing.T) {
	sub := validSubmission()
	sub.Email = ""
	sub.Phone = ""

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection with no contact channel")
	}
	if !hasError(result.Errors, "email or phone") {
		t.Errorf("Missing contact error: %v", result.Errors)
	}
}

func TestNormalize_PhoneOnly(t *testing.T) {
	sub := validSubmission()
	sub.Email = ""
	sub.Phone = "+86 21 5555 0100"

	result := Normalize(sub, testPolicy(t))
	if !result.OK() {
		t.Fatalf("Phone-only submission should pass: %v", result.Errors)
	}
}

func TestNormalize_BadEmail(t *testing.T) {
	sub := validSubmission()
	sub.Email = "not-an-address"

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for malformed email")
	}
}

func TestNormalize_InvalidTimezone(t *testing.T) {
	sub := validSubmission()
	sub.Timezone = "Mars/Olympus_Mons"

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for unknown timezone")
	}
	if !hasError(result.Errors, "timezone") {
		t.Errorf("Missing timezone error: %v", result.Errors)
	}
}

func TestNormalize_UnparseableStart(t *testing.T) {
	sub := validSubmission()
	sub.Start = "next tuesday"

	result := Normalize(sub, testPolicy(t))
	if result.OK() {
		t.Fatal("Expected rejection for unparseable start")
	}
	if !hasError(result.Errors, "start time") {
		t.Errorf("Missing start error: %v", result.Errors)
	}
}

func TestNormalize_AccumulatesErrors(t *testing.T) {
	sub := Submission{
		Start:    "garbage",
		End:      "",
		Timezone: "Nowhere/At_All",
	}

	result := Normalize(sub, testPolicy(t))
	if len(result.Errors) < 3 {
		t.Fatalf("Expected contact, timezone and datetime errors together, got: %v", result.Errors)
	}
}

func TestNormalize_TrimsFields(t *testing.T) {
	sub := validSubmission()
	sub.Name = "  Li Wei  "
	sub.Purpose = "\tshowroom tour\n"

	result := Normalize(sub, testPolicy(t))
	if !result.OK() {
		t.Fatalf("Unexpected errors: %v", result.Errors)
	}
	if result.Normalized.Name != "Li Wei" {
		t.Errorf("Name not trimmed: %q", result.Normalized.Name)
	}
	if result.Normalized.Purpose != "showroom tour" {
		t.Errorf("Purpose not trimmed: %q", result.Normalized.Purpose)
	}
}

func TestNormalize_RFC3339Input(t *testing.T) {
	sub := validSubmission()
	// 01:00Z is 09:00 Shanghai
	sub.Start = "2025-03-10T01:00:00Z"
	sub.End = "2025-03-10T05:00:00Z"

	result := Normalize(sub, testPolicy(t))
	if !result.OK() {
		t.Fatalf("RFC3339 input should parse: %v", result.Errors)
	}
	if !result.Normalized.StartUTC.Equal(time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("StartUTC = %v", result.Normalized.StartUTC)
	}
}
