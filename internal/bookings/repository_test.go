package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/example/visitbook/internal/database"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func testCreateBooking() *CreateBooking {
	start := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	return &CreateBooking{
		Name:            "Li Wei",
		Email:           "li.wei@example.com",
		VisitorTimezone: "Asia/Shanghai",
		StartAtUTC:      start,
		EndAtUTC:        start.Add(4 * time.Hour),
		HoldExpiresAt:   time.Now().UTC().Add(6 * time.Hour),
	}
}

func TestCreate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	booking, err := repo.Create(ctx, testCreateBooking())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if booking.ID == "" {
		t.Error("Booking ID is empty")
	}
	if booking.Status != database.StatusPending {
		t.Errorf("Status = %q, want pending", booking.Status)
	}
	if booking.HoldStatus != database.HoldMissing {
		t.Errorf("HoldStatus = %q, want missing", booking.HoldStatus)
	}
	if !booking.Email.Valid || booking.Email.String != "li.wei@example.com" {
		t.Errorf("Email = %+v", booking.Email)
	}
	if booking.Phone.Valid {
		t.Error("Phone should be null when not provided")
	}
	if booking.EndAtUTC.Sub(booking.StartAtUTC) != 4*time.Hour {
		t.Errorf("Stored duration = %v", booking.EndAtUTC.Sub(booking.StartAtUTC))
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	if _, err := repo.GetByID(context.Background(), "bkg_nonexistent"); err == nil {
		t.Fatal("Expected error for missing booking")
	}
}

func TestDecide_CAS(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	booking, err := repo.Create(ctx, testCreateBooking())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ok, err := repo.Decide(ctx, booking.ID, database.StatusApproved, database.SourceAdminPanel)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !ok {
		t.Fatal("First decision should succeed")
	}

	// Second transition must be a no-op
	ok, err = repo.Decide(ctx, booking.ID, database.StatusRejected, database.SourceEmailLink)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if ok {
		t.Fatal("Second decision on a terminal booking should be rejected")
	}

	updated, err := repo.GetByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != database.StatusApproved {
		t.Errorf("Status = %q, want approved", updated.Status)
	}
	if !updated.DecidedAt.Valid {
		t.Error("DecidedAt not stamped")
	}
	if !updated.DecisionSource.Valid || updated.DecisionSource.String != database.SourceAdminPanel {
		t.Errorf("DecisionSource = %+v", updated.DecisionSource)
	}
}

func TestDecide_RejectsNonTerminal(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	booking, _ := repo.Create(ctx, testCreateBooking())
	if _, err := repo.Decide(ctx, booking.ID, database.StatusPending, database.SourceAdminPanel); err == nil {
		t.Fatal("Expected error for non-terminal target status")
	}
}

func TestSetHold(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	booking, _ := repo.Create(ctx, testCreateBooking())

	if err := repo.SetHold(ctx, booking.ID, "gcal-event-1", database.HoldCreated); err != nil {
		t.Fatalf("SetHold failed: %v", err)
	}

	updated, _ := repo.GetByID(ctx, booking.ID)
	if !updated.HoldEventID.Valid || updated.HoldEventID.String != "gcal-event-1" {
		t.Errorf("HoldEventID = %+v", updated.HoldEventID)
	}
	if updated.HoldStatus != database.HoldCreated {
		t.Errorf("HoldStatus = %q, want created", updated.HoldStatus)
	}

	if err := repo.SetHoldStatus(ctx, booking.ID, database.HoldError); err != nil {
		t.Fatalf("SetHoldStatus failed: %v", err)
	}
	updated, _ = repo.GetByID(ctx, booking.ID)
	if updated.HoldStatus != database.HoldError {
		t.Errorf("HoldStatus = %q, want error", updated.HoldStatus)
	}
}

func TestGetExpiredPending(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := testCreateBooking()
	expired.HoldExpiresAt = now.Add(-time.Hour)
	expiredBooking, _ := repo.Create(ctx, expired)

	live := testCreateBooking()
	live.HoldExpiresAt = now.Add(time.Hour)
	repo.Create(ctx, live)

	results, err := repo.GetExpiredPending(ctx, now)
	if err != nil {
		t.Fatalf("GetExpiredPending failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 expired booking, got %d", len(results))
	}
	if results[0].ID != expiredBooking.ID {
		t.Errorf("Wrong booking returned: %s", results[0].ID)
	}

	// Terminal bookings never show up even with a past expiry
	repo.Decide(ctx, expiredBooking.ID, database.StatusExpired, database.SourceMaintenance)
	results, _ = repo.GetExpiredPending(ctx, now)
	if len(results) != 0 {
		t.Errorf("Expected no expired pending bookings, got %d", len(results))
	}
}

func TestGetPendingMissingHold(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	uncovered, _ := repo.Create(ctx, testCreateBooking())

	covered, _ := repo.Create(ctx, testCreateBooking())
	repo.SetHold(ctx, covered.ID, "gcal-event-2", database.HoldCreated)

	errored, _ := repo.Create(ctx, testCreateBooking())
	repo.SetHoldStatus(ctx, errored.ID, database.HoldError)

	stale := testCreateBooking()
	stale.HoldExpiresAt = now.Add(-time.Minute)
	repo.Create(ctx, stale)

	results, err := repo.GetPendingMissingHold(ctx, now)
	if err != nil {
		t.Fatalf("GetPendingMissingHold failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 uncovered bookings, got %d", len(results))
	}

	ids := map[string]bool{}
	for _, b := range results {
		ids[b.ID] = true
	}
	if !ids[uncovered.ID] || !ids[errored.ID] {
		t.Errorf("Wrong bookings returned: %v", ids)
	}
}

func TestList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first, _ := repo.Create(ctx, testCreateBooking())
	repo.Create(ctx, testCreateBooking())
	repo.Decide(ctx, first.ID, database.StatusRejected, database.SourceAdminPanel)

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 bookings, got %d", len(all))
	}

	pending, err := repo.List(ctx, database.StatusPending, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending booking, got %d", len(pending))
	}
}

func TestCountByStatus(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	repo.Create(ctx, testCreateBooking())
	b, _ := repo.Create(ctx, testCreateBooking())
	repo.Decide(ctx, b.ID, database.StatusApproved, database.SourceEmailLink)

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[database.StatusPending] != 1 || counts[database.StatusApproved] != 1 {
		t.Errorf("Counts = %v", counts)
	}
}
