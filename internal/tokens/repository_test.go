package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/example/visitbook/internal/bookings"
	"github.com/example/visitbook/internal/database"
)

func setupTestRepo(t *testing.T) (*Repository, string) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Tokens reference a booking row
	start := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	booking, err := bookings.NewRepository(db).Create(context.Background(), &bookings.CreateBooking{
		Email:           "li.wei@example.com",
		VisitorTimezone: "Asia/Shanghai",
		StartAtUTC:      start,
		EndAtUTC:        start.Add(4 * time.Hour),
		HoldExpiresAt:   time.Now().UTC().Add(6 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to create booking: %v", err)
	}

	return NewRepository(db), booking.ID
}

func TestInsertAndGetByHash(t *testing.T) {
	repo, bookingID := setupTestRepo(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(6 * time.Hour)

	token, err := repo.Insert(ctx, bookingID, database.ActionApprove, "hash-approve", expires)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if token.Action != database.ActionApprove {
		t.Errorf("Action = %q", token.Action)
	}
	if token.UsedAt.Valid {
		t.Error("New token should be unused")
	}

	found, err := repo.GetByHash(ctx, "hash-approve")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if found.ID != token.ID {
		t.Errorf("Wrong token: %s", found.ID)
	}
	if !IsUsable(found, time.Now().UTC()) {
		t.Error("Fresh token should be usable")
	}
}

func TestGetByHash_NotFound(t *testing.T) {
	repo, _ := setupTestRepo(t)

	if _, err := repo.GetByHash(context.Background(), "no-such-hash"); err == nil {
		t.Fatal("Expected error for unknown hash")
	}
}

func TestInsert_DuplicateHash(t *testing.T) {
	repo, bookingID := setupTestRepo(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	if _, err := repo.Insert(ctx, bookingID, database.ActionApprove, "same-hash", expires); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(ctx, bookingID, database.ActionReject, "same-hash", expires); err == nil {
		t.Fatal("Expected unique constraint violation for duplicate hash")
	}
}

func TestIsUsable_Used(t *testing.T) {
	repo, bookingID := setupTestRepo(t)
	ctx := context.Background()

	token, _ := repo.Insert(ctx, bookingID, database.ActionReject, "hash-reject", time.Now().UTC().Add(time.Hour))

	if err := repo.InvalidateForBooking(ctx, bookingID); err != nil {
		t.Fatalf("InvalidateForBooking failed: %v", err)
	}

	used, _ := repo.GetByID(ctx, token.ID)
	if IsUsable(used, time.Now().UTC()) {
		t.Error("Used token must not be usable")
	}
}

func TestIsUsable_Expired(t *testing.T) {
	repo, bookingID := setupTestRepo(t)
	ctx := context.Background()

	token, _ := repo.Insert(ctx, bookingID, database.ActionApprove, "hash-old", time.Now().UTC().Add(-time.Minute))
	if IsUsable(token, time.Now().UTC()) {
		t.Error("Expired token must not be usable")
	}
}

func TestInvalidateForBooking(t *testing.T) {
	repo, bookingID := setupTestRepo(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(6 * time.Hour)

	approve, _ := repo.Insert(ctx, bookingID, database.ActionApprove, "hash-a", expires)
	reject, _ := repo.Insert(ctx, bookingID, database.ActionReject, "hash-r", expires)

	if err := repo.InvalidateForBooking(ctx, bookingID); err != nil {
		t.Fatalf("InvalidateForBooking failed: %v", err)
	}

	for _, id := range []string{approve.ID, reject.ID} {
		token, _ := repo.GetByID(ctx, id)
		if !token.UsedAt.Valid {
			t.Errorf("Token %s not invalidated", id)
		}
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, bookingID := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	repo.Insert(ctx, bookingID, database.ActionApprove, "hash-stale", now.Add(-48*time.Hour))
	live, _ := repo.Insert(ctx, bookingID, database.ActionReject, "hash-live", now.Add(time.Hour))

	deleted, err := repo.DeleteExpired(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", deleted)
	}

	if _, err := repo.GetByID(ctx, live.ID); err != nil {
		t.Errorf("Live token should survive cleanup: %v", err)
	}
}
