package store

import (
	"testing"
	"time"

	"github.com/dukerupert/shopgrab/internal/database"
)

func setupMagicLinkTestDB(t *testing.T) *MagicLinkStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMagicLinkStore(db)
}

func TestMagicLinkCreate(t *testing.T) {
	ms := setupMagicLinkTestDB(t)

	ml, err := ms.Create("  Alice@Example.com ")
	if err != nil {
		t.Fatalf("create magic link: %v", err)
	}
	if len(ml.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(ml.Token))
	}
	if ml.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized address", ml.Email)
	}
	if ml.UsedAt != nil {
		t.Errorf("used_at = %v, want nil", ml.UsedAt)
	}
}

func TestMagicLinkRedeemOnce(t *testing.T) {
	ms := setupMagicLinkTestDB(t)
	created, _ := ms.Create("alice@example.com")

	ml, err := ms.Redeem(created.Token)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if ml == nil || ml.Email != "alice@example.com" {
		t.Fatalf("redeem = %+v, want alice", ml)
	}
	if ml.UsedAt == nil {
		t.Error("expected used_at to be set")
	}

	again, err := ms.Redeem(created.Token)
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if again != nil {
		t.Error("expected second redeem to return nil")
	}
}

func TestMagicLinkRedeemUnknown(t *testing.T) {
	ms := setupMagicLinkTestDB(t)

	ml, err := ms.Redeem("nonexistent")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if ml != nil {
		t.Errorf("expected nil, got %+v", ml)
	}
}

func TestMagicLinkRedeemExpired(t *testing.T) {
	ms := setupMagicLinkTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return start }
	created, _ := ms.Create("alice@example.com")

	ms.now = func() time.Time { return start.Add(16 * time.Minute) }
	ml, err := ms.Redeem(created.Token)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if ml != nil {
		t.Error("expected expired link to be rejected")
	}
}

func TestMagicLinkCreateInvalidatesPrevious(t *testing.T) {
	ms := setupMagicLinkTestDB(t)
	first, _ := ms.Create("alice@example.com")
	second, _ := ms.Create("alice@example.com")

	if ml, _ := ms.Redeem(first.Token); ml != nil {
		t.Error("expected first link to be invalidated")
	}
	if ml, _ := ms.Redeem(second.Token); ml == nil {
		t.Error("expected latest link to redeem")
	}
}

func TestMagicLinkDeleteExpired(t *testing.T) {
	ms := setupMagicLinkTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return start }
	ms.Create("alice@example.com")
	ms.Create("bob@example.com")

	ms.now = func() time.Time { return start.Add(time.Hour) }
	n, err := ms.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
}
