package store

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/shopgrab/internal/database"
	"github.com/dukerupert/shopgrab/internal/model"
)

func setupAccountTestDB(t *testing.T) *AccountStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccountStore(db)
}

func TestAccountCreate(t *testing.T) {
	s := setupAccountTestDB(t)

	a, err := s.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", a.Email, "alice@example.com")
	}
	if a.SubscriptionType != model.PlanFree {
		t.Errorf("subscription type = %q, want free", a.SubscriptionType)
	}
	if a.Credits != 3 {
		t.Errorf("credits = %d, want 3", a.Credits)
	}
	if a.MonthlyQuota != 200 {
		t.Errorf("monthly quota = %d, want 200", a.MonthlyQuota)
	}
	if a.StripeCustomerID != nil || a.StripeSubscriptionID != nil || a.SubscriptionEndDate != nil {
		t.Error("expected nil stripe fields and end date")
	}
	if a.LastFreeReset.IsZero() {
		t.Error("expected last free reset to be set")
	}
}

func TestAccountGetByIDNotFound(t *testing.T) {
	s := setupAccountTestDB(t)

	a, err := s.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if a != nil {
		t.Error("expected nil for nonexistent id")
	}
}

func TestAccountGetByEmail(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice@example.com")
	a, err := s.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if a == nil || a.ID != created.ID {
		t.Fatalf("got %+v, want id %d", a, created.ID)
	}

	missing, err := s.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent email")
	}
}

func TestAccountDuplicateEmail(t *testing.T) {
	s := setupAccountTestDB(t)

	if _, err := s.Create("alice@example.com"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.Create("alice@example.com"); err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestAccountSaveRoundTrip(t *testing.T) {
	s := setupAccountTestDB(t)

	a, _ := s.Create("alice@example.com")
	end := time.Date(2026, 11, 14, 12, 0, 0, 0, time.UTC)
	sub := "sub_123"
	a.SubscriptionType = model.PlanMonthly
	a.SubscriptionEndDate = &end
	a.StripeSubscriptionID = &sub
	a.MonthlyUsed = 7
	a.TotalCreditsUsed = 9

	if err := s.Save(a); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := s.GetBySubscriptionID("sub_123")
	if got == nil {
		t.Fatal("expected account by subscription id")
	}
	if got.SubscriptionType != model.PlanMonthly || got.MonthlyUsed != 7 || got.TotalCreditsUsed != 9 {
		t.Errorf("unexpected account after save: %+v", got)
	}
	if got.SubscriptionEndDate == nil || !got.SubscriptionEndDate.Equal(end) {
		t.Errorf("end date = %v, want %v", got.SubscriptionEndDate, end)
	}
	if got.Version != a.Version {
		t.Errorf("version = %d, want %d", got.Version, a.Version)
	}
}

func TestAccountSaveStale(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice@example.com")
	first, _ := s.GetByID(created.ID)
	second, _ := s.GetByID(created.ID)

	first.Credits = 2
	if err := s.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second.Credits = 2
	if err := s.Save(second); !errors.Is(err, ErrStale) {
		t.Fatalf("second save err = %v, want ErrStale", err)
	}
}

func TestAccountUpdateRetriesAfterStale(t *testing.T) {
	s := setupAccountTestDB(t)
	created, _ := s.Create("alice@example.com")

	calls := 0
	got, err := s.Update(created.ID, func(a *model.Account) error {
		calls++
		if calls == 1 {
			// Simulate another writer landing between our read and write.
			other, _ := s.GetByID(a.ID)
			other.TotalCreditsUsed = 100
			if err := s.Save(other); err != nil {
				t.Fatalf("concurrent save: %v", err)
			}
		}
		a.Credits--
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls != 2 {
		t.Errorf("mutate calls = %d, want 2", calls)
	}
	if got.Credits != 2 || got.TotalCreditsUsed != 100 {
		t.Errorf("credits=%d total=%d, want 2 and 100", got.Credits, got.TotalCreditsUsed)
	}
}

func TestAccountUpdateNoChange(t *testing.T) {
	s := setupAccountTestDB(t)
	created, _ := s.Create("alice@example.com")

	got, err := s.Update(created.ID, func(a *model.Account) error { return ErrNoChange })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Version != created.Version {
		t.Errorf("version = %d, want unchanged %d", got.Version, created.Version)
	}
}

func TestAccountUpdateMissing(t *testing.T) {
	s := setupAccountTestDB(t)

	got, err := s.Update(42, func(a *model.Account) error {
		t.Fatal("mutate should not run for a missing account")
		return nil
	})
	if err != nil || got != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", got, err)
	}
}

func TestAccountUpdateStripeCustomerID(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice@example.com")
	if err := s.UpdateStripeCustomerID(created.ID, "cus_123"); err != nil {
		t.Fatalf("update stripe id: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a.StripeCustomerID == nil || *a.StripeCustomerID != "cus_123" {
		t.Errorf("stripe_customer_id = %v, want %q", a.StripeCustomerID, "cus_123")
	}
	if a.Version == created.Version {
		t.Error("expected version bump so in-flight saves become stale")
	}
}
