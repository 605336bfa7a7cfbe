package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/shopgrab/internal/model"
)

var (
	// ErrStale is returned when the account changed between read and write.
	ErrStale = errors.New("account modified concurrently")

	// ErrNoChange tells Update that the mutation left the account untouched.
	ErrNoChange = errors.New("no change")
)

const maxUpdateAttempts = 5

type AccountStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db, now: time.Now}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var customerID, subscriptionID sql.NullString
	var endDate sql.NullTime
	err := scanner.Scan(
		&a.ID, &a.Email, &customerID, &subscriptionID, &a.SubscriptionType, &endDate,
		&a.Credits, &a.LastFreeReset, &a.TotalCreditsUsed, &a.MonthlyQuota, &a.MonthlyUsed,
		&a.LastMonthlyReset, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		a.StripeCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		a.StripeSubscriptionID = &subscriptionID.String
	}
	if endDate.Valid {
		t := endDate.Time
		a.SubscriptionEndDate = &t
	}
	return &a, nil
}

const accountCols = `id, email, stripe_customer_id, stripe_subscription_id, subscription_type, subscription_end_date,
	credits, last_free_reset, total_credits_used, monthly_quota, monthly_used,
	last_monthly_reset, version, created_at, updated_at`

// Create inserts a free account with a full daily allowance.
func (s *AccountStore) Create(email string) (*model.Account, error) {
	now := s.now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO accounts (email, last_free_reset, last_monthly_reset, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		email, now, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccountStore) GetByID(id int64) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(email string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE email = ?`, email)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetBySubscriptionID(subscriptionID string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE stripe_subscription_id = ?`, subscriptionID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by subscription id: %w", err)
	}
	return a, nil
}

// Save writes the billing and quota fields of a, guarded by its version.
// It returns ErrStale if another writer got there first.
func (s *AccountStore) Save(a *model.Account) error {
	now := s.now().UTC()
	var endDate any
	if a.SubscriptionEndDate != nil {
		endDate = a.SubscriptionEndDate.UTC()
	}
	result, err := s.db.Exec(
		`UPDATE accounts SET
			stripe_customer_id = ?, stripe_subscription_id = ?, subscription_type = ?, subscription_end_date = ?,
			credits = ?, last_free_reset = ?, total_credits_used = ?, monthly_quota = ?, monthly_used = ?,
			last_monthly_reset = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		a.StripeCustomerID, a.StripeSubscriptionID, a.SubscriptionType, endDate,
		a.Credits, a.LastFreeReset.UTC(), a.TotalCreditsUsed, a.MonthlyQuota, a.MonthlyUsed,
		a.LastMonthlyReset.UTC(), now,
		a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStale
	}
	a.Version++
	a.UpdatedAt = now
	return nil
}

// Update loads the account, applies mutate and saves the result, retrying
// from a fresh read when a concurrent writer wins. A mutate returning
// ErrNoChange skips the write. A missing account yields (nil, nil).
func (s *AccountStore) Update(id int64, mutate func(a *model.Account) error) (*model.Account, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		a, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, nil
		}
		if err := mutate(a); err != nil {
			if errors.Is(err, ErrNoChange) {
				return a, nil
			}
			return nil, err
		}
		err = s.Save(a)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("update account %d: %w", id, ErrStale)
}

func (s *AccountStore) UpdateStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET stripe_customer_id = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		customerID, s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", err)
	}
	return nil
}
