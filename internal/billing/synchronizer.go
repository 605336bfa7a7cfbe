// Package billing maps payment provider events onto account plan state.
package billing

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/shopgrab/internal/model"
	"github.com/dukerupert/shopgrab/internal/quota"
	"github.com/dukerupert/shopgrab/internal/store"
)

// Checkout plan selectors. A day pass is a one-off credit pack.
const (
	PlanDayPass = "day_pass"
	PlanMonthly = model.PlanMonthly
	PlanPro     = model.PlanPro

	DayPassCredits = 50
)

var ErrUnknownPlan = errors.New("unknown plan type")

// CheckoutCompleted is the part of a completed checkout session the
// synchronizer needs.
type CheckoutCompleted struct {
	AccountID      int64
	PlanType       string
	SubscriptionID string
	CustomerID     string
}

type Synchronizer struct {
	accounts *store.AccountStore
	now      func() time.Time
	logger   *slog.Logger
}

func NewSynchronizer(accounts *store.AccountStore, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{accounts: accounts, now: time.Now, logger: logger}
}

// ValidPlan reports whether plan can be sold through checkout.
func ValidPlan(plan string) bool {
	switch plan {
	case PlanDayPass, PlanMonthly, PlanPro:
		return true
	}
	return false
}

// CheckoutCompleted applies a paid checkout. Events for unknown accounts
// are ignored and return a nil account.
func (s *Synchronizer) CheckoutCompleted(ev CheckoutCompleted) (*model.Account, error) {
	if !ValidPlan(ev.PlanType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, ev.PlanType)
	}

	a, err := s.accounts.Update(ev.AccountID, func(a *model.Account) error {
		now := s.now()
		if ev.CustomerID != "" && a.StripeCustomerID == nil {
			a.StripeCustomerID = &ev.CustomerID
		}
		switch ev.PlanType {
		case PlanDayPass:
			a.Credits += DayPassCredits
		case PlanMonthly:
			a.SubscriptionType = model.PlanMonthly
			a.MonthlyQuota = quota.MonthlyPlanQuota
			a.MonthlyUsed = 0
			a.LastMonthlyReset = now
			a.StripeSubscriptionID = optional(ev.SubscriptionID)
			a.SubscriptionEndDate = oneMonthFrom(now)
		case PlanPro:
			a.SubscriptionType = model.PlanPro
			a.StripeSubscriptionID = optional(ev.SubscriptionID)
			a.SubscriptionEndDate = oneMonthFrom(now)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply checkout: %w", err)
	}
	if a == nil {
		s.logger.Warn("checkout for unknown account", "account_id", ev.AccountID, "plan", ev.PlanType)
		return nil, nil
	}
	s.logger.Info("checkout applied", "account_id", a.ID, "plan", ev.PlanType)
	return a, nil
}

// SubscriptionUpdated moves the subscription end date to periodEnd.
func (s *Synchronizer) SubscriptionUpdated(subscriptionID string, periodEnd time.Time) (*model.Account, error) {
	return s.updateBySubscription(subscriptionID, func(a *model.Account) error {
		end := periodEnd.UTC()
		a.SubscriptionEndDate = &end
		return nil
	})
}

// SubscriptionDeleted returns the account to the free plan.
func (s *Synchronizer) SubscriptionDeleted(subscriptionID string) (*model.Account, error) {
	return s.updateBySubscription(subscriptionID, func(a *model.Account) error {
		a.SubscriptionType = model.PlanFree
		a.SubscriptionEndDate = nil
		a.StripeSubscriptionID = nil
		a.Credits = quota.FreeDailyCredits
		a.MonthlyUsed = 0
		return nil
	})
}

// InvoicePaid renews the period. Monthly accounts also get their usage reset.
func (s *Synchronizer) InvoicePaid(subscriptionID string) (*model.Account, error) {
	return s.updateBySubscription(subscriptionID, func(a *model.Account) error {
		now := s.now()
		switch a.SubscriptionType {
		case model.PlanMonthly:
			a.MonthlyUsed = 0
			a.LastMonthlyReset = now
			a.SubscriptionEndDate = oneMonthFrom(now)
		case model.PlanPro:
			a.SubscriptionEndDate = oneMonthFrom(now)
		default:
			return store.ErrNoChange
		}
		return nil
	})
}

// updateBySubscription applies mutate to the account holding subscriptionID.
// Unmatched ids are ignored.
func (s *Synchronizer) updateBySubscription(subscriptionID string, mutate func(a *model.Account) error) (*model.Account, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	found, err := s.accounts.GetBySubscriptionID(subscriptionID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		s.logger.Debug("no account for subscription", "subscription_id", subscriptionID)
		return nil, nil
	}

	a, err := s.accounts.Update(found.ID, func(a *model.Account) error {
		// The subscription may have been replaced between the lookup and the write.
		if a.StripeSubscriptionID == nil || *a.StripeSubscriptionID != subscriptionID {
			return store.ErrNoChange
		}
		return mutate(a)
	})
	if err != nil {
		return nil, fmt.Errorf("apply subscription change: %w", err)
	}
	return a, nil
}

func oneMonthFrom(now time.Time) *time.Time {
	end := now.AddDate(0, 1, 0)
	return &end
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
