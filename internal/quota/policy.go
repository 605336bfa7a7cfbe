package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/shopgrab/internal/model"
)

const (
	FreeDailyCredits = 3
	MonthlyPlanQuota = 200
	ProDailyFairUse  = 500

	// UnlimitedCredits is reported as the available balance of pro accounts.
	UnlimitedCredits = 999999

	FreeWindow    = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

var (
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrFairUseExceeded = errors.New("fair use limit exceeded")
)

type Step string

const (
	StepLegacyMigrated Step = "legacy_migrated"
	StepExpired        Step = "expired"
	StepMonthlyReset   Step = "monthly_reset"
	StepFreeReset      Step = "free_reset"
)

// Rollover applies the time-based plan transitions to a in order and
// returns the steps that fired. An empty result means a was not modified.
func Rollover(a *model.Account, now time.Time) []Step {
	var steps []Step

	if a.SubscriptionType == model.PlanLegacyDayPass {
		a.SubscriptionType = model.PlanFree
		a.SubscriptionEndDate = nil
		steps = append(steps, StepLegacyMigrated)
	}

	if a.IsSubscribed() && a.SubscriptionEndDate != nil && a.SubscriptionEndDate.Before(now) {
		a.SubscriptionType = model.PlanFree
		a.SubscriptionEndDate = nil
		a.StripeSubscriptionID = nil
		a.Credits = FreeDailyCredits
		a.LastFreeReset = now
		steps = append(steps, StepExpired)
	}

	if a.SubscriptionType == model.PlanMonthly && now.Sub(a.LastMonthlyReset) >= MonthlyWindow {
		a.MonthlyUsed = 0
		a.LastMonthlyReset = now
		steps = append(steps, StepMonthlyReset)
	}

	// An account demoted above already has a fresh free window.
	if a.SubscriptionType == model.PlanFree && now.Sub(a.LastFreeReset) >= FreeWindow {
		a.Credits = FreeDailyCredits
		a.LastFreeReset = now
		steps = append(steps, StepFreeReset)
	}

	return steps
}

// Admit reports whether a may start one more extraction. jobsToday is only
// consulted for pro accounts.
func Admit(a *model.Account, jobsToday int) error {
	switch a.SubscriptionType {
	case model.PlanMonthly:
		if a.MonthlyUsed >= a.MonthlyQuota {
			return fmt.Errorf("%w: monthly quota of %d extractions reached, upgrade to pro for unlimited use", ErrQuotaExceeded, a.MonthlyQuota)
		}
	case model.PlanPro:
		if jobsToday >= ProDailyFairUse {
			return fmt.Errorf("%w: %d extractions per day, contact us if you need more", ErrFairUseExceeded, ProDailyFairUse)
		}
	default:
		if a.Credits <= 0 {
			return fmt.Errorf("%w: no credits left, buy a credit pack or choose a subscription", ErrQuotaExceeded)
		}
	}
	return nil
}

// Debit charges a for one admitted extraction.
func Debit(a *model.Account) {
	switch a.SubscriptionType {
	case model.PlanMonthly:
		a.MonthlyUsed++
	case model.PlanPro:
	default:
		a.Credits--
	}
	a.TotalCreditsUsed++
}

// Available is the balance shown to the account holder for the current plan.
func Available(a *model.Account) int {
	switch a.SubscriptionType {
	case model.PlanMonthly:
		return max(a.MonthlyQuota-a.MonthlyUsed, 0)
	case model.PlanPro:
		return UnlimitedCredits
	default:
		return max(a.Credits, 0)
	}
}

// DayStart returns local midnight of now's day in loc.
func DayStart(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
