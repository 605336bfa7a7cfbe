package quota

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/shopgrab/internal/metrics"
	"github.com/dukerupert/shopgrab/internal/model"
	"github.com/dukerupert/shopgrab/internal/store"
)

var ErrAccountNotFound = errors.New("account not found")

// Service applies the quota policy to persisted accounts.
type Service struct {
	accounts *store.AccountStore
	jobs     *store.JobStore
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(accounts *store.AccountStore, jobs *store.JobStore, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		accounts: accounts,
		jobs:     jobs,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Authorize runs rollover, admission and debit for one extraction as a
// single version-guarded write. On rejection the returned account reflects
// any rollover that was persisted and the error wraps ErrQuotaExceeded or
// ErrFairUseExceeded.
func (s *Service) Authorize(accountID int64) (*model.Account, error) {
	var (
		rejected error
		steps    []Step
	)
	a, err := s.accounts.Update(accountID, func(a *model.Account) error {
		rejected = nil
		now := s.now()
		steps = Rollover(a, now)

		jobsToday := 0
		if a.SubscriptionType == model.PlanPro {
			// Counted outside the account write; two concurrent pro requests
			// at 499 can both be admitted.
			n, err := s.jobs.CountSince(a.ID, DayStart(now, s.loc))
			if err != nil {
				return fmt.Errorf("count jobs today: %w", err)
			}
			jobsToday = n
		}

		if err := Admit(a, jobsToday); err != nil {
			rejected = err
			if len(steps) > 0 {
				return nil
			}
			return store.ErrNoChange
		}
		Debit(a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("authorize extraction: %w", err)
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	if len(steps) > 0 {
		s.logger.Info("quota rollover", "account_id", a.ID, "steps", steps, "plan", a.SubscriptionType)
	}
	if rejected != nil {
		metrics.QuotaRejectionsTotal.WithLabelValues(a.SubscriptionType).Inc()
		s.logger.Info("extraction rejected", "account_id", a.ID, "plan", a.SubscriptionType, "reason", rejected)
		return a, rejected
	}
	return a, nil
}

// Status returns the account after applying and persisting rollover.
func (s *Service) Status(accountID int64) (*model.Account, error) {
	a, err := s.accounts.Update(accountID, func(a *model.Account) error {
		if len(Rollover(a, s.now())) == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quota status: %w", err)
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a, nil
}
