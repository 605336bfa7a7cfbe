package model

import "time"

// Subscription types stored on an account.
const (
	PlanFree    = "free"
	PlanMonthly = "monthly"
	PlanPro     = "pro"

	// PlanLegacyDayPass is no longer sold; accounts still carrying it are migrated to free.
	PlanLegacyDayPass = "day_pass"
)

type Account struct {
	ID                   int64      `json:"id"`
	Email                string     `json:"email"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	SubscriptionType     string     `json:"subscription_type"`
	SubscriptionEndDate  *time.Time `json:"subscription_end_date"`
	Credits              int        `json:"credits"`
	LastFreeReset        time.Time  `json:"last_free_reset"`
	TotalCreditsUsed     int        `json:"total_credits_used"`
	MonthlyQuota         int        `json:"monthly_quota"`
	MonthlyUsed          int        `json:"monthly_used"`
	LastMonthlyReset     time.Time  `json:"last_monthly_reset"`
	Version              int64      `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsSubscribed reports whether the account is on a paid recurring plan.
func (a *Account) IsSubscribed() bool {
	return a.SubscriptionType == PlanMonthly || a.SubscriptionType == PlanPro
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type MagicLink struct {
	ID        int64      `json:"id"`
	Token     string     `json:"token"`
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
