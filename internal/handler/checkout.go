package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/auth"
	"github.com/dukerupert/shopgrab/internal/store"
)

// Payments is the subset of the Stripe client used to start payment flows.
type Payments interface {
	CreateCustomer(email string, accountID int64) (string, error)
	CreateCheckoutSession(customerID string, accountID int64, planType, priceID string) (string, error)
	CreateBillingPortalSession(customerID, returnURL string) (string, error)
}

type CheckoutHandler struct {
	payments  Payments
	accounts  *store.AccountStore
	returnURL string
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewCheckoutHandler returns a CheckoutHandler. A nil Payments answers every
// request with 503.
func NewCheckoutHandler(p Payments, as *store.AccountStore, returnURL string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		payments:  p,
		accounts:  as,
		returnURL: returnURL,
		validate:  validator.New(),
		logger:    logger,
	}
}

type CheckoutRequest struct {
	PlanType string `json:"planType" validate:"required,oneof=day_pass monthly pro"`
	PriceID  string `json:"priceId" validate:"required"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// Checkout serves POST /api/checkout.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		api.HandleError(w, api.ErrServiceOff)
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	accountID := auth.AccountID(r.Context())
	account, err := h.accounts.GetByID(accountID)
	if err != nil {
		h.logger.Error("get account", "account_id", accountID, "error", err)
		api.HandleError(w, err)
		return
	}
	if account == nil {
		api.HandleError(w, api.NewNotFoundError("account not found"))
		return
	}

	customerID := ""
	if account.StripeCustomerID != nil {
		customerID = *account.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = h.payments.CreateCustomer(account.Email, account.ID)
		if err != nil {
			h.logger.Error("create customer", "account_id", account.ID, "error", err)
			api.HandleError(w, err)
			return
		}
		if err := h.accounts.UpdateStripeCustomerID(account.ID, customerID); err != nil {
			h.logger.Error("save customer id", "account_id", account.ID, "error", err)
		}
	}

	url, err := h.payments.CreateCheckoutSession(customerID, account.ID, req.PlanType, req.PriceID)
	if err != nil {
		h.logger.Error("create checkout session", "account_id", account.ID, "plan", req.PlanType, "error", err)
		api.HandleError(w, err)
		return
	}

	h.logger.Info("checkout started", "account_id", account.ID, "plan", req.PlanType)
	api.JSON(w, http.StatusOK, urlResponse{URL: url})
}

// BillingPortal serves POST /api/billing-portal.
func (h *CheckoutHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		api.HandleError(w, api.ErrServiceOff)
		return
	}

	accountID := auth.AccountID(r.Context())
	account, err := h.accounts.GetByID(accountID)
	if err != nil {
		h.logger.Error("get account", "account_id", accountID, "error", err)
		api.HandleError(w, err)
		return
	}
	if account == nil {
		api.HandleError(w, api.NewNotFoundError("account not found"))
		return
	}
	if account.StripeCustomerID == nil {
		api.HandleError(w, api.NewBadRequestError("no billing account"))
		return
	}

	url, err := h.payments.CreateBillingPortalSession(*account.StripeCustomerID, h.returnURL)
	if err != nil {
		h.logger.Error("create portal session", "account_id", account.ID, "error", err)
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, urlResponse{URL: url})
}
