package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/billing"
	billingstripe "github.com/dukerupert/shopgrab/internal/billing/stripe"
	"github.com/dukerupert/shopgrab/internal/metrics"
	"github.com/dukerupert/shopgrab/internal/store"
)

const maxWebhookBody = 64 << 10

// EventVerifier checks a webhook signature and parses the event.
type EventVerifier interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type WebhookHandler struct {
	verifier EventVerifier
	events   *store.WebhookEventStore
	sync     *billing.Synchronizer
	logger   *slog.Logger
}

func NewWebhookHandler(v EventVerifier, es *store.WebhookEventStore, sync *billing.Synchronizer, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: v,
		events:   es,
		sync:     sync,
		logger:   logger,
	}
}

// HandleStripeWebhook serves POST /webhooks/stripe. Each event id is applied
// at most once; a failed apply answers 500 so Stripe redelivers it.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		api.HandleError(w, api.ErrServiceOff)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("read body"))
		return
	}

	event, err := h.verifier.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		h.logger.Warn("webhook signature rejected", "error", err)
		api.HandleError(w, api.NewBadRequestError("invalid signature"))
		return
	}
	eventType := string(event.Type)

	seen, err := h.events.Seen(event.ID)
	if err != nil {
		h.logger.Error("webhook lookup", "event_id", event.ID, "error", err)
		api.HandleError(w, err)
		return
	}
	if seen {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		api.JSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": true})
		return
	}

	outcome, err := h.apply(event)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "error").Inc()
		h.logger.Error("webhook apply", "event_id", event.ID, "type", eventType, "error", err)
		api.JSONErrorMessage(w, http.StatusInternalServerError, "webhook handler failed")
		return
	}

	if err := h.events.Record(event.ID, eventType); err != nil {
		h.logger.Error("webhook record", "event_id", event.ID, "error", err)
	}
	metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	api.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// apply routes event to the synchronizer and reports the metrics outcome.
func (h *WebhookHandler) apply(event stripe.Event) (string, error) {
	switch event.Type {
	case "checkout.session.completed":
		return h.checkoutCompleted(event)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("unmarshal subscription: %w", err)
		}
		end := subscriptionPeriodEnd(&sub)
		if end.IsZero() {
			h.logger.Warn("subscription update without period end", "subscription_id", sub.ID)
			return "ignored", nil
		}
		a, err := h.sync.SubscriptionUpdated(sub.ID, end)
		return appliedOutcome(a != nil), err
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("unmarshal subscription: %w", err)
		}
		a, err := h.sync.SubscriptionDeleted(sub.ID)
		return appliedOutcome(a != nil), err
	case "invoice.paid", "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return "", fmt.Errorf("unmarshal invoice: %w", err)
		}
		subID := invoiceSubscriptionID(&inv)
		if subID == "" {
			return "ignored", nil
		}
		a, err := h.sync.InvoicePaid(subID)
		return appliedOutcome(a != nil), err
	}
	return "ignored", nil
}

func (h *WebhookHandler) checkoutCompleted(event stripe.Event) (string, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("unmarshal checkout session: %w", err)
	}

	accountID, err := strconv.ParseInt(sess.Metadata[billingstripe.MetadataAccountID], 10, 64)
	planType := sess.Metadata[billingstripe.MetadataPlanType]
	if err != nil || planType == "" {
		h.logger.Warn("checkout session missing metadata", "session_id", sess.ID)
		return "ignored", nil
	}

	ev := billing.CheckoutCompleted{AccountID: accountID, PlanType: planType}
	if sess.Subscription != nil {
		ev.SubscriptionID = sess.Subscription.ID
	}
	if sess.Customer != nil {
		ev.CustomerID = sess.Customer.ID
	}

	a, err := h.sync.CheckoutCompleted(ev)
	if errors.Is(err, billing.ErrUnknownPlan) {
		h.logger.Warn("checkout with unknown plan", "session_id", sess.ID, "plan", planType)
		return "ignored", nil
	}
	return appliedOutcome(a != nil), err
}

func appliedOutcome(matched bool) string {
	if matched {
		return "processed"
	}
	return "ignored"
}

// subscriptionPeriodEnd reads the current period end from the first item.
func subscriptionPeriodEnd(sub *stripe.Subscription) time.Time {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].CurrentPeriodEnd == 0 {
		return time.Time{}
	}
	return time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent != nil &&
		inv.Parent.SubscriptionDetails != nil &&
		inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}
