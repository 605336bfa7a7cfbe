package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that would break the service at runtime.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SHOPGRAB_SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		errs = append(errs, "SHOPGRAB_SERVER_BASE_URL must start with http:// or https://")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("SHOPGRAB_LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}

	if c.Stripe.Enabled() && c.Stripe.WebhookSecret == "" {
		errs = append(errs, "SHOPGRAB_STRIPE_WEBHOOK_SECRET is required when SHOPGRAB_STRIPE_SECRET_KEY is set")
	}
	if c.Stripe.SecretKey == "" {
		slog.Warn("SHOPGRAB_STRIPE_SECRET_KEY is empty, checkout and webhooks are disabled")
	}

	if c.Extract.Timeout < 0 {
		errs = append(errs, "SHOPGRAB_EXTRACT_TIMEOUT must not be negative")
	}

	if c.Trial.CookieSecret != "" && len(c.Trial.CookieSecret) < 16 {
		errs = append(errs, "SHOPGRAB_TRIAL_COOKIE_SECRET must be at least 16 characters")
	}

	if c.Email.PostmarkToken != "" && c.Email.From == "" {
		errs = append(errs, "SHOPGRAB_EMAIL_FROM is required when SHOPGRAB_EMAIL_POSTMARK_TOKEN is set")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
