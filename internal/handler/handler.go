// Package handler holds the HTTP handlers for the JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/extract"
	"github.com/dukerupert/shopgrab/internal/quota"
	"github.com/dukerupert/shopgrab/internal/trial"
)

const maxRequestBody = 1 << 20

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return api.NewBadRequestError("invalid request body")
	}
	return nil
}

// classify maps domain errors onto the API error taxonomy. Errors it does not
// recognize are returned unchanged and end up as a generic 500.
func classify(err error) error {
	var upstream *extract.UpstreamError
	switch {
	case errors.Is(err, extract.ErrMissingURL), errors.Is(err, extract.ErrInvalidURL):
		return api.NewValidationError(err.Error())
	case errors.Is(err, quota.ErrQuotaExceeded),
		errors.Is(err, quota.ErrFairUseExceeded),
		errors.Is(err, trial.ErrExhausted):
		return api.NewForbiddenError(err)
	case errors.Is(err, quota.ErrAccountNotFound):
		return api.ErrUnauthorized
	case errors.As(err, &upstream), errors.Is(err, extract.ErrNoProduct):
		return api.NewUpstreamError(err)
	}
	return err
}
