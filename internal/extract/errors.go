package extract

import (
	"errors"
	"fmt"
)

var (
	ErrMissingURL = errors.New("missing url")
	ErrInvalidURL = errors.New("url does not look like a Shopify product page")
	ErrNoProduct  = errors.New("no product data found")
)

// UpstreamError is returned when the storefront cannot be fetched or answers
// with a non-2xx status.
type UpstreamError struct {
	Resource   string
	StatusCode int
	Status     string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch product %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("fetch product %s: %s", e.Resource, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
