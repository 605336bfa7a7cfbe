package extract

import (
	"net/url"
	"strings"
)

// ValidateURL checks that raw is an absolute http(s) URL that points at a
// Shopify product page.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}
	if !strings.Contains(u.Path, "/products/") && !strings.HasSuffix(u.Hostname(), ".myshopify.com") {
		return nil, ErrInvalidURL
	}
	u.Fragment = ""
	return u, nil
}
