// Package extract fetches a Shopify product page and its JSON resource and
// normalizes them into a single product record.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dukerupert/shopgrab/internal/model"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; ShopifyScraper/1.0)"

	maxBodySize = 10 << 20
)

type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{},
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Extract fetches rawURL and its .json resource. It makes one attempt per
// resource and never retries.
func (c *Client) Extract(ctx context.Context, rawURL string) (*model.ProductData, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	html, err := c.get(ctx, "html", u.String())
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse product html: %w", err)
	}
	page := parsePage(doc)

	body, err := c.get(ctx, "json", jsonURL(u))
	if err != nil {
		return nil, err
	}
	var env productEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode product json: %w", err)
	}
	raw := bytes.TrimSpace(env.Product)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrNoProduct
	}

	return normalize(u, page, raw)
}

func (c *Client) get(ctx context.Context, resource, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &UpstreamError{Resource: resource, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &UpstreamError{Resource: resource, Err: err}
	}
	return body, nil
}

// jsonURL is the product URL with any trailing slash removed and .json
// appended to the path. The query string is kept.
func jsonURL(u *url.URL) string {
	j := *u
	j.Path = strings.TrimSuffix(j.Path, "/") + ".json"
	j.RawPath = ""
	return j.String()
}
