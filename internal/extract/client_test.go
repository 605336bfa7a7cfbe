package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productHTML = `<!doctype html>
<html><head>
<meta name="description" content="Soft cotton tee">
<meta property="og:description" content="OG description">
<meta property="og:image" content="https://cdn.example.com/og.jpg">
</head><body>
<div class="product__description">  Premium cotton, relaxed fit.  </div>
<div class="footer-description">Footer text</div>
</body></html>`

const productJSON = `{"product":{
	"id": 42,
	"title": "Classic Tee",
	"handle": "classic-tee",
	"body_html": "<p>Body</p>",
	"vendor": "Acme",
	"product_type": "Shirts",
	"tags": "cotton, summer ,",
	"variants": [
		{"id": 1, "title": "S", "price": "19.99", "compare_at_price": "29.99", "sku": "TEE-S", "option1": "S", "option2": null, "option3": null},
		{"id": 2, "title": "M", "price": "21.00", "compare_at_price": null, "sku": "TEE-M", "option1": "M"}
	],
	"options": [{"name": "Size", "position": 1, "values": ["S", "M"]}],
	"images": [{"src": "https://cdn.example.com/1.jpg"}, {"src": "https://cdn.example.com/2.jpg"}],
	"image": {"src": "https://cdn.example.com/1.jpg"}
}}`

type storefront struct {
	html       string
	json       string
	htmlStatus int
	jsonStatus int
	userAgents []string
	jsonPaths  []string
}

func (s *storefront) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.userAgents = append(s.userAgents, r.Header.Get("User-Agent"))
	if strings.HasSuffix(r.URL.Path, ".json") {
		s.jsonPaths = append(s.jsonPaths, r.URL.Path)
		if s.jsonStatus != 0 {
			w.WriteHeader(s.jsonStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(s.json))
		return
	}
	if s.htmlStatus != 0 {
		w.WriteHeader(s.htmlStatus)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(s.html))
}

func setupStorefront(t *testing.T, sf *storefront) string {
	t.Helper()
	srv := httptest.NewServer(sf)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestExtract(t *testing.T) {
	sf := &storefront{html: productHTML, json: productJSON}
	base := setupStorefront(t, sf)
	c := NewClient(time.Second, "")

	p, err := c.Extract(context.Background(), base+"/products/classic-tee/")
	require.NoError(t, err)

	assert.Equal(t, "Classic Tee", p.Title)
	assert.Equal(t, "classic-tee", p.Handle)
	assert.Equal(t, "Acme", p.Vendor)
	assert.Equal(t, "Shirts", p.ProductType)
	assert.Equal(t, "127.0.0.1", p.ShopDomain)
	assert.Equal(t, "Premium cotton, relaxed fit.", p.ShortDescription)
	assert.Equal(t, "Premium cotton, relaxed fit.", p.Description)
	assert.Equal(t, "Soft cotton tee", p.MetaDescription)
	assert.Equal(t, "Classic Tee", p.MetaTitle)
	assert.Equal(t, "https://cdn.example.com/og.jpg", p.OGImage)
	assert.Equal(t, "https://cdn.example.com/og.jpg", p.MainImage)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 19.99, *p.Price, 0.0001)
	require.NotNil(t, p.CompareAtPrice)
	assert.InDelta(t, 29.99, *p.CompareAtPrice, 0.0001)
	require.NotNil(t, p.Currency)
	assert.Equal(t, "USD", *p.Currency)
	assert.False(t, p.Available)
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"}, p.Images)
	assert.Equal(t, 2, p.VariantCount)
	require.Len(t, p.Variants, 2)
	assert.Equal(t, "TEE-S", p.Variants[0].SKU)
	assert.Nil(t, p.Variants[1].CompareAtPrice)
	assert.Equal(t, []string{"cotton", "summer"}, p.Tags)
	require.Len(t, p.Options, 1)
	assert.Equal(t, []string{"S", "M"}, p.Options[0].Values)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(p.RawData, &raw))
	assert.Equal(t, "https://cdn.example.com/og.jpg", raw["ogImage"])
	assert.Equal(t, "Premium cotton, relaxed fit.", raw["shortDescription"])
	assert.Equal(t, "Acme", raw["vendor"])

	assert.Equal(t, []string{"/products/classic-tee.json"}, sf.jsonPaths)
	for _, ua := range sf.userAgents {
		assert.Equal(t, DefaultUserAgent, ua)
	}
}

func TestExtractFallbacks(t *testing.T) {
	html := `<html><head>
<meta property="og:description" content="From OG">
<meta property="og:image:secure_url" content="https://cdn.example.com/secure.jpg">
</head><body></body></html>`
	sf := &storefront{html: html, json: `{"product":{"title":"Mug","tags":["a","b"],"variants":[],"images":[],"body_html":"<p>Mug body</p>","available":true}}`}
	base := setupStorefront(t, sf)

	p, err := NewClient(time.Second, "test-agent").Extract(context.Background(), base+"/products/mug")
	require.NoError(t, err)

	assert.Equal(t, "From OG", p.MetaDescription)
	assert.Equal(t, "https://cdn.example.com/secure.jpg", p.OGImage)
	assert.Equal(t, "<p>Mug body</p>", p.Description)
	assert.Empty(t, p.ShortDescription)
	assert.Nil(t, p.Price)
	assert.Nil(t, p.Currency)
	assert.True(t, p.Available)
	assert.Equal(t, []string{"a", "b"}, p.Tags)
	assert.Equal(t, "test-agent", sf.userAgents[0])
}

func TestExtractMainImageFallsBackToProductImages(t *testing.T) {
	sf := &storefront{html: `<html></html>`, json: `{"product":{"title":"Cap","images":[],"image":{"src":"https://cdn.example.com/only.jpg"}}}`}
	base := setupStorefront(t, sf)

	p, err := NewClient(time.Second, "").Extract(context.Background(), base+"/products/cap")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/only.jpg", p.MainImage)
	assert.Empty(t, p.Images)
}

func TestExtractShortDescriptionTruncated(t *testing.T) {
	long := strings.Repeat("é", 250)
	sf := &storefront{html: `<div class="product-description">` + long + `</div>`, json: `{"product":{"title":"Long"}}`}
	base := setupStorefront(t, sf)

	p, err := NewClient(time.Second, "").Extract(context.Background(), base+"/products/long")
	require.NoError(t, err)
	assert.Equal(t, 200, len([]rune(p.ShortDescription)))
}

func TestExtractNoProduct(t *testing.T) {
	for _, body := range []string{`{}`, `{"product":null}`, `{"products":[]}`} {
		sf := &storefront{html: productHTML, json: body}
		base := setupStorefront(t, sf)

		_, err := NewClient(time.Second, "").Extract(context.Background(), base+"/products/gone")
		assert.ErrorIs(t, err, ErrNoProduct, body)
	}
}

func TestExtractUpstreamStatus(t *testing.T) {
	tests := []struct {
		name     string
		sf       *storefront
		resource string
	}{
		{"html 404", &storefront{htmlStatus: http.StatusNotFound}, "html"},
		{"json 503", &storefront{html: productHTML, jsonStatus: http.StatusServiceUnavailable}, "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := setupStorefront(t, tt.sf)

			_, err := NewClient(time.Second, "").Extract(context.Background(), base+"/products/x")

			var upErr *UpstreamError
			require.True(t, errors.As(err, &upErr), "err = %v", err)
			assert.Equal(t, tt.resource, upErr.Resource)
			assert.NotZero(t, upErr.StatusCode)
			assert.Contains(t, err.Error(), tt.resource)
		})
	}
}

func TestExtractNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(time.Second, "").Extract(context.Background(), base+"/products/x")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Error(t, upErr.Err)
}

func TestExtractTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	start := time.Now()
	_, err := NewClient(50*time.Millisecond, "").Extract(context.Background(), srv.URL+"/products/slow")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExtractInvalidURL(t *testing.T) {
	_, err := NewClient(time.Second, "").Extract(context.Background(), "https://example.com/about")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
