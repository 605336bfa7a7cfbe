package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shopgrab/internal/auth"
	"github.com/dukerupert/shopgrab/internal/database"
	"github.com/dukerupert/shopgrab/internal/ledger"
	"github.com/dukerupert/shopgrab/internal/model"
	"github.com/dukerupert/shopgrab/internal/quota"
	"github.com/dukerupert/shopgrab/internal/store"
	"github.com/dukerupert/shopgrab/internal/trial"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeExtractor struct {
	data  *model.ProductData
	err   error
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, rawURL string) (*model.ProductData, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	d := *f.data
	d.URL = rawURL
	return &d, nil
}

type testEnv struct {
	db         *sql.DB
	accounts   *store.AccountStore
	sessions   *store.SessionStore
	magicLinks *store.MagicLinkStore
	jobs       *store.JobStore
	products   *store.ProductStore
	events     *store.WebhookEventStore
	quota      *quota.Service
	ledger     *ledger.Ledger
	extractor  *fakeExtractor
	codec      *trial.Codec
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:         db,
		accounts:   store.NewAccountStore(db),
		sessions:   store.NewSessionStore(db),
		magicLinks: store.NewMagicLinkStore(db),
		jobs:       store.NewJobStore(db),
		products:   store.NewProductStore(db),
		events:     store.NewWebhookEventStore(db),
		extractor:  &fakeExtractor{data: sampleData()},
		codec:      trial.NewCodec("test-secret", false),
	}
	env.quota = quota.NewService(env.accounts, env.jobs, time.UTC, discard)
	env.ledger = ledger.New(env.jobs, env.extractor, nil, discard)
	return env
}

func sampleData() *model.ProductData {
	price := 19.5
	usd := "USD"
	return &model.ProductData{
		ShopDomain: "shop.example.com",
		Handle:     "mug",
		Title:      "Blue Mug",
		Vendor:     "Acme",
		Price:      &price,
		Currency:   &usd,
		Available:  true,
		Images:     []string{"https://cdn.example.com/mug.jpg"},
		Tags:       []string{"kitchen"},
		RawData:    json.RawMessage(`{"handle":"mug"}`),
	}
}

func (e *testEnv) account(t *testing.T, email string) *model.Account {
	t.Helper()
	a, err := e.accounts.Create(email)
	require.NoError(t, err)
	return a
}

// as attaches a signed-in identity for a to r.
func as(r *http.Request, a *model.Account) *http.Request {
	ctx := auth.WithIdentity(r.Context(), auth.Identity{AccountID: a.ID, Email: a.Email})
	return r.WithContext(ctx)
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
