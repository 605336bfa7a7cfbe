package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/auth"
	"github.com/dukerupert/shopgrab/internal/billing"
	billingstripe "github.com/dukerupert/shopgrab/internal/billing/stripe"
	"github.com/dukerupert/shopgrab/internal/config"
	"github.com/dukerupert/shopgrab/internal/email"
	"github.com/dukerupert/shopgrab/internal/extract"
	"github.com/dukerupert/shopgrab/internal/handler"
	"github.com/dukerupert/shopgrab/internal/ledger"
	"github.com/dukerupert/shopgrab/internal/middleware"
	"github.com/dukerupert/shopgrab/internal/quota"
	"github.com/dukerupert/shopgrab/internal/store"
	"github.com/dukerupert/shopgrab/internal/trial"
	ws "github.com/dukerupert/shopgrab/internal/websocket"
)

const (
	loginLimit        = 10
	trialExtractLimit = 20
	limitWindow       = time.Minute
)

type Server struct {
	hub            *ws.Hub
	extractH       *handler.ExtractHandler
	accountH       *handler.AccountHandler
	trialH         *handler.TrialHandler
	checkoutH      *handler.CheckoutHandler
	webhookH       *handler.WebhookHandler
	authH          *handler.AuthHandler
	accountStore   *store.AccountStore
	sessionStore   *store.SessionStore
	magicLinkStore *store.MagicLinkStore
	limiter        middleware.Limiter
	originPatterns []string
	logger         *slog.Logger
}

type Option func(*options)

type options struct {
	extractor ledger.Extractor
	limiter   middleware.Limiter
	mailer    handler.Mailer
}

// WithExtractor replaces the storefront client.
func WithExtractor(e ledger.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithLimiter replaces the limiter chosen from the redis config.
func WithLimiter(l middleware.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

func WithMailer(m handler.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

func New(cfg *config.Config, db *sql.DB, logger *slog.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db)
	magicLinkStore := store.NewMagicLinkStore(db)
	jobStore := store.NewJobStore(db)
	productStore := store.NewProductStore(db)
	webhookEventStore := store.NewWebhookEventStore(db)

	if o.extractor == nil {
		o.extractor = extract.NewClient(cfg.Extract.Timeout, cfg.Extract.UserAgent)
	}
	if o.limiter == nil {
		o.limiter = newLimiter(cfg.Redis, logger)
	}
	if o.mailer == nil {
		o.mailer = email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.Server.BaseURL)
	}

	quotaSvc := quota.NewService(accountStore, jobStore, cfg.Quota.Location, logger.With("component", "quota"))
	jobLedger := ledger.New(jobStore, o.extractor, hub, logger.With("component", "ledger"))
	trialCodec := trial.NewCodec(cfg.Trial.CookieSecret, cfg.Trial.SecureCookie)
	synchronizer := billing.NewSynchronizer(accountStore, logger.With("component", "billing"))

	var payments handler.Payments
	var verifier handler.EventVerifier
	if cfg.Stripe.Enabled() {
		sc := billingstripe.NewClient(billingstripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Server.BaseURL + cfg.Stripe.SuccessPath,
			CancelURL:     cfg.Server.BaseURL + cfg.Stripe.CancelPath,
		})
		payments = sc
		verifier = sc
	}

	return &Server{
		hub:            hub,
		extractH:       handler.NewExtractHandler(quotaSvc, jobLedger, o.extractor, trialCodec, logger.With("component", "extract")),
		accountH:       handler.NewAccountHandler(quotaSvc, jobLedger, jobStore, productStore, logger.With("component", "account")),
		trialH:         handler.NewTrialHandler(trialCodec),
		checkoutH:      handler.NewCheckoutHandler(payments, accountStore, cfg.Server.BaseURL+cfg.Stripe.SuccessPath, logger.With("component", "checkout")),
		webhookH:       handler.NewWebhookHandler(verifier, webhookEventStore, synchronizer, logger.With("component", "webhook")),
		authH:          handler.NewAuthHandler(accountStore, sessionStore, magicLinkStore, o.mailer, cfg.Trial.SecureCookie, logger.With("component", "auth")),
		accountStore:   accountStore,
		sessionStore:   sessionStore,
		magicLinkStore: magicLinkStore,
		limiter:        o.limiter,
		originPatterns: originPatterns(cfg.Server.BaseURL),
		logger:         logger,
	}
}

func newLimiter(cfg config.RedisConfig, logger *slog.Logger) middleware.Limiter {
	if cfg.Addr == "" {
		return middleware.NewMemoryLimiter()
	}
	logger.Info("rate limiting with redis", "addr", cfg.Addr)
	return middleware.NewRedisLimiter(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// originPatterns allows websocket upgrades from the configured site.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// MagicLinkStore returns the magic link store for cleanup tasks.
func (s *Server) MagicLinkStore() *store.MagicLinkStore {
	return s.magicLinkStore
}

// MemoryLimiter returns the in-process limiter, or nil when redis is used.
func (s *Server) MemoryLimiter() *middleware.MemoryLimiter {
	ml, _ := s.limiter.(*middleware.MemoryLimiter)
	return ml
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	session := middleware.LoadSession(s.sessionStore, s.accountStore, s.logger.With("component", "session"))
	public := func(h http.HandlerFunc) http.Handler {
		return session(h)
	}
	private := func(h http.HandlerFunc) http.Handler {
		return session(middleware.RequireAuth(h))
	}

	byIP := func(r *http.Request) string { return middleware.RealIP(r) }
	anonymousIP := func(r *http.Request) string {
		if _, ok := auth.FromContext(r.Context()); ok {
			return ""
		}
		return "trial:" + middleware.RealIP(r)
	}
	rlLogger := s.logger.With("component", "ratelimit")
	loginLimited := middleware.RateLimit(s.limiter, byIP, loginLimit, limitWindow, rlLogger)
	trialLimited := middleware.RateLimit(s.limiter, anonymousIP, trialExtractLimit, limitWindow, rlLogger)

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /login", loginLimited(http.HandlerFunc(s.authH.Login)))
	mux.HandleFunc("GET /auth/verify", s.authH.Verify)
	mux.HandleFunc("POST /logout", s.authH.Logout)

	mux.Handle("POST /api/extract", session(trialLimited(http.HandlerFunc(s.extractH.Extract))))
	mux.Handle("GET /api/trial", public(s.trialH.Status))
	mux.Handle("POST /api/trial", public(s.trialH.Consume))

	mux.Handle("GET /api/history", private(s.accountH.History))
	mux.Handle("GET /api/credits", private(s.accountH.Credits))
	mux.Handle("GET /api/jobs/{id}/export", private(s.accountH.Export))
	mux.Handle("POST /api/checkout", private(s.checkoutH.Checkout))
	mux.Handle("POST /api/billing-portal", private(s.checkoutH.BillingPortal))

	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripeWebhook)

	mux.Handle("GET /ws/jobs", private(ws.HandleJobs(s.hub, s.originPatterns, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(middleware.Metrics(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
