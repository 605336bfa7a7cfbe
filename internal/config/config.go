package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SHOPGRAB_"

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Log     LogConfig
	Stripe  StripeConfig
	Email   EmailConfig
	Redis   RedisConfig
	Trial   TrialConfig
	Extract ExtractConfig
	Quota   QuotaConfig
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DBConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessPath   string
	CancelPath    string
}

// Enabled reports whether checkout and webhooks should be served.
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

type EmailConfig struct {
	PostmarkToken string
	From          string
}

// RedisConfig is optional; an empty Addr keeps rate limiting in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TrialConfig struct {
	CookieSecret string
	SecureCookie bool
}

type ExtractConfig struct {
	Timeout   time.Duration
	UserAgent string
}

type QuotaConfig struct {
	Timezone string
	Location *time.Location
}

// Load reads configuration from an optional .env file and SHOPGRAB_* environment
// variables. Environment variables win over the file.
func Load() (*Config, error) {
	return load(".env")
}

func load(dotenvPath string) (*Config, error) {
	k := koanf.New(".")

	// Missing .env is fine.
	_ = k.Load(file.Provider(dotenvPath), dotenv.ParserEnv(envPrefix, ".", keyFromEnv))

	err := k.Load(env.Provider(envPrefix, ".", keyFromEnv), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:    k.String("server.host"),
			Port:    k.Int("server.port"),
			BaseURL: strings.TrimRight(k.String("server.base.url"), "/"),
		},
		DB: DBConfig{
			Path: k.String("db.path"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Stripe: StripeConfig{
			SecretKey:     k.String("stripe.secret.key"),
			WebhookSecret: k.String("stripe.webhook.secret"),
			SuccessPath:   k.String("stripe.success.path"),
			CancelPath:    k.String("stripe.cancel.path"),
		},
		Email: EmailConfig{
			PostmarkToken: k.String("email.postmark.token"),
			From:          k.String("email.from"),
		},
		Redis: RedisConfig{
			Addr:     k.String("redis.addr"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Trial: TrialConfig{
			CookieSecret: k.String("trial.cookie.secret"),
			SecureCookie: k.Bool("trial.secure.cookie"),
		},
		Extract: ExtractConfig{
			UserAgent: k.String("extract.user.agent"),
		},
		Quota: QuotaConfig{
			Timezone: k.String("quota.timezone"),
		},
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = "shopgrab.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Stripe.SuccessPath == "" {
		cfg.Stripe.SuccessPath = "/dashboard"
	}
	if cfg.Stripe.CancelPath == "" {
		cfg.Stripe.CancelPath = "/billing"
	}
	if cfg.Extract.UserAgent == "" {
		cfg.Extract.UserAgent = "Mozilla/5.0 (compatible; ShopifyScraper/1.0)"
	}

	timeoutStr := k.String("extract.timeout")
	if timeoutStr == "" {
		timeoutStr = "20s"
	}
	cfg.Extract.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing extract timeout: %w", err)
	}

	cfg.Quota.Location = time.Local
	if cfg.Quota.Timezone != "" {
		cfg.Quota.Location, err = time.LoadLocation(cfg.Quota.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading quota timezone: %w", err)
		}
	}

	return cfg, nil
}

// keyFromEnv maps SHOPGRAB_STRIPE_SECRET_KEY to stripe.secret.key.
func keyFromEnv(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}
