package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sefazor/mapcraft-backend/pkg/ratelimit"
)

const (
	ProviderLemonSqueezy = "lemonsqueezy"
	ProviderStripe       = "stripe"
)

type PaymentConfig struct {
	Provider              string        `env:"PAYMENT_PROVIDER" envDefault:"lemonsqueezy"`
	LemonSqueezyAPIKey    string        `env:"LEMONSQUEEZY_API_KEY"`
	LemonSqueezyStoreID   string        `env:"LEMONSQUEEZY_STORE_ID"`
	LemonSqueezySecret    string        `env:"LEMONSQUEEZY_WEBHOOK_SECRET"`
	StripeSecretKey       string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string        `env:"STRIPE_WEBHOOK_SECRET"`
	CreditsVariantID      string        `env:"CREDITS_VARIANT_ID"`
	SubscriptionVariantID string        `env:"SUBSCRIPTION_VARIANT_ID"`
	CreditsPerPack        int           `env:"CREDITS_PER_PACK" envDefault:"5"`
	Timeout               time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
	DiscountsFile         string        `env:"REGIONAL_DISCOUNTS_FILE"`
}

type RateLimitConfig struct {
	MapGeneration int           `env:"RATE_LIMIT_MAP_GENERATION" envDefault:"10"`
	API           int           `env:"RATE_LIMIT_API" envDefault:"30"`
	Auth          int           `env:"RATE_LIMIT_AUTH" envDefault:"5"`
	Purchase      int           `env:"RATE_LIMIT_PURCHASE" envDefault:"3"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	Global        int           `env:"GLOBAL_RATE_LIMIT" envDefault:"120"`
}

// Rules builds the per-class limiter rules.
func (r RateLimitConfig) Rules() map[ratelimit.Class]ratelimit.Rule {
	return map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassMapGeneration: {Limit: r.MapGeneration, Window: r.Window},
		ratelimit.ClassAPI:           {Limit: r.API, Window: r.Window},
		ratelimit.ClassAuth:          {Limit: r.Auth, Window: r.Window},
		ratelimit.ClassPurchase:      {Limit: r.Purchase, Window: r.Window},
	}
}

type TracingConfig struct {
	ServiceName    string  `env:"OTEL_SERVICE_NAME" envDefault:"mapcraft-api"`
	JaegerEndpoint string  `env:"JAEGER_ENDPOINT"`
	SampleRatio    float64 `env:"TRACE_SAMPLE_RATIO" envDefault:"1"`
}

type EmailConfig struct {
	ResendAPIKey string `env:"RESEND_API_KEY"`
	FromAddress  string `env:"EMAIL_FROM_ADDRESS" envDefault:"billing@mapcraft.app"`
	FromName     string `env:"EMAIL_FROM_NAME" envDefault:"Mapcraft"`
}

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	Environment   string `env:"APP_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	PublicURL     string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`
	CORSOrigins   string `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:3000"`
	JWTSecret     string `env:"SUPABASE_JWT_SECRET"`
	SignupCredits int    `env:"SIGNUP_CREDITS" envDefault:"1"`
	StatsOffset   int64  `env:"STATS_BASE_OFFSET" envDefault:"1000"`

	Payment   PaymentConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Tracing   TracingConfig
}

// CheckoutRedirectURL is where the provider sends the buyer afterwards.
func (c *Config) CheckoutRedirectURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/dashboard?checkout=success"
}

// LoadConfig reads .env when present and parses the environment.
func LoadConfig() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.Payment.Provider {
	case ProviderLemonSqueezy, ProviderStripe:
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.Payment.Provider)
	}

	return cfg, nil
}
