package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	CurrencyCode       string
	LogLevel           string
	LogFormat          string
	MetricsNamespace   string
	ServiceName        string
	OTLPEndpoint       string
	TraceSampleRatio   float64

	CatalogCSVURL    string
	CartServiceURL   string
	CouponServiceURL string
	WalletServiceURL string
	OrderServiceURL  string
	GatewayConfigURL string
	ServiceToken     string

	RazorpayBaseURL   string
	RazorpayKeyID     string
	RazorpayKeySecret string

	CatalogCacheTTL     time.Duration
	CheckoutSessionTTL  time.Duration
	UpstreamTimeout     time.Duration
	UpstreamMaxAttempts int
	CouponRateLimit     int
	CouponRateWindow    time.Duration
	IdempotencyTTL      time.Duration
	SessionLockTTL      time.Duration
	MaxBodyBytes        int64

	EventWebhookURL    string
	EventWebhookSecret string
}

var requiredKeys = []string{
	"REDIS_URL",
	"CATALOG_CSV_URL",
	"CART_SERVICE_URL",
	"COUPON_SERVICE_URL",
	"WALLET_SERVICE_URL",
	"ORDER_SERVICE_URL",
	"GATEWAY_CONFIG_URL",
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(k.String(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New(strings.Join(missing, ", ") + " required")
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:            k.String("REDIS_URL"),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:        strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),
		LogLevel:            valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:           valueOrDefault(k.String("LOG_FORMAT"), "json"),
		MetricsNamespace:    valueOrDefault(k.String("METRICS_NAMESPACE"), "checkout"),
		ServiceName:         valueOrDefault(k.String("OTEL_SERVICE_NAME"), "storefront-checkout"),
		OTLPEndpoint:        strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TraceSampleRatio:    parseFloat(k.String("OTEL_TRACES_SAMPLER_RATIO"), 1),
		CatalogCSVURL:       strings.TrimSpace(k.String("CATALOG_CSV_URL")),
		CartServiceURL:      strings.TrimSpace(k.String("CART_SERVICE_URL")),
		CouponServiceURL:    strings.TrimSpace(k.String("COUPON_SERVICE_URL")),
		WalletServiceURL:    strings.TrimSpace(k.String("WALLET_SERVICE_URL")),
		OrderServiceURL:     strings.TrimSpace(k.String("ORDER_SERVICE_URL")),
		GatewayConfigURL:    strings.TrimSpace(k.String("GATEWAY_CONFIG_URL")),
		ServiceToken:        strings.TrimSpace(k.String("SERVICE_TOKEN")),
		RazorpayBaseURL:     strings.TrimSpace(k.String("RAZORPAY_BASE_URL")),
		RazorpayKeyID:       strings.TrimSpace(k.String("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:   strings.TrimSpace(k.String("RAZORPAY_KEY_SECRET")),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CheckoutSessionTTL:  parseDuration(k.String("CHECKOUT_SESSION_TTL"), "30m"),
		UpstreamTimeout:     parseDuration(k.String("UPSTREAM_TIMEOUT"), "5s"),
		UpstreamMaxAttempts: parseInt(k.String("UPSTREAM_MAX_ATTEMPTS"), 1),
		CouponRateLimit:     parseInt(k.String("COUPON_RATE_LIMIT"), 10),
		CouponRateWindow:    parseDuration(k.String("COUPON_RATE_WINDOW"), "1m"),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SessionLockTTL:      parseDuration(k.String("SESSION_LOCK_TTL"), "10s"),
		MaxBodyBytes:        int64(parseInt(k.String("MAX_BODY_BYTES"), 64<<10)),
		EventWebhookURL:     strings.TrimSpace(k.String("EVENT_WEBHOOK_URL")),
		EventWebhookSecret:  strings.TrimSpace(k.String("EVENT_WEBHOOK_SECRET")),
	}
	if cfg.UpstreamMaxAttempts < 1 {
		cfg.UpstreamMaxAttempts = 1
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RazorpayEnabled reports whether gateway credentials are present.
func (c *Config) RazorpayEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
