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
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration
	AccessCookie string

	CartTTL          time.Duration
	SettingsCacheTTL time.Duration
	MergeLockTTL     time.Duration
	MergeLockWait    time.Duration
	IdempotencyTTL   time.Duration
	CouponRateWindow time.Duration
	CouponRateMax    int64

	Currency               string
	PaymentCallbackBaseURL string
	WebhookReplayTTL       time.Duration
	PayTR                  PayTRConfig
	Iyzico                 IyzicoConfig

	WorkerConcurrency  int
	GuestCartPurgeCron string
	NotifyEmailEnabled bool
	NotifyAdminEmails  []string
}

// PayTRConfig carries the merchant credentials for the PayTR iFrame API.
type PayTRConfig struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
	TestMode     bool
	OkURL        string
	FailURL      string
}

// Enabled reports whether every credential needed for signing is present.
func (p PayTRConfig) Enabled() bool {
	return p.MerchantID != "" && p.MerchantKey != "" && p.MerchantSalt != ""
}

// IyzicoConfig carries the API credentials for iyzico checkout forms.
type IyzicoConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
}

func (c IyzicoConfig) Enabled() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),
		AccessCookie: valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "access_token"),

		CartTTL:          parseDuration(k.String("CART_TTL"), "720h"),
		SettingsCacheTTL: parseDuration(k.String("SETTINGS_CACHE_TTL"), "5m"),
		MergeLockTTL:     parseDuration(k.String("CART_MERGE_LOCK_TTL"), "10s"),
		MergeLockWait:    parseDuration(k.String("CART_MERGE_LOCK_WAIT"), "3s"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CouponRateWindow: parseDuration(k.String("COUPON_RATE_WINDOW"), "1m"),
		CouponRateMax:    int64(parseInt(k.String("COUPON_RATE_MAX"), 10)),

		Currency:               strings.ToUpper(valueOrDefault(k.String("CURRENCY"), "TRY")),
		PaymentCallbackBaseURL: strings.TrimRight(strings.TrimSpace(k.String("PAYMENT_CALLBACK_BASE_URL")), "/"),
		WebhookReplayTTL:       parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),
		PayTR: PayTRConfig{
			MerchantID:   strings.TrimSpace(k.String("PAYTR_MERCHANT_ID")),
			MerchantKey:  k.String("PAYTR_MERCHANT_KEY"),
			MerchantSalt: k.String("PAYTR_MERCHANT_SALT"),
			TestMode:     parseBool(k.String("PAYTR_TEST_MODE")),
			OkURL:        strings.TrimSpace(k.String("PAYTR_OK_URL")),
			FailURL:      strings.TrimSpace(k.String("PAYTR_FAIL_URL")),
		},
		Iyzico: IyzicoConfig{
			APIKey:    k.String("IYZICO_API_KEY"),
			SecretKey: k.String("IYZICO_SECRET_KEY"),
			BaseURL:   valueOrDefault(k.String("IYZICO_BASE_URL"), "https://sandbox-api.iyzipay.com"),
		},

		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 10),
		GuestCartPurgeCron: valueOrDefault(k.String("GUEST_CART_PURGE_CRON"), "@every 1h"),
		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyAdminEmails:  splitAndTrim(k.String("NOTIFY_ADMIN_EMAILS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.CouponRateMax <= 0 {
		return nil, errors.New("COUPON_RATE_MAX must be positive")
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
		return value
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
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
