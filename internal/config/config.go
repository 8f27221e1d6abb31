package config

import (
	"errors"
	"fmt"
	"os"
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
	JWTSecret          string
	CORSAllowedOrigins []string

	CatalogURL   string
	CatalogToken string

	StripeSecretKey string
	StripeBaseURL   string
	Currency        string

	RegistrationFee int64
	BasketTTL       time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	OutboundTimeout    time.Duration
	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64
	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	AuthRateLimitPerMin int
	BasketWriteMax      int
	BasketWriteWindow   time.Duration

	WorkerConcurrency int
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
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CatalogURL:   k.String("CATALOG_URL"),
		CatalogToken: strings.TrimSpace(k.String("CATALOG_TOKEN")),

		StripeSecretKey: k.String("STRIPE_SECRET_KEY"),
		StripeBaseURL:   strings.TrimSpace(k.String("STRIPE_BASE_URL")),
		Currency:        valueOrDefault(strings.ToLower(k.String("CURRENCY")), "gbp"),

		RegistrationFee: k.Int64("REGISTRATION_FEE_PENCE"),
		BasketTTL:       parseDuration(k.String("BASKET_TTL"), "168h"),
		AccessTokenTTL:  parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		RefreshTokenTTL: parseDuration(k.String("REFRESH_TOKEN_TTL"), "720h"),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		LockTTL:          parseDuration(k.String("BASKET_LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("BASKET_LOCK_RETRY_BACKOFF"), "50ms"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryMaxAttempts:   intOrDefault(k.Int("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent: floatOrDefault(k.Float64("RETRY_JITTER_PERCENT"), 0.2),
		CircuitMinRequests: intOrDefault(k.Int("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRate: floatOrDefault(k.Float64("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		AuthRateLimitPerMin: intOrDefault(k.Int("AUTH_RATE_LIMIT_PER_MIN"), 20),
		BasketWriteMax:      intOrDefault(k.Int("BASKET_WRITE_MAX"), 60),
		BasketWriteWindow:   parseDuration(k.String("BASKET_WRITE_WINDOW"), "1m"),

		WorkerConcurrency: intOrDefault(k.Int("WORKER_CONCURRENCY"), 5),
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
	if cfg.CatalogURL == "" {
		return nil, errors.New("CATALOG_URL is required")
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

// MustLoad behaves like Load but panics on error. Useful for entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of a Load.
func LoadForTests(vars map[string]string) (*Config, error) {
	original := make(map[string]string, len(vars))
	for key := range vars {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, vars[key]); err != nil {
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

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
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

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func floatOrDefault(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
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
