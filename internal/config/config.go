package config

import (
	"errors"
	"fmt"
	"math"
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
	PublicBaseURL      string
	MigrateOnStart     bool

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBaseURL    string
	PaymentTimeout      time.Duration

	CheckoutDiscountCodes map[string]float64
	CheckoutLockTTL       time.Duration
	CheckoutLockWait      time.Duration
	IdempotencyTTL        time.Duration

	CatalogCacheTTL     time.Duration
	CatalogLocalCache   int
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	ContentCacheTTL     time.Duration

	InquiryEmailTo string
	AdminEmail     string

	AnalyticsSinks        []string
	AnalyticsStreamKey    string
	AnalyticsStreamMaxLen int64
	AnalyticsRateLimit    string
	AMQPURL               string
	AMQPExchange          string
	GA4MeasurementID      string
	GA4APISecret          string
	GA4Endpoint           string

	QueueConcurrency   int
	OutboundTimeout    time.Duration
	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64
	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int
	BodyLimitBytes  int64
	SecurityHeaders bool
	HSTSEnabled     bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	discounts, err := parseDiscountCodes(k.String("CHECKOUT_DISCOUNT_CODES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "https://www.obichaite-se.com"), "/"),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),

		StripeSecretKey:     strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),
		StripeAPIBaseURL:    strings.TrimSpace(k.String("STRIPE_API_BASE_URL")),
		PaymentTimeout:      parseDuration(k.String("PAYMENT_TIMEOUT"), "20s"),

		CheckoutDiscountCodes: discounts,
		CheckoutLockTTL:       parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),
		CheckoutLockWait:      parseDuration(k.String("CHECKOUT_LOCK_WAIT"), "500ms"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogLocalCache:   parseInt(k.String("CATALOG_LOCAL_CACHE_SIZE"), 512),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 24),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		ContentCacheTTL:     parseDuration(k.String("CONTENT_CACHE_TTL"), "10m"),

		InquiryEmailTo: strings.TrimSpace(k.String("INQUIRY_EMAIL_TO")),
		AdminEmail:     strings.TrimSpace(k.String("ADMIN_EMAIL")),

		AnalyticsSinks:        splitAndTrim(valueOrDefault(k.String("ANALYTICS_SINKS"), "log")),
		AnalyticsStreamKey:    valueOrDefault(k.String("ANALYTICS_STREAM_KEY"), "analytics:events"),
		AnalyticsStreamMaxLen: int64(parseInt(k.String("ANALYTICS_STREAM_MAXLEN"), 100000)),
		AnalyticsRateLimit:    valueOrDefault(k.String("ANALYTICS_RATE_LIMIT"), "120-M"),
		AMQPURL:               strings.TrimSpace(k.String("AMQP_URL")),
		AMQPExchange:          valueOrDefault(k.String("AMQP_EXCHANGE"), "storefront.analytics"),
		GA4MeasurementID:      strings.TrimSpace(k.String("GA4_MEASUREMENT_ID")),
		GA4APISecret:          strings.TrimSpace(k.String("GA4_API_SECRET")),
		GA4Endpoint:           valueOrDefault(k.String("GA4_ENDPOINT"), "https://www.google-analytics.com/mp/collect"),

		QueueConcurrency:   parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent: parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitMinRequests: parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRate: parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 10),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders: parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		HSTSEnabled:     parseBool(k.String("SECURITY_HSTS")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const minCheckoutLockTTL = time.Second

// validate reports all invalid settings together.
func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.CircuitFailureRate <= 0 || c.CircuitFailureRate > 1 {
		errs = append(errs, fmt.Errorf("CIRCUIT_FAILURE_RATE must be in (0,1], got %v", c.CircuitFailureRate))
	}
	if c.CatalogMaxLimit < c.CatalogDefaultLimit {
		errs = append(errs, fmt.Errorf("CATALOG_MAX_LIMIT %d is below CATALOG_DEFAULT_LIMIT %d", c.CatalogMaxLimit, c.CatalogDefaultLimit))
	}
	if c.CheckoutLockTTL < minCheckoutLockTTL {
		errs = append(errs, fmt.Errorf("CHECKOUT_LOCK_TTL must be at least %s, got %s", minCheckoutLockTTL, c.CheckoutLockTTL))
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
	}
	return errors.Join(errs...)
}

// InquiryRecipient returns the address inquiries are delivered to.
func (c *Config) InquiryRecipient() string {
	if c.InquiryEmailTo != "" {
		return c.InquiryEmailTo
	}
	return c.AdminEmail
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

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
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

// parseDiscountCodes reads "CODE:multiplier" pairs separated by commas.
func parseDiscountCodes(value string) (map[string]float64, error) {
	codes := map[string]float64{}
	for _, entry := range splitAndTrim(value) {
		code, raw, ok := strings.Cut(entry, ":")
		code = strings.ToUpper(strings.TrimSpace(code))
		if !ok || code == "" {
			return nil, fmt.Errorf("CHECKOUT_DISCOUNT_CODES: malformed entry %q", entry)
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			return nil, fmt.Errorf("CHECKOUT_DISCOUNT_CODES: invalid multiplier for %s", code)
		}
		codes[code] = factor
	}
	return codes, nil
}
