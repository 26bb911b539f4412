package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool
	DirectoryFile  string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Booking rules
	MinBookingNotice time.Duration

	// Pricing defaults, used until an operator writes a config to Redis
	DefaultPlatformFeeBps     int
	DefaultBankTransferFeeBps int
	DefaultMinWithdrawalCents int64
	DefaultMaxWithdrawalCents int64
	PricingRefreshInterval    time.Duration

	// Payment gateway
	GatewayProvider      string
	GatewaySecretKey     string
	GatewayBaseURL       string
	WebhookSigningSecret string
	WebhookMaxRetries    int
	WebhookRetryInterval time.Duration
	WebhookStaleAfter    time.Duration

	// Outbox and notifications
	OutboxInterval    time.Duration
	NotifyQueueURL    string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	WebhookArchiveBucket string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		DirectoryFile:  getEnv("DIRECTORY_FILE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		MinBookingNotice: getEnvAsDuration("MIN_BOOKING_NOTICE", 24*time.Hour),

		DefaultPlatformFeeBps:     getEnvAsInt("DEFAULT_PLATFORM_FEE_BPS", 1500),
		DefaultBankTransferFeeBps: getEnvAsInt("DEFAULT_BANK_TRANSFER_FEE_BPS", 100),
		DefaultMinWithdrawalCents: getEnvAsInt64("DEFAULT_MIN_WITHDRAWAL_CENTS", 2500),
		DefaultMaxWithdrawalCents: getEnvAsInt64("DEFAULT_MAX_WITHDRAWAL_CENTS", 1_000_000),
		PricingRefreshInterval:    getEnvAsDuration("PRICING_REFRESH_INTERVAL", time.Minute),

		GatewayProvider:      strings.ToLower(strings.TrimSpace(getEnv("GATEWAY_PROVIDER", "fake"))),
		GatewaySecretKey:     getEnv("GATEWAY_SECRET_KEY", ""),
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.stripe.com"),
		WebhookSigningSecret: getEnv("WEBHOOK_SIGNING_SECRET", ""),
		WebhookMaxRetries:    getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookRetryInterval: getEnvAsDuration("WEBHOOK_RETRY_INTERVAL", 30*time.Second),
		WebhookStaleAfter:    getEnvAsDuration("WEBHOOK_STALE_AFTER", 5*time.Minute),

		OutboxInterval:    getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		NotifyQueueURL:    getEnv("NOTIFY_SQS_QUEUE_URL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Marketplace"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		WebhookArchiveBucket: getEnv("WEBHOOK_ARCHIVE_BUCKET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
