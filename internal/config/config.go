package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// VietQR partner integration
	VietQRUsername     string
	VietQRPassword     string
	WebhookTokenSecret string
	WebhookTokenTTL    time.Duration

	// Reservation lifecycle policy
	ReservationCodePrefix string
	PendingTimeout        time.Duration
	CancellationWindow    time.Duration
	SweepInterval         time.Duration
	SweepSecret           string

	AdminJWTSecret string

	// Email notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	AWSRegion         string

	// Duplicate-delivery cache
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DedupeTTL     time.Duration

	// Abuse protection on the public token endpoint
	TokenRateLimit float64
	TokenRateBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		VietQRUsername:     getEnv("VIETQR_USERNAME", ""),
		VietQRPassword:     getEnv("VIETQR_PASSWORD", ""),
		WebhookTokenSecret: getEnv("WEBHOOK_TOKEN_SECRET", ""),
		WebhookTokenTTL:    getEnvAsDuration("WEBHOOK_TOKEN_TTL", 300*time.Second),

		ReservationCodePrefix: strings.ToUpper(strings.TrimSpace(getEnv("RESERVATION_CODE_PREFIX", "CWS"))),
		PendingTimeout:        getEnvAsDuration("PENDING_TIMEOUT", 5*time.Minute),
		CancellationWindow:    getEnvAsDuration("CANCELLATION_WINDOW", 24*time.Hour),
		SweepInterval:         getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepSecret:           getEnv("SWEEP_SECRET", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CoworkHub"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "CoworkHub"),
		AWSRegion:         getEnv("AWS_REGION", "ap-southeast-1"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DedupeTTL:     getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),

		TokenRateLimit: getEnvAsFloat("TOKEN_RATE_LIMIT", 2),
		TokenRateBurst: getEnvAsInt("TOKEN_RATE_BURST", 5),
	}
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
