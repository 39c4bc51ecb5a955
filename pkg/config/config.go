package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Server
	Port    string
	AppName string

	// Storage. Empty DATABASE_URL runs the in-memory store; empty REDIS_URL
	// disables cross-process change notification.
	DatabaseURL string
	RedisURL    string

	// Identity broker (interactive sign-in backend)
	IdentityBrokerURL string

	// Source host (GitHub)
	WebhookCallbackURL string

	// JWT
	JWTSecret     string
	JWTIssuer     string
	JWTExpiration int // hours

	// Onboarding
	ConnectItemDelay time.Duration

	// Frontend
	FrontendURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envOrDefault("PORT", "3001"),
		AppName: envOrDefault("APP_NAME", "DocSight"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		IdentityBrokerURL: envOrDefault("IDENTITY_BROKER_URL", "http://localhost:9099"),

		WebhookCallbackURL: envOrDefault("WEBHOOK_CALLBACK_URL", "http://localhost:3001/api/v1/webhooks/github"),

		JWTSecret:     envOrDefault("JWT_SECRET", "change-me-in-production"),
		JWTIssuer:     envOrDefault("JWT_ISSUER", "docsight"),
		JWTExpiration: envOrDefaultInt("JWT_EXPIRATION_HOURS", 24),

		ConnectItemDelay: envOrDefaultDuration("CONNECT_ITEM_DELAY", 500*time.Millisecond),

		FrontendURL: envOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}
