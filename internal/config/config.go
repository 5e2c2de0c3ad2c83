// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mwhitt/trustrail/internal/trust"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Redis (optional, enables the device health cache)
	RedisURL string

	// Scoring
	Weights              trust.Weights
	FlagRiskIncrement    float64
	FlagTTL              time.Duration // 0 disables flag decay
	ProviderTimeout      time.Duration
	DeviceHealthProvider string // "" disables, "static" for demo mode

	// Action policy
	BlockBelow     float64
	AllowAtOrAbove float64

	// Security
	WebhookSecret  string // HMAC key for alert deliveries
	RateLimitRPS   int
	RateLimitBurst int

	// Tracing
	OTLPEndpoint string // optional, tracing no-ops when unset
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultRateLimit      = 100
	DefaultRateLimitBurst = 200
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	defaults := trust.DefaultConfig()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:             os.Getenv("REDIS_URL"),
		Weights:              loadWeights(),
		FlagRiskIncrement:    getEnvFloat("FLAG_RISK_INCREMENT", defaults.FlagRiskIncrement),
		FlagTTL:              getEnvDuration("FLAG_TTL", 0),
		ProviderTimeout:      getEnvDuration("PROVIDER_TIMEOUT", defaults.ProviderTimeout),
		DeviceHealthProvider: os.Getenv("DEVICE_HEALTH_PROVIDER"),
		BlockBelow:           getEnvFloat("ACTION_BLOCK_BELOW", 40),
		AllowAtOrAbove:       getEnvFloat("ACTION_ALLOW_AT_OR_ABOVE", 80),
		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:         int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		RateLimitBurst:       int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadWeights() trust.Weights {
	w := trust.DefaultWeights
	w.DeviceHealth = getEnvFloat("WEIGHT_DEVICE_HEALTH", w.DeviceHealth)
	w.Activity = getEnvFloat("WEIGHT_ACTIVITY", w.Activity)
	w.SocialInfluence = getEnvFloat("WEIGHT_SOCIAL_INFLUENCE", w.SocialInfluence)
	w.FinancialTrust = getEnvFloat("WEIGHT_FINANCIAL_TRUST", w.FinancialTrust)
	w.SecurityScore = getEnvFloat("WEIGHT_SECURITY_SCORE", w.SecurityScore)
	w.Longevity = getEnvFloat("WEIGHT_LONGEVITY", w.Longevity)
	return w
}

// Validate checks that the configuration is coherent. A bad weight
// vector fails here, at startup, never per-request.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}
	if c.BlockBelow >= c.AllowAtOrAbove {
		return fmt.Errorf("ACTION_BLOCK_BELOW (%g) must be below ACTION_ALLOW_AT_OR_ABOVE (%g)", c.BlockBelow, c.AllowAtOrAbove)
	}
	if c.RateLimitRPS < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be at least 1")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// TrustConfig assembles the scoring engine configuration.
func (c *Config) TrustConfig() trust.Config {
	tc := trust.DefaultConfig()
	tc.Weights = c.Weights
	tc.FlagRiskIncrement = c.FlagRiskIncrement
	tc.FlagTTL = c.FlagTTL
	tc.ProviderTimeout = c.ProviderTimeout
	return tc
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
