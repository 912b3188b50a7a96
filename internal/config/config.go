// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Order persistence. At most one of DatabaseURL and OrderAPIURL is set;
	// with neither, orders and comments live in memory.
	DatabaseURL   string
	AutoMigrate   bool   // apply migrations at startup when DatabaseURL is set
	OrderAPIURL   string // existing EscrowPi backend
	OrderAPIToken string

	// Pi Platform
	PiAPIURL string
	PiAPIKey string // server key for payment approval/completion

	// DemoMode trusts the X-Pi-Username header and settles payments in a
	// sandbox. Never valid in production.
	DemoMode bool

	// Order expiry
	OrderExpiry         time.Duration
	ExpirySweepInterval time.Duration

	// Payment circuit breaker
	PaymentBreakerThreshold int
	PaymentBreakerCooldown  time.Duration

	// HTTP edge
	CORSOrigins        []string
	RateLimitPerMinute int
	RateLimitBurst     int

	// Tracing (empty disables export)
	OTLPEndpoint string
}

const (
	DefaultPort                    = "8080"
	DefaultEnv                     = "development"
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "text"
	DefaultPiAPIURL                = "https://api.minepi.com/v2"
	DefaultOrderExpiry             = 72 * time.Hour
	DefaultExpirySweepInterval     = 5 * time.Minute
	DefaultPaymentBreakerThreshold = 5
	DefaultPaymentBreakerCooldown  = 30 * time.Second
	DefaultRateLimitPerMinute      = 60
	DefaultRateLimitBurst          = 10
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:               getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		AutoMigrate:             getEnvBool("AUTO_MIGRATE", false),
		OrderAPIURL:             os.Getenv("ORDER_API_URL"),
		OrderAPIToken:           os.Getenv("ORDER_API_TOKEN"),
		PiAPIURL:                getEnv("PI_API_URL", DefaultPiAPIURL),
		PiAPIKey:                os.Getenv("PI_API_KEY"),
		DemoMode:                getEnvBool("DEMO_MODE", false),
		OrderExpiry:             getEnvDuration("ORDER_EXPIRY", DefaultOrderExpiry),
		ExpirySweepInterval:     getEnvDuration("EXPIRY_SWEEP_INTERVAL", DefaultExpirySweepInterval),
		PaymentBreakerThreshold: int(getEnvInt64("PAYMENT_BREAKER_THRESHOLD", DefaultPaymentBreakerThreshold)),
		PaymentBreakerCooldown:  getEnvDuration("PAYMENT_BREAKER_COOLDOWN", DefaultPaymentBreakerCooldown),
		CORSOrigins:             getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimitPerMinute:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitPerMinute)),
		RateLimitBurst:          int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("PORT must be a TCP port number, got %q", c.Port)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	if c.DatabaseURL != "" && c.OrderAPIURL != "" {
		return fmt.Errorf("DATABASE_URL and ORDER_API_URL are mutually exclusive")
	}
	if c.DemoMode && c.IsProduction() {
		return fmt.Errorf("DEMO_MODE cannot be enabled in production")
	}
	if !c.DemoMode {
		if c.PiAPIURL == "" {
			return fmt.Errorf("PI_API_URL is required")
		}
		if c.PiAPIKey == "" {
			return fmt.Errorf("PI_API_KEY is required unless DEMO_MODE is enabled")
		}
	}
	if c.OrderExpiry <= 0 {
		return fmt.Errorf("ORDER_EXPIRY must be positive")
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive")
	}
	if c.PaymentBreakerThreshold <= 0 {
		return fmt.Errorf("PAYMENT_BREAKER_THRESHOLD must be positive")
	}
	if c.PaymentBreakerCooldown <= 0 {
		return fmt.Errorf("PAYMENT_BREAKER_COOLDOWN must be positive")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// StorageBackend names where orders are kept: "postgres", "orderapi" or
// "memory".
func (c *Config) StorageBackend() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.OrderAPIURL != "":
		return "orderapi"
	default:
		return "memory"
	}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
