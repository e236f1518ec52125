// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq background queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// WebhookConfig provides settings for inbound webhook processing.
type WebhookConfig interface {
	GetCoalesceWindow() time.Duration
	GetCoalesceMaxMessages() int
	GetCoalesceMaxBytes() int
	GetForwardTimeout() time.Duration
	GetDefaultHandoffWindow() time.Duration
}

// WassengerConfig provides settings for the WhatsApp provider API.
type WassengerConfig interface {
	GetWassengerAPIURL() string
}

// MetaConfig provides settings for the Meta Conversions API.
type MetaConfig interface {
	GetMetaGraphURL() string
	GetMetaAPIVersion() string
	GetMetaTestEventCode() string
}

// AnalyticsConfig provides settings for analytics counters.
type AnalyticsConfig interface {
	GetAnalyticsLocation() *time.Location
}

// LeadsConfig provides settings for lead conversion tracking.
type LeadsConfig interface {
	GetLeadClaimTTL() time.Duration
	GetDefaultPhoneRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	CoalesceWindow       time.Duration
	CoalesceMaxMessages  int
	CoalesceMaxBytes     int
	ForwardTimeout       time.Duration
	DefaultHandoffWindow time.Duration
	WassengerAPIURL      string
	MetaGraphURL         string
	MetaAPIVersion       string
	MetaTestEventCode    string
	AnalyticsLocation    *time.Location
	LeadClaimTTL         time.Duration
	DefaultPhoneRegion   string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// WebhookConfig implementation
func (c *Config) GetCoalesceWindow() time.Duration       { return c.CoalesceWindow }
func (c *Config) GetCoalesceMaxMessages() int            { return c.CoalesceMaxMessages }
func (c *Config) GetCoalesceMaxBytes() int               { return c.CoalesceMaxBytes }
func (c *Config) GetForwardTimeout() time.Duration       { return c.ForwardTimeout }
func (c *Config) GetDefaultHandoffWindow() time.Duration { return c.DefaultHandoffWindow }

// WassengerConfig implementation
func (c *Config) GetWassengerAPIURL() string { return c.WassengerAPIURL }

// MetaConfig implementation
func (c *Config) GetMetaGraphURL() string      { return c.MetaGraphURL }
func (c *Config) GetMetaAPIVersion() string    { return c.MetaAPIVersion }
func (c *Config) GetMetaTestEventCode() string { return c.MetaTestEventCode }

// AnalyticsConfig implementation
func (c *Config) GetAnalyticsLocation() *time.Location { return c.AnalyticsLocation }

// LeadsConfig implementation
func (c *Config) GetLeadClaimTTL() time.Duration { return c.LeadClaimTTL }
func (c *Config) GetDefaultPhoneRegion() string  { return c.DefaultPhoneRegion }

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool { return strings.EqualFold(c.Env, "development") }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	location, err := time.LoadLocation(getEnv("ANALYTICS_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":3000"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CoalesceWindow:       mustDuration(getEnv("COALESCE_WINDOW", "15s")),
		CoalesceMaxMessages:  mustInt(getEnv("COALESCE_MAX_MESSAGES", "50")),
		CoalesceMaxBytes:     mustInt(getEnv("COALESCE_MAX_BYTES", "16384")),
		ForwardTimeout:       mustDuration(getEnv("FORWARD_TIMEOUT", "20s")),
		DefaultHandoffWindow: mustDuration(getEnv("HANDOFF_DEFAULT_WINDOW", "2h")),
		WassengerAPIURL:      getEnv("WASSENGER_API_URL", "https://api.wassenger.com"),
		MetaGraphURL:         getEnv("META_GRAPH_URL", "https://graph.facebook.com"),
		MetaAPIVersion:       getEnv("META_API_VERSION", "v18.0"),
		MetaTestEventCode:    getEnv("META_TEST_EVENT_CODE", ""),
		AnalyticsLocation:    location,
		LeadClaimTTL:         mustDuration(getEnv("LEAD_CLAIM_TTL", "24h")),
		DefaultPhoneRegion:   strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "MX")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CoalesceWindow <= 0 {
		return nil, fmt.Errorf("COALESCE_WINDOW must be a positive duration")
	}
	if cfg.ForwardTimeout <= 0 {
		return nil, fmt.Errorf("FORWARD_TIMEOUT must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
