// Package config loads the marketplace client configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Config holds all runtime settings.
type Config struct {
	// APIURL is the marketplace query endpoint
	APIURL string
	// UserAgent is sent on every query
	UserAgent string
	// RequestTimeout bounds one transport call
	RequestTimeout time.Duration
	// RetryMaxAttempts of 1 disables retries
	RetryMaxAttempts int

	// RedisURL enables the persisted cache mirror when set
	RedisURL string
	// RedisNamespace is the hash key holding mirrored entries
	RedisNamespace string

	// CacheDefaultTTL applies to queries issued without a TTL
	CacheDefaultTTL time.Duration
	// SchemaCacheTTL is the attribute schema expiration window
	SchemaCacheTTL time.Duration
	// CleanupSchedule is the cron spec of the expired-entry purge
	CleanupSchedule string

	LogLevel  string
	LogPretty bool

	// Port is the HTTP listen port of the serve command
	Port string
}

// Default returns the configuration used for unset variables.
func Default() Config {
	return Config{
		UserAgent:        "marketplace-client/0.1.0",
		RequestTimeout:   30 * time.Second,
		RetryMaxAttempts: 1,
		RedisNamespace:   "marketplace:query-cache",
		CacheDefaultTTL:  5 * time.Minute,
		SchemaCacheTTL:   5 * time.Minute,
		CleanupSchedule:  "@every 1m",
		LogLevel:         "info",
		Port:             "8080",
	}
}

// Load reads the configuration from the environment. A .env file is loaded
// first when present; variables already set in the environment win. An
// explicitly given path must exist.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 {
		if err := godotenv.Load(envPath...); err != nil {
			return nil, fmt.Errorf("load env file %v: %w", envPath, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	def := Default()
	cfg := &Config{
		APIURL:           getEnv("MARKETPLACE_API_URL", ""),
		UserAgent:        getEnv("MARKETPLACE_USER_AGENT", def.UserAgent),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisNamespace:   getEnv("REDIS_NAMESPACE", def.RedisNamespace),
		CleanupSchedule:  getEnv("CACHE_CLEANUP_SCHEDULE", def.CleanupSchedule),
		LogLevel:         getEnv("LOG_LEVEL", def.LogLevel),
		Port:             getEnv("PORT", def.Port),
		RetryMaxAttempts: def.RetryMaxAttempts,
	}

	var err error
	if cfg.RequestTimeout, err = getEnvDuration("MARKETPLACE_REQUEST_TIMEOUT", def.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheDefaultTTL, err = getEnvDuration("CACHE_DEFAULT_TTL", def.CacheDefaultTTL); err != nil {
		return nil, err
	}
	if cfg.SchemaCacheTTL, err = getEnvDuration("SCHEMA_CACHE_TTL", def.SchemaCacheTTL); err != nil {
		return nil, err
	}
	if v := os.Getenv("MARKETPLACE_RETRY_MAX_ATTEMPTS"); v != "" {
		if cfg.RetryMaxAttempts, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("MARKETPLACE_RETRY_MAX_ATTEMPTS: %w", err)
		}
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		if cfg.LogPretty, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("LOG_PRETTY: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks the settings a server needs.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("MARKETPLACE_API_URL environment variable is required")
	}
	if c.UserAgent == "" {
		return errors.New("MARKETPLACE_USER_AGENT must not be empty")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("MARKETPLACE_RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	}
	if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
		return fmt.Errorf("CACHE_CLEANUP_SCHEDULE %q: %w", c.CleanupSchedule, err)
	}
	return nil
}

// RedisOptions returns client options for RedisURL, or nil when the mirror
// is disabled. Both redis:// URLs and bare host:port addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if strings.Contains(c.RedisURL, "://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
