package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/pulse/pkg/ratelimit"
	"github.com/platinummonkey/pulse/pkg/stats"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Stats store configuration
	Store stats.Config

	// Admission control configuration
	RateLimit RateLimitConfig

	// User registry configuration
	Users UsersConfig

	// Cleanup configuration
	Cleanup CleanupConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RateLimitConfig holds admission control configuration. The default
// policy applies to every event category that has no explicit override;
// overrides come from an optional YAML policy file.
type RateLimitConfig struct {
	Default    ratelimit.Config
	PolicyFile string
}

// UsersConfig holds user registry configuration
type UsersConfig struct {
	DataFile string
}

// CleanupConfig holds retention cleanup configuration
type CleanupConfig struct {
	// Schedule is a cron expression; cleanup is disabled when empty.
	Schedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		RateLimit:     loadRateLimitConfig(),
		Users:         loadUsersConfig(),
		Cleanup:       loadCleanupConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PULSE_HOST", "0.0.0.0"),
		Port:            getEnv("PULSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PULSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PULSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PULSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PULSE_HEALTH_PORT", "9090"),
	}
}

// loadStoreConfig loads stats store configuration from environment
func loadStoreConfig() stats.Config {
	cfg := stats.DefaultConfig()

	if redisURL := getEnv("PULSE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if dialTimeout := getEnvDuration("PULSE_REDIS_DIAL_TIMEOUT", 0); dialTimeout > 0 {
		cfg.DialTimeout = dialTimeout
	}
	if opTimeout := getEnvDuration("PULSE_REDIS_OP_TIMEOUT", 0); opTimeout > 0 {
		cfg.OpTimeout = opTimeout
	}

	return cfg
}

// loadRateLimitConfig loads admission control configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	policy := ratelimit.DefaultConfig()

	if maxRequests := getEnvInt("PULSE_RATE_LIMIT_MAX", 0); maxRequests > 0 {
		policy.MaxRequests = maxRequests
	}
	if window := getEnvDuration("PULSE_RATE_LIMIT_WINDOW", 0); window > 0 {
		policy.Window = window
	}

	return RateLimitConfig{
		Default:    policy,
		PolicyFile: getEnv("PULSE_RATE_POLICY_FILE", ""),
	}
}

// loadUsersConfig loads user registry configuration from environment
func loadUsersConfig() UsersConfig {
	return UsersConfig{
		DataFile: getEnv("PULSE_USERS_FILE", "data/users.json"),
	}
}

// loadCleanupConfig loads retention cleanup configuration from environment
func loadCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Schedule: getEnv("PULSE_CLEANUP_SCHEDULE", "0 * * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       normalizeLogLevel(getEnv("PULSE_LOG_LEVEL", "info")),
		LogFormat:      getEnv("PULSE_LOG_FORMAT", "json"),
		MetricsEnabled: getEnvBool("PULSE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Store.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if err := c.RateLimit.Default.Validate(); err != nil {
		return fmt.Errorf("invalid default rate limit policy: %w", err)
	}

	if c.Users.DataFile == "" {
		return fmt.Errorf("users data file is required")
	}

	return nil
}

// normalizeLogLevel maps a log level string onto the levels the logger
// understands, defaulting to info for anything unrecognized
func normalizeLogLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug":
		return "debug"
	case "info":
		return "info"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return "info"
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
