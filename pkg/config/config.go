package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Jobs     JobsConfig

	LogLevel string
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

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// CacheConfig selects the entitlement snapshot cache backend. With a Redis
// URL set the cache is shared across replicas; otherwise each process keeps
// an in-memory LRU.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	TTL           time.Duration
	LRUSize       int
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	JWTSecret string
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	LegacyMapCron  string
	EscalationCron string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEKEEPER_HOST", "0.0.0.0"),
			Port:            getEnv("GATEKEEPER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GATEKEEPER_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("GATEKEEPER_POSTGRES_URL", ""),
			MaxConns: getEnvInt("GATEKEEPER_POSTGRES_MAX_CONNS", 25),
		},
		Cache: CacheConfig{
			RedisURL:      getEnv("GATEKEEPER_REDIS_URL", ""),
			RedisPassword: getEnv("GATEKEEPER_REDIS_PASSWORD", ""),
			TTL:           getEnvDuration("GATEKEEPER_CACHE_TTL", 5*time.Minute),
			LRUSize:       getEnvInt("GATEKEEPER_CACHE_LRU_SIZE", 10000),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("GATEKEEPER_JWT_SECRET", ""),
		},
		Jobs: JobsConfig{
			LegacyMapCron:  getEnv("GATEKEEPER_LEGACY_MAP_CRON", "@hourly"),
			EscalationCron: getEnv("GATEKEEPER_ESCALATION_CRON", "*/30 * * * *"),
		},
		LogLevel: strings.ToLower(getEnv("GATEKEEPER_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
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
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
