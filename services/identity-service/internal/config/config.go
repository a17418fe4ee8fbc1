// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the service configuration structure and provides
//	functions to load configuration from environment variables using envconfig.
//	All binaries in this service (admin-api, seed) share this configuration
//	structure.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Debugging Notes:
//   - Required fields: DATABASE_URL, JWT_SECRET
//   - Defaults provided for optional fields (ports, Redis, log level)
//   - Redis is optional (no-op cache used if not configured)
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents shared runtime configuration for binaries in the identity service.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"identity-service"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8081"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// RedisAddr is optional; an empty value disables the read-through cache
	// rather than failing startup.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// JWTSecret keys both access- and refresh-token HMAC signatures.
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	AccessTokenTTLSeconds  int `envconfig:"ACCESS_TOKEN_TTL_SECONDS" default:"900"`
	RefreshTokenTTLSeconds int `envconfig:"REFRESH_TOKEN_TTL_SECONDS" default:"604800"`

	KafkaBrokers  string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic    string `envconfig:"KAFKA_TOPIC_AUDIT" default:"audit.identity"`
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"identity-service"`

	LockoutMaxAttempts     int `envconfig:"LOCKOUT_MAX_ATTEMPTS" default:"5"`
	LockoutDurationMinutes int `envconfig:"LOCKOUT_DURATION_MINUTES" default:"30"`

	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`

	ShutdownGracePeriodSeconds int `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"20"`
}

// Load reads environment variables into Config, applying defaults where necessary.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	return &cfg, nil
}

// MustLoad returns Config or exits the process.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// AccessTokenTTL returns the configured access token lifetime as a Duration.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLSeconds) * time.Second
}

// RefreshTokenTTL returns the configured refresh token lifetime as a Duration.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLSeconds) * time.Second
}

// LockoutDuration returns the configured account lockout duration as a Duration.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutDurationMinutes) * time.Minute
}

// ShutdownGracePeriod returns the configured graceful shutdown timeout as a Duration.
func (c *Config) ShutdownGracePeriod() time.Duration {
	return time.Duration(c.ShutdownGracePeriodSeconds) * time.Second
}
