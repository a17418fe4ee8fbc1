// Package bootstrap provides centralized initialization and lifecycle management for
// core service dependencies (Postgres, Redis, audit emitter).
//
// Purpose:
//
//	This package wires together the foundational runtime dependencies required by
//	the admin-api and seed binaries. It ensures consistent initialization order,
//	handles connection failures gracefully, and provides a unified shutdown and
//	health check interface.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: Redis client, used as an optional read-through
//     cache (failed-login lockout state lives in Postgres, not Redis)
//   - internal/config: Service configuration from environment variables
//   - internal/storage/postgres: Core data access layer
//
// Key Responsibilities:
//   - Initialize connects to Postgres and optional Redis, composes the audit emitter
//   - Runtime bundles all initialized dependencies for use by binaries
//   - ReadinessProbe checks health of Postgres and Redis connections
//   - Close releases all resources in reverse initialization order
//
// Debugging Notes:
//   - Redis connection failures during init degrade to no-cache rather than
//     failing startup; Redis here backs an optional cache, not a required store
//   - Postgres connection failures prevent service startup (required dependency)
//
// Error Handling:
//   - Initialization errors are wrapped with context (e.g., "bootstrap postgres: ...")
//   - ReadinessProbe returns errors that include dependency names for observability
//   - Close collects errors but returns the first one encountered
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/audit"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/logging"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/storage/postgres"
)

// Runtime bundles initialized runtime dependencies for use by service binaries.
// All fields are populated during Initialize and remain valid until Close is called.
type Runtime struct {
	Config   *config.Config  // Service configuration (read-only after init)
	Postgres *postgres.Store // PostgreSQL data access layer (required)
	Redis    *redis.Client   // Optional read-through cache, nil if not configured
	Logger   *zap.Logger     // Structured service logger
	Audit    audit.Emitter   // Audit event emitter
}

// Initialize wires core dependencies based on the provided configuration.
// Initialization order: Postgres → Redis (if configured) → audit emitter.
// Returns an error if any required dependency fails to initialize.
// The returned Runtime must be closed via Close() during shutdown.
func Initialize(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	pgStore, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	auditLogger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()

	runtime := &Runtime{
		Config:   cfg,
		Postgres: pgStore,
		Logger:   logger,
		Audit:    audit.NewLoggerEmitter(auditLogger),
	}

	if cfg.RedisAddr != "" {
		runtime.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		// Best-effort ping with timeout; Redis here only backs an optional
		// cache, so an unreachable Redis degrades rather than fails startup.
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := runtime.Redis.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
			runtime.Redis = nil
		}
	}

	return runtime, nil
}

// Close releases runtime resources in reverse initialization order.
// Safe to call multiple times (idempotent). Returns the first error encountered,
// but continues closing other resources.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var firstErr error
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Logger != nil {
		_ = rt.Logger.Sync()
	}
	return firstErr
}

// ReadinessProbe checks the health of critical runtime dependencies.
// Used by Kubernetes readiness checks and /readyz endpoint. Returns an error
// if Postgres or Redis (if configured) are unreachable. Context timeout should
// be set by the caller (typically 1-2 seconds for fast failure).
func (rt *Runtime) ReadinessProbe(ctx context.Context) error {
	if rt.Postgres != nil {
		if err := rt.Postgres.Pool().Ping(ctx); err != nil {
			return fmt.Errorf("postgres not ready: %w", err)
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	return nil
}
