// Command admin-api is the main HTTP API server for the identity service.
//
// Purpose:
//
//	This binary provides the org registration, user signup/login/refresh/
//	logout, and user-management REST API. It initializes core dependencies
//	(Postgres, Redis, audit emitter) via bootstrap, wires the HMAC and
//	bearer trust-fabric gates in front of the relevant route groups, and
//	serves HTTP requests with graceful shutdown handling.
//
// Dependencies:
//   - internal/bootstrap: Runtime initialization and lifecycle management
//   - internal/identity: Authentication and user-management business logic
//   - internal/httpapi/{orgs,auth,users}: Route handlers
//   - internal/server: HTTP server with health/readiness endpoints
//   - internal/logging: Structured logging setup
//
// Key Responsibilities:
//   - Load configuration and initialize runtime dependencies
//   - Register org registration, auth, and user-management routes
//   - Serve HTTP requests on configured port
//   - Handle graceful shutdown (SIGINT/SIGTERM) within the configured grace period
//   - Expose health/readiness endpoints for Kubernetes
//
// Debugging Notes:
//   - Server starts on HTTP_PORT (default 8081)
//   - Readiness probe checks Postgres and Redis connectivity
//   - Runtime.Close() releases Postgres pool and Redis connections
//
// Error Handling:
//   - Configuration errors exit with code 1
//   - Bootstrap failures log fatal and exit
//   - Server errors log fatal and exit
//   - Shutdown errors log warning but don't exit
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/bootstrap"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/httpapi/auth"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/httpapi/orgs"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/httpapi/users"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/logging"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/server"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.ServiceName+"-admin-api", cfg.LogLevel)
	logger.Info("starting admin API",
		zap.String("env", cfg.Environment),
		zap.Int("port", cfg.HTTPPort))

	ctx := context.Background()
	runtime, err := bootstrap.Initialize(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to bootstrap runtime", zap.Error(err))
	}
	logger.Info("runtime dependencies initialized")

	svc := identity.New(runtime.Postgres, runtime.Audit, identity.Config{
		JWTSecret:          cfg.JWTSecret,
		AccessTokenTTL:     cfg.AccessTokenTTL(),
		RefreshTokenTTL:    cfg.RefreshTokenTTL(),
		LockoutMaxAttempts: cfg.LockoutMaxAttempts,
		LockoutDuration:    cfg.LockoutDuration(),
	})

	srv := server.New(server.Options{
		Port:        cfg.HTTPPort,
		Logger:      logger,
		ServiceName: cfg.ServiceName + "-admin-api",
		Readiness:   readinessProbe(runtime, logger),
		RegisterRoutes: func(r chi.Router) {
			// Unauthenticated: issues the client_id/client_secret pair every
			// other route's HMAC gate is keyed on.
			orgs.RegisterRoutes(r, svc)

			// HMAC-gated (and, for logout/validate-jwt, bearer-gated too):
			// signup, login, refresh, logout, validation probes.
			auth.RegisterRoutes(r, svc)

			// HMAC + bearer gated, admin-role-only: user management.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireHMAC(svc))
				r.Use(middleware.RequireBearer(svc))
				users.RegisterRoutes(r, svc)
			})
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	if err := runtime.Close(shutdownCtx); err != nil {
		logger.Error("failed to cleanly close runtime", zap.Error(err))
	}

	logger.Info("admin API stopped")
}

// readinessProbe returns a function that checks Postgres and Redis connectivity.
// Used by the HTTP server's /readyz endpoint. Redis is an optional cache, so a
// failed Redis connection is logged but does not fail the probe.
func readinessProbe(rt *bootstrap.Runtime, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if rt == nil {
			return nil
		}
		if rt.Postgres != nil && rt.Postgres.Pool() != nil {
			if err := rt.Postgres.Pool().Ping(ctx); err != nil {
				return err
			}
		}
		if rt.Redis != nil {
			if err := rt.Redis.Ping(ctx).Err(); err != nil {
				logger.Warn("redis ping failed", zap.Error(err))
			}
		}
		return nil
	}
}
