// Command rag-service is the main HTTP server for the RAG chat API.
//
// Purpose:
//
//	This binary answers chat queries by retrieving relevant document chunks
//	from the vector index, grounding a generation call in them, and
//	persisting the conversation. It owns the conversations and messages
//	tables; it has no event bus of its own, since nothing downstream
//	consumes a chat turn as an event.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/api"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/api/public"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/auth"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/inference"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/observability"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/rag"
	ragpg "github.com/otherjamesbrown/ai-aas/services/rag-service/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/vectorindex"
)

func main() {
	ctx := context.Background()

	cfg := config.MustLoad()

	obs := observability.MustInit(ctx, observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.TelemetryEndpoint,
		Protocol:    cfg.TelemetryProtocol,
		Headers:     map[string]string{},
		Insecure:    cfg.TelemetryInsecure,
		LogLevel:    cfg.LogLevel,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			obs.Logger.Error("failed to shutdown telemetry", zap.Error(err))
		}
	}()

	logger := obs.Logger
	logger.Info("starting rag service",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.HTTPPort),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Redis is optional: its absence only disables the HMAC gate's
	// org-lookup cache, falling through to a live lookup per request.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, org-lookup caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis connected", zap.String("addr", cfg.RedisAddr))
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	authGate := auth.NewGate(cfg.IdentityServiceURL, redisClient, cfg.IdentityServiceTimeout, logger)

	conversationPool, err := pgxpool.New(ctx, cfg.ConversationDatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to conversation database", zap.Error(err))
	}
	defer conversationPool.Close()
	store := ragpg.NewStoreFromPool(conversationPool)

	buildMetadata := public.BuildMetadata{
		Version:   getEnvOrDefault("VERSION", "dev"),
		Commit:    getEnvOrDefault("COMMIT_SHA", ""),
		BuildTime: getEnvOrDefault("BUILD_TIME", ""),
	}

	statusHandlers := public.NewStatusHandlers(public.StatusHandlersConfig{
		RedisClient:      redisClient,
		ConversationPool: conversationPool,
		BuildMetadata:    buildMetadata,
		Logger:           logger,
		HealthTimeout:    2 * time.Second,
		ReadyTimeout:     5 * time.Second,
	})
	router.Get("/healthz", statusHandlers.Healthz)
	router.Get("/readyz", statusHandlers.Readyz)
	router.Handle("/metrics", promhttp.Handler())

	embedClient := inference.NewOllamaClient(cfg.OllamaURL, cfg.OllamaEmbeddingModel, cfg.OllamaGenerationModel, maxDuration(cfg.EmbeddingTimeout, cfg.GenerationTimeout))
	vectorClient := vectorindex.NewPineconeClient(cfg.PineconeHost, cfg.PineconeAPIKey)
	orchestrator := rag.NewOrchestrator(store, embedClient, vectorClient, cfg, logger)

	errorBuilder := api.NewBuilder(otel.Tracer(cfg.ServiceName))
	chatHandler := public.NewChatHandler(orchestrator, store, logger, errorBuilder)

	// Middleware order: body buffer (needed for HMAC verification) -> auth -> handler.
	router.Group(func(r chi.Router) {
		r.Use(public.BodyBufferMiddleware(64 * 1024))
		r.Use(public.AuthContextMiddleware(authGate, errorBuilder, logger, otel.Tracer(cfg.ServiceName)))
		chatHandler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	shutdownSignalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownSignalCtx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("rag service stopped")
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
