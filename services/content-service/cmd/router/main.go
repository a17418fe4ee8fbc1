// Command router is the main HTTP server for content-service.
//
// Purpose:
//   This binary is the primary entrypoint for document ingestion: it accepts
//   authenticated uploads, persists document metadata and object storage
//   references, and dispatches document lifecycle events that drive the
//   ingestion-worker pipeline. It initializes core dependencies (config,
//   telemetry, Postgres, Redis, Kafka) and serves HTTP requests with
//   graceful shutdown handling.
//
// Dependencies:
//   - internal/config: Configuration loading
//   - internal/telemetry: OpenTelemetry and structured logging
//   - internal/auth: HMAC/bearer authentication gate
//   - internal/documents: Document domain service
//   - internal/events: Outbox-backed event dispatch and consumption
//   - internal/objectstore: Local/S3-backed object storage
//
// Key Responsibilities:
//   - Load configuration and initialize runtime dependencies
//   - Register document API routes (/v1/documents/*)
//   - Register health/readiness endpoints (/v1/status/*)
//   - Serve HTTP requests on configured port
//   - Handle graceful shutdown (SIGINT/SIGTERM)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/api"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/api/public"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/auth"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/documents"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/events"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/objectstore"
	contentpg "github.com/otherjamesbrown/ai-aas/services/content-service/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg := config.MustLoad()

	telemetryCfg := telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.TelemetryEndpoint,
		Protocol:    cfg.TelemetryProtocol,
		Headers:     map[string]string{},
		Insecure:    cfg.TelemetryInsecure,
		LogLevel:    cfg.LogLevel,
	}

	tel := telemetry.MustInit(ctx, telemetryCfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			tel.Logger.Error("failed to shutdown telemetry", zap.Error(err))
		}
	}()

	logger := tel.Logger
	logger.Info("starting content service",
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

	buildMetadata := public.BuildMetadata{
		Version:   getEnvOrDefault("VERSION", "dev"),
		Commit:    getEnvOrDefault("COMMIT_SHA", ""),
		BuildTime: getEnvOrDefault("BUILD_TIME", ""),
	}

	contentPool, err := pgxpool.New(ctx, cfg.ContentDatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to content database", zap.Error(err))
	}
	defer contentPool.Close()
	documentStore := contentpg.NewStoreFromPool(contentPool)

	statusHandlers := public.NewStatusHandlers(public.StatusHandlersConfig{
		RedisClient:   redisClient,
		ContentPool:   contentPool,
		BuildMetadata: buildMetadata,
		Logger:        logger,
		HealthTimeout: 2 * time.Second,
		ReadyTimeout:  5 * time.Second,
	})
	router.Get("/v1/status/healthz", statusHandlers.Healthz)
	router.Get("/v1/status/readyz", statusHandlers.Readyz)

	var objStore objectstore.Client
	if cfg.StorageType == "local" {
		localStore, err := objectstore.NewLocalClient(cfg.StoragePath, cfg.PublicBaseURL+"/internal/storage", []byte(cfg.LocalStorageSecret), logger)
		if err != nil {
			logger.Fatal("failed to initialize local object store", zap.Error(err))
		}
		router.Mount("/internal/storage", localStore.LoopbackHandler("/internal/storage"))
		objStore = localStore
	} else {
		s3Store, err := objectstore.NewS3Client(ctx, cfg.AWSEndpointURL, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.StorageBucket, logger)
		if err != nil {
			logger.Fatal("failed to initialize S3 object store", zap.Error(err))
		}
		objStore = s3Store
	}

	var dispatcher events.Dispatcher
	if cfg.LocalTestMode {
		dispatcher = events.NewLocalDispatcher()
	} else {
		dispatcher = events.NewKafkaDispatcher(events.KafkaDispatcherConfig{
			Brokers:  parseKafkaBrokers(cfg.DocumentKafkaBrokers),
			Topics:   []string{events.TopicDocumentUploaded, events.TopicDocumentProcessed, events.TopicDocumentFailed},
			ClientID: cfg.ServiceName,
		}, logger)
	}
	eventProducer := events.NewProducer(dispatcher, documentStore, cfg.LocalTestMode, logger)
	documentsService := documents.NewService(documentStore, objStore, eventProducer, cfg.UploadURLTTL, logger)

	if localStore, ok := objStore.(*objectstore.LocalClient); ok {
		localStore.SetOnWritten(func(key string) {
			if documentID, ok := documentIDFromStorageKey(key); ok {
				if err := documentsService.MarkUploaded(ctx, documentID); err != nil {
					logger.Error("mark uploaded failed", zap.String("storage_key", key), zap.Error(err))
				}
			}
		})
	}

	if !cfg.LocalTestMode {
		retryTask := events.NewRetryTask(documentStore, eventProducer, cfg.OutboxRetryInterval, logger)
		go retryTask.Run(ctx)

		processedConsumer := events.NewConsumer(events.ConsumerConfig{
			Brokers: parseKafkaBrokers(cfg.DocumentKafkaBrokers),
			Topic:   events.TopicDocumentProcessed,
			GroupID: cfg.KafkaGroupID,
		}, documentProcessedHandler(documentsService, logger), logger)
		go func() {
			if err := processedConsumer.Run(ctx); err != nil {
				logger.Error("document.processed consumer stopped", zap.Error(err))
			}
		}()

		failedConsumer := events.NewConsumer(events.ConsumerConfig{
			Brokers: parseKafkaBrokers(cfg.DocumentKafkaBrokers),
			Topic:   events.TopicDocumentFailed,
			GroupID: cfg.KafkaGroupID,
		}, documentFailedHandler(documentsService, logger), logger)
		go func() {
			if err := failedConsumer.Run(ctx); err != nil {
				logger.Error("document.failed consumer stopped", zap.Error(err))
			}
		}()
	}

	documentsHandler := public.NewDocumentsHandler(documentsService, logger, api.NewErrorBuilder(otel.Tracer("content-service")))

	tracer := otel.Tracer("content-service")

	// Middleware order: body buffer (needed for HMAC verification) -> auth -> handler.
	router.Use(public.BodyBufferMiddleware(64 * 1024))
	router.Use(public.AuthContextMiddleware(authGate, logger, tracer))

	documentsHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler())

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("content service stopped")
}

// documentIDFromStorageKey extracts the document_id from a
// "{org_id}/documents/{document_id}.{ext}" storage key.
func documentIDFromStorageKey(key string) (uuid.UUID, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[1] != "documents" {
		return uuid.UUID{}, false
	}
	name := strings.SplitN(parts[2], ".", 2)[0]
	documentID, err := uuid.Parse(name)
	if err != nil {
		return uuid.UUID{}, false
	}
	return documentID, true
}

// documentProcessedHandler adapts a document.processed envelope into a
// documents.Service call for the Kafka consumer.
func documentProcessedHandler(service *documents.Service, logger *zap.Logger) func(context.Context, string, []byte) error {
	return func(ctx context.Context, key string, payload []byte) error {
		var envelope events.DocumentProcessed
		if err := json.Unmarshal(payload, &envelope); err != nil {
			logger.Error("malformed document.processed envelope", zap.Error(err))
			return nil
		}
		documentID, err := uuid.Parse(envelope.DocumentID)
		if err != nil {
			logger.Error("document.processed envelope has invalid document_id", zap.String("document_id", envelope.DocumentID), zap.Error(err))
			return nil
		}
		return service.UpdateStatusFromProcessed(ctx, documents.ProcessedEvent{DocumentID: documentID, ChunksCount: envelope.ChunksCount})
	}
}

// documentFailedHandler adapts a document.failed envelope into a
// documents.Service call for the Kafka consumer.
func documentFailedHandler(service *documents.Service, logger *zap.Logger) func(context.Context, string, []byte) error {
	return func(ctx context.Context, key string, payload []byte) error {
		var envelope events.DocumentFailed
		if err := json.Unmarshal(payload, &envelope); err != nil {
			logger.Error("malformed document.failed envelope", zap.Error(err))
			return nil
		}
		documentID, err := uuid.Parse(envelope.DocumentID)
		if err != nil {
			logger.Error("document.failed envelope has invalid document_id", zap.String("document_id", envelope.DocumentID), zap.Error(err))
			return nil
		}
		return service.UpdateStatusFromFailed(ctx, documents.FailedEvent{DocumentID: documentID, ErrorMessage: envelope.ErrorMessage, ErrorCode: envelope.ErrorCode})
	}
}

// parseKafkaBrokers parses a comma-separated list of Kafka broker addresses.
func parseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
