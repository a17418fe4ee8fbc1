// Command ingestion-worker consumes document.uploaded events and runs the
// parse -> chunk -> embed -> upsert pipeline that makes an uploaded
// document searchable.
//
// Purpose:
//   This binary has no HTTP API of its own beyond a metrics endpoint: it is
//   a pure event-driven worker sitting downstream of content-service. It
//   claims documents off the document.uploaded topic, and reports back onto
//   document.processed/document.failed so content-service can reflect the
//   outcome to callers.
//
// Dependencies:
//   - internal/config: Configuration loading
//   - internal/observability: OpenTelemetry and structured logging
//   - internal/storage/postgres: Document status persistence
//   - internal/objectstore: Local/S3-backed object storage reads
//   - internal/inference: Embedding/generation client
//   - internal/vectorindex: Vector upsert client
//   - internal/events: Kafka consumer/publisher for document lifecycle events
//   - internal/ingestion: Pipeline orchestration
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/events"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/inference"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/ingestion"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/objectstore"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/observability"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/vectorindex"
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
	logger.Info("starting ingestion worker",
		zap.String("environment", cfg.Environment),
		zap.Int("max_concurrent_documents", cfg.MaxConcurrentDocuments),
	)

	store, err := postgres.NewStore(ctx, cfg.ContentDatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to content database", zap.Error(err))
	}
	defer store.Close()

	var objStore objectstore.Client
	if cfg.StorageType == "local" {
		objStore = objectstore.NewLocalClient(cfg.StoragePath)
	} else {
		s3Store, err := objectstore.NewS3Client(ctx, cfg.AWSEndpointURL, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.StorageBucket)
		if err != nil {
			logger.Fatal("failed to initialize S3 object store", zap.Error(err))
		}
		objStore = s3Store
	}

	embedClient := inference.NewOllamaClient(cfg.OllamaURL, cfg.OllamaEmbeddingModel, cfg.OllamaGenerationModel)
	vectorClient := vectorindex.NewPineconeClient(cfg.PineconeHost, cfg.PineconeAPIKey)

	publisher := events.NewPublisher(events.PublisherConfig{
		Brokers:  parseKafkaBrokers(cfg.DocumentKafkaBrokers),
		ClientID: cfg.ServiceName,
	}, logger)
	defer publisher.Close()

	processor := ingestion.NewProcessor(store, objStore, embedClient, vectorClient, publisher, cfg, logger)
	worker := ingestion.NewWorker(parseKafkaBrokers(cfg.DocumentKafkaBrokers), cfg.KafkaGroupID, processor, cfg.MaxConcurrentDocuments, logger)
	defer worker.Close()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil {
			logger.Error("ingestion worker stopped", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		logger.Info("metrics server starting", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	shutdownSignalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownSignalCtx.Done()
	logger.Info("shutting down gracefully")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}

	logger.Info("ingestion worker stopped")
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
