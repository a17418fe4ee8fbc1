package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the ingestion worker.
type Config struct {
	// Service identity
	ServiceName string `envconfig:"SERVICE_NAME" default:"ingestion-worker"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Content database (shared with content-service; this process only
	// updates documents it has been told to process)
	ContentDatabaseURL string `envconfig:"CONTENT_DATABASE_URL" required:"true"`

	// Document event bus
	DocumentKafkaBrokers string `envconfig:"DOCUMENT_KAFKA_BROKERS" default:"localhost:9092"`
	KafkaGroupID         string `envconfig:"KAFKA_GROUP_ID" default:"ingestion-worker"`

	// Object storage (must match content-service's backend for the same documents)
	StorageType        string `envconfig:"STORAGE_TYPE" default:"local"`
	StoragePath        string `envconfig:"STORAGE_PATH" default:"/tmp/content-service-storage"`
	StorageBucket      string `envconfig:"STORAGE_BUCKET" default:"ai-aas-documents"`
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID" default:""`
	AWSSecretKey       string `envconfig:"AWS_SECRET_ACCESS_KEY" default:""`
	AWSEndpointURL     string `envconfig:"AWS_ENDPOINT_URL" default:""`

	// Observability
	TelemetryEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	TelemetryProtocol string `envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	TelemetryInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsPort       int    `envconfig:"METRICS_PORT" default:"9090"`

	// Pipeline concurrency
	MaxConcurrentDocuments int `envconfig:"MAX_CONCURRENT_DOCUMENTS" default:"5"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// Embedding
	OllamaURL             string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaEmbeddingModel  string `envconfig:"OLLAMA_EMBEDDING_MODEL" default:"nomic-embed-text"`
	OllamaGenerationModel string `envconfig:"OLLAMA_GENERATION_MODEL" default:"llama3"`
	EmbeddingDimensions   int    `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	EmbeddingBatchSize    int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"100"`

	// Vector index
	PineconeAPIKey string `envconfig:"PINECONE_API_KEY" default:""`
	PineconeHost   string `envconfig:"PINECONE_HOST" required:"true"`
	UpsertBatchSize int   `envconfig:"UPSERT_BATCH_SIZE" default:"100"`

	// Retry
	EmbeddingMaxRetries int           `envconfig:"EMBEDDING_MAX_RETRIES" default:"3"`
	EmbeddingRetryBase  time.Duration `envconfig:"EMBEDDING_RETRY_BASE" default:"1s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ContentDatabaseURL == "" {
		return fmt.Errorf("CONTENT_DATABASE_URL is required")
	}
	if c.MaxConcurrentDocuments <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_DOCUMENTS must be positive, got %d", c.MaxConcurrentDocuments)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be non-negative and smaller than CHUNK_SIZE, got %d", c.ChunkOverlap)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	return nil
}
