// Package ingestion implements the parse -> chunk -> embed -> upsert
// pipeline that turns an uploaded document into searchable vectors.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/events"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/inference"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/objectstore"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/vectorindex"
)

// pipelineError carries the error code persisted to the document row,
// distinct from the underlying error wrapped for logging.
type pipelineError struct {
	code string
	err  error
}

func (e *pipelineError) Error() string { return e.err.Error() }
func (e *pipelineError) Unwrap() error  { return e.err }

func fail(code string, err error) error {
	return &pipelineError{code: code, err: err}
}

// Processor runs the full ingestion pipeline for a single document.
type Processor struct {
	store   *postgres.Store
	objects objectstore.Client
	embed   inference.Client
	vectors vectorindex.Client
	pub     events.Publisher
	cfg     *config.Config
	logger  *zap.Logger
}

func NewProcessor(store *postgres.Store, objects objectstore.Client, embed inference.Client, vectors vectorindex.Client, pub events.Publisher, cfg *config.Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:   store,
		objects: objects,
		embed:   embed,
		vectors: vectors,
		pub:     pub,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "ingestion-processor")),
	}
}

// Process runs the pipeline for one document.uploaded event. It reports
// terminal status to both the documents table and the document event bus;
// the returned error, if non-nil, signals the caller that the message
// should not be acknowledged (so Kafka redelivers it).
func (p *Processor) Process(ctx context.Context, evt events.DocumentUploaded) error {
	documentID, err := uuid.Parse(evt.DocumentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", evt.DocumentID, err)
	}

	log := p.logger.With(zap.String("document_id", evt.DocumentID), zap.String("org_id", evt.OrgID))

	// Step 1: claim the document, idempotently.
	skip, err := p.store.MarkProcessing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if skip {
		log.Info("document already processing or completed, skipping")
		return nil
	}

	chunksCount, procErr := p.run(ctx, documentID, evt)
	if procErr != nil {
		code := "PROCESSING_FAILED"
		var pe *pipelineError
		if errors.As(procErr, &pe) {
			code = pe.code
		}
		log.Error("pipeline failed", zap.String("error_code", code), zap.Error(procErr))

		if err := p.store.MarkFailed(ctx, documentID, code, procErr.Error()); err != nil {
			log.Error("mark failed write failed", zap.Error(err))
			return err
		}
		if err := p.pub.PublishFailed(ctx, events.NewDocumentFailed(evt.DocumentID, evt.OrgID, procErr.Error(), code)); err != nil {
			log.Error("publish document.failed failed", zap.Error(err))
			return err
		}
		// The pipeline itself ran to a terminal, recorded state: don't ask
		// for redelivery on a failure the retry policy has already handled.
		return nil
	}

	if err := p.store.MarkCompleted(ctx, documentID, chunksCount); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if err := p.pub.PublishProcessed(ctx, events.NewDocumentProcessed(evt.DocumentID, evt.OrgID, chunksCount)); err != nil {
		return fmt.Errorf("publish document.processed: %w", err)
	}
	log.Info("document ingested", zap.Int("chunks_count", chunksCount))
	return nil
}

func (p *Processor) run(ctx context.Context, documentID uuid.UUID, evt events.DocumentUploaded) (int, error) {
	// Step 2: fetch bytes.
	reader, err := p.objects.GetObject(ctx, evt.S3Key)
	if err != nil {
		return 0, fail("STORAGE_UNAVAILABLE", fmt.Errorf("fetch object %s: %w", evt.S3Key, err))
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return 0, fail("STORAGE_UNAVAILABLE", fmt.Errorf("read object %s: %w", evt.S3Key, err))
	}

	// Step 3: parse.
	text, err := ParseDocument(evt.ContentType, data)
	if err != nil {
		switch {
		case errors.Is(err, ErrPDFEncrypted):
			return 0, fail("PDF_ENCRYPTED", err)
		case errors.Is(err, ErrInsufficientText):
			return 0, fail("INSUFFICIENT_TEXT", err)
		default:
			return 0, fail("PARSE_ERROR", err)
		}
	}

	// Step 4: chunk.
	chunks := ChunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, fail("INSUFFICIENT_TEXT", fmt.Errorf("document produced no chunks"))
	}

	// Step 5: embed in batches, with retry.
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.EmbeddingBatchSize {
		end := start + p.cfg.EmbeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return 0, fail("EMBEDDING_FAILED", err)
		}
		vectors = append(vectors, batch...)
	}
	if err := inference.ValidateEmbeddings(vectors, p.cfg.EmbeddingDimensions); err != nil {
		return 0, fail("EMBEDDING_FAILED", err)
	}

	// Step 6: upsert, batched, namespaced by org.
	namespace := "org_" + evt.OrgID
	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorindex.Record{
			ID:     fmt.Sprintf("%s_%d", evt.DocumentID, i),
			Values: vectors[i],
			Metadata: map[string]any{
				"document_id":  evt.DocumentID,
				"org_id":       evt.OrgID,
				"filename":     evt.Filename,
				"uploaded_at":  evt.UploadedAt,
				"chunk_index":  c.Index,
				"total_chunks": c.TotalChunks,
				"text":         c.Text,
			},
		}
	}
	for start := 0; start < len(records); start += p.cfg.UpsertBatchSize {
		end := start + p.cfg.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := p.upsertWithRetry(ctx, namespace, records[start:end]); err != nil {
			if errors.Is(err, vectorindex.ErrDimensionMismatch) {
				return 0, fail("DIMENSION_MISMATCH", err)
			}
			return 0, fail("VECTOR_UPSERT_UNREACHABLE", err)
		}
	}

	return len(chunks), nil
}

// embedWithRetry retries transport/shape failures with exponential backoff
// and jitter. Validation failures (wrong dimension, non-finite values) are
// not retried here; they surface once at the end via ValidateEmbeddings.
func (p *Processor) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.EmbeddingMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, p.cfg.EmbeddingRetryBase, attempt); err != nil {
				return nil, err
			}
		}
		vectors, err := p.embed.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		p.logger.Warn("embedding attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", p.cfg.EmbeddingMaxRetries+1, lastErr)
}

// upsertWithRetry retries transport errors but fails fast on a dimension
// mismatch, since retrying won't change the index's configured dimension.
func (p *Processor) upsertWithRetry(ctx context.Context, namespace string, records []vectorindex.Record) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.EmbeddingMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, p.cfg.EmbeddingRetryBase, attempt); err != nil {
				return err
			}
		}
		err := p.vectors.Upsert(ctx, namespace, records)
		if err == nil {
			return nil
		}
		if errors.Is(err, vectorindex.ErrDimensionMismatch) {
			return err
		}
		lastErr = err
		p.logger.Warn("upsert attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return fmt.Errorf("upsert after %d attempts: %w", p.cfg.EmbeddingMaxRetries+1, lastErr)
}

// sleepBackoff waits base * 2^(attempt-1) plus up to 20% jitter, or returns
// ctx.Err() if the context is cancelled first.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base * time.Duration(1<<uint(attempt-1))
	delay += time.Duration(rand.Int63n(int64(delay)/5 + 1))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
