// Package postgres provides Postgres-backed persistence for the document
// status transitions the ingestion pipeline is responsible for. It talks to
// the same `documents` table content-service owns; this service only ever
// updates rows it has already been told (via a document.uploaded event) to
// process.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a document row does not exist.
var ErrNotFound = errors.New("postgres: document not found")

// Store provides document status persistence for the ingestion pipeline.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store using the provided connection string.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreFromPool wraps an existing pool, useful for tests that share a
// pool with other stores against the same database.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool. A no-op when constructed from a shared
// pool via NewStoreFromPool, since the caller owns that pool's lifecycle.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Document is the subset of the documents table the pipeline reads and writes.
type Document struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	Filename    string
	ContentType string
	StorageKey  string
	Status      string
	RetryCount  int
}

// GetDocument fetches a document row by id.
func (s *Store) GetDocument(ctx context.Context, documentID uuid.UUID) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, filename, content_type, storage_key, status, retry_count
		FROM documents
		WHERE id = $1 AND deleted_at IS NULL
	`, documentID).Scan(&d.ID, &d.OrgID, &d.Filename, &d.ContentType, &d.StorageKey, &d.Status, &d.RetryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return &d, nil
}

// MarkProcessing transitions a document to processing, unless it is already
// completed (a later-arriving duplicate of an already-handled event) in
// which case it reports skip=true and leaves the row untouched.
func (s *Store) MarkProcessing(ctx context.Context, documentID uuid.UUID) (skip bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = 'processing', updated_at = now(), version = version + 1
		WHERE id = $1 AND deleted_at IS NULL AND status NOT IN ('completed', 'processing')
	`, documentID)
	if err != nil {
		return false, fmt.Errorf("mark processing %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		doc, getErr := s.GetDocument(ctx, documentID)
		if getErr != nil {
			return false, getErr
		}
		return doc.Status == "completed" || doc.Status == "processing", nil
	}
	return false, nil
}

// MarkCompleted writes the terminal success state.
func (s *Store) MarkCompleted(ctx context.Context, documentID uuid.UUID, chunksCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = 'completed', chunks_count = $2, processed_at = now(), updated_at = now(), version = version + 1
		WHERE id = $1
	`, documentID, chunksCount)
	if err != nil {
		return fmt.Errorf("mark completed %s: %w", documentID, err)
	}
	return nil
}

// MarkFailed writes the terminal failure state. errMsg is truncated to 1000
// characters before being stored.
func (s *Store) MarkFailed(ctx context.Context, documentID uuid.UUID, errCode, errMsg string) error {
	if len(errMsg) > 1000 {
		errMsg = errMsg[:1000]
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = 'failed', error_code = $2, error_message = $3, retry_count = retry_count + 1, updated_at = now(), version = version + 1
		WHERE id = $1
	`, documentID, errCode, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", documentID, err)
	}
	return nil
}
