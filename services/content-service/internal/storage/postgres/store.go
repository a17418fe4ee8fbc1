// Package postgres is the document store: Postgres-backed persistence for
// uploaded documents and the failed_events delivery outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides Postgres-backed persistence for the content service.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewStore creates a store using the provided connection string and takes ownership of the pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool for internal collaborators.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// sortColumns maps the API-facing sort field names to actual columns so a
// caller-controlled string never reaches string-built SQL directly.
var sortColumns = map[string]string{
	"uploaded_at": "created_at",
	"filename":    "sanitized_filename",
	"status":      "status",
}

// CreateDocument inserts a new pending document row.
func (s *Store) CreateDocument(ctx context.Context, params CreateDocumentParams) (Document, error) {
	var doc Document
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, org_id, uploader_user_id, filename, sanitized_filename, content_type, file_size, storage_key, status, retry_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 1, now(), now())
		RETURNING id, org_id, uploader_user_id, filename, sanitized_filename, content_type, file_size, storage_key, status, chunks_count, error_message, error_code, retry_count, processed_at, version, created_at, updated_at, deleted_at
	`, params.ID, params.OrgID, params.UploaderUserID, params.Filename, params.SanitizedFilename, params.ContentType, params.FileSize, params.StorageKey, StatusPending)
	if err := scanDocument(row, &doc); err != nil {
		if isUniqueViolation(err) {
			return Document{}, ErrDuplicate
		}
		return Document{}, fmt.Errorf("postgres: create document: %w", err)
	}
	return doc, nil
}

// GetDocument loads a single document, tenant-scoped, excluding soft-deleted rows.
func (s *Store) GetDocument(ctx context.Context, orgID, id uuid.UUID) (Document, error) {
	var doc Document
	row := s.pool.QueryRow(ctx, `
		SELECT id, org_id, uploader_user_id, filename, sanitized_filename, content_type, file_size, storage_key, status, chunks_count, error_message, error_code, retry_count, processed_at, version, created_at, updated_at, deleted_at
		FROM documents WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id)
	if err := scanDocument(row, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	return doc, nil
}

// GetDocumentByID loads a document regardless of org, used by event consumers
// that only know document_id. Callers must not expose this result to tenants
// without re-checking org_id themselves.
func (s *Store) GetDocumentByID(ctx context.Context, id uuid.UUID) (Document, error) {
	var doc Document
	row := s.pool.QueryRow(ctx, `
		SELECT id, org_id, uploader_user_id, filename, sanitized_filename, content_type, file_size, storage_key, status, chunks_count, error_message, error_code, retry_count, processed_at, version, created_at, updated_at, deleted_at
		FROM documents WHERE id = $1
	`, id)
	if err := scanDocument(row, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("postgres: get document by id: %w", err)
	}
	return doc, nil
}

// ListDocuments returns a tenant-scoped page of non-deleted documents and the
// total matching count. filter.SortField/SortDir must already be validated
// against the allowed set; unrecognized values fall back to uploaded_at desc.
func (s *Store) ListDocuments(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Document, int, error) {
	column, ok := sortColumns[filter.SortField]
	if !ok {
		column = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(filter.SortDir, "asc") {
		dir = "ASC"
	}

	args := []any{orgID}
	where := "org_id = $1 AND deleted_at IS NULL"
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT id, org_id, uploader_user_id, filename, sanitized_filename, content_type, file_size, storage_key, status, chunks_count, error_message, error_code, retry_count, processed_at, version, created_at, updated_at, deleted_at
		FROM documents WHERE %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d
	`, where, column, dir, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, 0, fmt.Errorf("postgres: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countArgs := []any{orgID}
	countWhere := "org_id = $1 AND deleted_at IS NULL"
	if filter.Status != "" {
		countArgs = append(countArgs, filter.Status)
		countWhere += fmt.Sprintf(" AND status = $%d", len(countArgs))
	}
	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM documents WHERE "+countWhere, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count documents: %w", err)
	}
	return docs, total, nil
}

// MarkUploaded transitions pending -> uploaded. No-op (but not an error) if
// the document is already past pending, since the upload callback may fire
// more than once.
func (s *Store) MarkUploaded(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, StatusUploaded, StatusPending)
	if err != nil {
		return fmt.Errorf("postgres: mark uploaded: %w", err)
	}
	return nil
}

// UpdateStatusProcessing moves the document into processing. Idempotent: a
// document already completed is left untouched; one already processing
// simply continues.
func (s *Store) UpdateStatusProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND status NOT IN ($3, $2)
	`, id, StatusProcessing, StatusCompleted)
	if err != nil {
		return fmt.Errorf("postgres: update status processing: %w", err)
	}
	return nil
}

// CompleteDocument records a successful ingestion.
func (s *Store) CompleteDocument(ctx context.Context, id uuid.UUID, chunksCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, chunks_count = $3, processed_at = now(), version = version + 1, updated_at = now()
		WHERE id = $1
	`, id, StatusCompleted, chunksCount)
	if err != nil {
		return fmt.Errorf("postgres: complete document: %w", err)
	}
	return nil
}

// FailDocument records an ingestion failure, bumping retry_count.
func (s *Store) FailDocument(ctx context.Context, id uuid.UUID, errorMessage, errorCode string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, error_message = $3, error_code = $4, retry_count = retry_count + 1, version = version + 1, updated_at = now()
		WHERE id = $1
	`, id, StatusFailed, errorMessage, errorCode)
	if err != nil {
		return fmt.Errorf("postgres: fail document: %w", err)
	}
	return nil
}

// SoftDeleteDocument marks a document deleted without removing the row,
// tenant-scoped, and returns its storage key so the caller can best-effort
// delete the underlying object. Returns ErrNotFound if the document does not
// exist, is already deleted, or belongs to another org.
func (s *Store) SoftDeleteDocument(ctx context.Context, orgID, id uuid.UUID) (string, error) {
	var storageKey string
	err := s.pool.QueryRow(ctx, `
		UPDATE documents SET deleted_at = now(), version = version + 1, updated_at = now()
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING storage_key
	`, orgID, id).Scan(&storageKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("postgres: soft delete document: %w", err)
	}
	return storageKey, nil
}

func scanDocument(row pgx.Row, d *Document) error {
	return row.Scan(&d.ID, &d.OrgID, &d.UploaderUserID, &d.Filename, &d.SanitizedFilename, &d.ContentType, &d.FileSize,
		&d.StorageKey, &d.Status, &d.ChunksCount, &d.ErrorMessage, &d.ErrorCode, &d.RetryCount, &d.ProcessedAt,
		&d.Version, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt)
}

// CreateFailedEvent appends an outbox row for an event that failed to publish.
func (s *Store) CreateFailedEvent(ctx context.Context, params CreateFailedEventParams) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_events (id, topic, payload, error_message, attempt_count, created_at)
		VALUES ($1, $2, $3, $4, 0, now())
	`, params.ID, params.Topic, params.Payload, params.ErrorMessage)
	if err != nil {
		return fmt.Errorf("postgres: create failed event: %w", err)
	}
	return nil
}

// LockUndeliveredEvents selects undelivered outbox rows oldest-first with
// FOR UPDATE SKIP LOCKED, so concurrent content-service replicas running the
// retry task never double-publish the same event. Must be called inside a
// transaction; the caller commits once each row has been republished (or
// left locked for the next tick on failure).
func (s *Store) LockUndeliveredEvents(ctx context.Context, tx pgx.Tx, limit int) ([]FailedEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, error_message, attempt_count, created_at, last_attempted_at, delivered_at
		FROM failed_events WHERE delivered_at IS NULL
		ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock undelivered events: %w", err)
	}
	defer rows.Close()

	var events []FailedEvent
	for rows.Next() {
		var e FailedEvent
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &e.ErrorMessage, &e.AttemptCount, &e.CreatedAt, &e.LastAttemptedAt, &e.DeliveredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan failed event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// BeginTx exposes transaction control to collaborators (the outbox retry
// task) that need row locks spanning a Kafka publish call.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.BeginTx(ctx, pgx.TxOptions{})
}

// MarkEventDelivered flags an outbox row as successfully republished.
func (s *Store) MarkEventDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE failed_events SET delivered_at = now(), last_attempted_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark event delivered: %w", err)
	}
	return nil
}

// BumpEventAttempt records a retry attempt that still failed.
func (s *Store) BumpEventAttempt(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE failed_events SET attempt_count = attempt_count + 1, last_attempted_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: bump event attempt: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}
