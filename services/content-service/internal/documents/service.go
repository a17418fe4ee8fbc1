package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/events"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/objectstore"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/storage/postgres"
)

// Service implements document upload, listing, status, and deletion, tying
// together the document store, the object store, and the event producer.
type Service struct {
	store       *postgres.Store
	objectStore objectstore.Client
	producer    *events.Producer
	uploadTTL   time.Duration
	logger      *zap.Logger
}

func NewService(store *postgres.Store, objectStore objectstore.Client, producer *events.Producer, uploadTTL time.Duration, logger *zap.Logger) *Service {
	if uploadTTL < MinUploadURLTTL {
		uploadTTL = MinUploadURLTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, objectStore: objectStore, producer: producer, uploadTTL: uploadTTL, logger: logger.With(zap.String("component", "documents"))}
}

// IssueUpload validates the requested upload, creates the pending document
// row, mints a presigned upload URL, and emits document.uploaded. The
// response always succeeds once the row is created, even if the event could
// not be published immediately — Producer.Publish falls back to the outbox.
func (s *Service) IssueUpload(ctx context.Context, orgID, userID uuid.UUID, filename, contentType string, fileSize int64) (IssueUploadResult, error) {
	ext, ok := extensionFor(contentType)
	if !ok {
		return IssueUploadResult{}, ErrUnsupportedType
	}
	if fileSize > MaxFileSize {
		return IssueUploadResult{}, ErrFileTooLarge
	}

	sanitized := sanitizeFilename(filename)
	if sanitized == "" {
		return IssueUploadResult{}, ErrInvalidFilename
	}

	documentID := uuid.New()
	storageKey := fmt.Sprintf("%s/documents/%s.%s", orgID.String(), documentID.String(), ext)

	doc, err := s.store.CreateDocument(ctx, postgres.CreateDocumentParams{
		ID:                documentID,
		OrgID:             orgID,
		UploaderUserID:    userID,
		Filename:          filename,
		SanitizedFilename: sanitized,
		ContentType:       contentType,
		FileSize:          fileSize,
		StorageKey:        storageKey,
	})
	if err != nil {
		return IssueUploadResult{}, fmt.Errorf("documents: create document: %w", err)
	}

	uploadURL, err := s.objectStore.PresignPut(ctx, storageKey, contentType, s.uploadTTL)
	if err != nil {
		return IssueUploadResult{}, fmt.Errorf("documents: presign upload: %w", err)
	}

	envelope := events.NewDocumentUploaded(doc.ID.String(), orgID.String(), storageKey, contentType, sanitized, doc.CreatedAt)
	if err := s.producer.Publish(ctx, events.TopicDocumentUploaded, doc.ID.String(), envelope); err != nil {
		s.logger.Error("document.uploaded publish and outbox fallback both failed", zap.String("document_id", doc.ID.String()), zap.Error(err))
	}

	return IssueUploadResult{
		DocumentID: doc.ID.String(),
		UploadURL:  uploadURL,
		ExpiresIn:  int(s.uploadTTL.Seconds()),
	}, nil
}

// List returns a tenant-scoped, paginated, sorted view of non-deleted documents.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, opts ListOptions) (ListResult, error) {
	opts.ValidateSort()
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	docs, total, err := s.store.ListDocuments(ctx, orgID, postgres.ListFilter{
		Status:    opts.Status,
		SortField: opts.SortField,
		SortDir:   opts.SortDir,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("documents: list: %w", err)
	}

	summaries := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, DocumentSummary{
			ID:         d.ID.String(),
			Filename:   d.SanitizedFilename,
			Status:     d.Status,
			UploadedAt: d.CreatedAt,
		})
	}

	return ListResult{
		Documents: summaries,
		Total:     total,
		HasMore:   opts.Offset+len(summaries) < total,
	}, nil
}

// GetStatus returns a tenant-scoped document's status, including derived
// terminal-state fields. Returns ErrNotFound if the document does not exist,
// is soft-deleted, or belongs to another org.
func (s *Service) GetStatus(ctx context.Context, orgID, id uuid.UUID) (DocumentStatus, error) {
	doc, err := s.store.GetDocument(ctx, orgID, id)
	if err != nil {
		if err == postgres.ErrNotFound {
			return DocumentStatus{}, ErrNotFound
		}
		return DocumentStatus{}, fmt.Errorf("documents: get status: %w", err)
	}

	status := DocumentStatus{
		ID:           doc.ID.String(),
		Filename:     doc.SanitizedFilename,
		Status:       doc.Status,
		UploadedAt:   doc.CreatedAt,
		ChunksCount:  doc.ChunksCount,
		ProcessedAt:  doc.ProcessedAt,
		ErrorMessage: doc.ErrorMessage,
		ErrorCode:    doc.ErrorCode,
		RetryCount:   doc.RetryCount,
	}

	if doc.Status == postgres.StatusCompleted && doc.ProcessedAt != nil {
		seconds := doc.ProcessedAt.Sub(doc.CreatedAt).Seconds()
		status.ProcessingTimeSeconds = &seconds
	}

	return status, nil
}

// Delete soft-deletes a document's metadata and best-effort deletes its
// underlying object. Tenant-scoped: never crosses orgs.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	storageKey, err := s.store.SoftDeleteDocument(ctx, orgID, id)
	if err != nil {
		if err == postgres.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("documents: delete: %w", err)
	}

	if err := s.objectStore.DeleteObject(ctx, storageKey); err != nil {
		s.logger.Warn("best-effort object deletion failed", zap.String("document_id", id.String()), zap.String("storage_key", storageKey), zap.Error(err))
	}
	return nil
}

// MarkUploaded transitions pending -> uploaded. Called by the object store's
// upload callback (or the loopback handler, for the local backend).
func (s *Service) MarkUploaded(ctx context.Context, id uuid.UUID) error {
	if err := s.store.MarkUploaded(ctx, id); err != nil {
		return fmt.Errorf("documents: mark uploaded: %w", err)
	}
	return nil
}

// UpdateStatusFromProcessed consumes a document.processed event.
func (s *Service) UpdateStatusFromProcessed(ctx context.Context, evt ProcessedEvent) error {
	if err := s.store.CompleteDocument(ctx, evt.DocumentID, evt.ChunksCount); err != nil {
		return fmt.Errorf("documents: update status from processed event: %w", err)
	}
	return nil
}

// UpdateStatusFromFailed consumes a document.failed event.
func (s *Service) UpdateStatusFromFailed(ctx context.Context, evt FailedEvent) error {
	if err := s.store.FailDocument(ctx, evt.DocumentID, evt.ErrorMessage, evt.ErrorCode); err != nil {
		return fmt.Errorf("documents: update status from failed event: %w", err)
	}
	return nil
}
