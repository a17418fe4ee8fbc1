package postgres

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID                uuid.UUID
	OrgID             uuid.UUID
	UploaderUserID    uuid.UUID
	Filename          string
	SanitizedFilename string
	ContentType       string
	FileSize          int64
	StorageKey        string
	Status            string
	ChunksCount       *int
	ErrorMessage      *string
	ErrorCode         *string
	RetryCount        int
	ProcessedAt       *time.Time
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

type CreateDocumentParams struct {
	ID                uuid.UUID
	OrgID             uuid.UUID
	UploaderUserID    uuid.UUID
	Filename          string
	SanitizedFilename string
	ContentType       string
	FileSize          int64
	StorageKey        string
}

// ListFilter scopes and sorts a document listing. Sort must already be
// validated against the allowed {field, direction} set by the caller.
type ListFilter struct {
	Status      string
	SortField   string
	SortDir     string
	Limit       int
	Offset      int
}

type FailedEvent struct {
	ID              uuid.UUID
	Topic           string
	Payload         []byte
	ErrorMessage    string
	AttemptCount    int
	CreatedAt       time.Time
	LastAttemptedAt *time.Time
	DeliveredAt     *time.Time
}

type CreateFailedEventParams struct {
	ID           uuid.UUID
	Topic        string
	Payload      []byte
	ErrorMessage string
}
