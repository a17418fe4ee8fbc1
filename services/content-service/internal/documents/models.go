package documents

import (
	"time"

	"github.com/google/uuid"
)

const MaxFileSize = 50 * 1024 * 1024 // 50 MiB
const MinUploadURLTTL = 15 * time.Minute

// IssueUploadResult is returned to the caller of IssueUpload.
type IssueUploadResult struct {
	DocumentID string
	UploadURL  string
	ExpiresIn  int
}

// ListOptions scopes and paginates List. SortField/SortDir are validated
// against the allowed set before reaching the store.
type ListOptions struct {
	Limit     int
	Offset    int
	Status    string
	SortField string
	SortDir   string
}

var sortFields = map[string]bool{"uploaded_at": true, "filename": true, "status": true}

// ValidateSort normalizes sort inputs to the documented default when they
// fall outside the allowed whitelist, rather than rejecting the request.
func (o *ListOptions) ValidateSort() {
	if !sortFields[o.SortField] {
		o.SortField = "uploaded_at"
	}
	if o.SortDir != "asc" && o.SortDir != "desc" {
		o.SortDir = "desc"
	}
}

type DocumentSummary struct {
	ID         string
	Filename   string
	Status     string
	UploadedAt time.Time
}

type ListResult struct {
	Documents []DocumentSummary
	Total     int
	HasMore   bool
}

// DocumentStatus is the GetStatus response shape. The *derived fields are
// populated only for the matching terminal state.
type DocumentStatus struct {
	ID          string
	Filename    string
	Status      string
	UploadedAt  time.Time
	ChunksCount *int
	ProcessedAt *time.Time
	ProcessingTimeSeconds *float64

	ErrorMessage *string
	ErrorCode    *string
	RetryCount   int
}

// ProcessedEvent is the payload of a document.processed event.
type ProcessedEvent struct {
	DocumentID  uuid.UUID
	ChunksCount int
}

// FailedEvent is the payload of a document.failed event.
type FailedEvent struct {
	DocumentID   uuid.UUID
	ErrorMessage string
	ErrorCode    string
}
