// Package events publishes the document lifecycle event stream to Kafka,
// with a local outbox so publish failures are retried rather than lost.
package events

import "time"

const (
	TopicDocumentUploaded  = "document.uploaded"
	TopicDocumentProcessed = "document.processed"
	TopicDocumentFailed    = "document.failed"
)

// DocumentUploaded is emitted once IssueUpload has created the document row
// and minted a presigned upload URL for it.
type DocumentUploaded struct {
	EventType   string `json:"event_type"`
	DocumentID  string `json:"document_id"`
	OrgID       string `json:"org_id"`
	S3Key       string `json:"s3_key"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	UploadedAt  string `json:"uploaded_at"`
	Timestamp   string `json:"timestamp"`
}

// DocumentProcessed is emitted by the ingestion worker on successful ingestion.
type DocumentProcessed struct {
	EventType   string `json:"event_type"`
	DocumentID  string `json:"document_id"`
	OrgID       string `json:"org_id"`
	Status      string `json:"status"`
	ChunksCount int    `json:"chunks_count"`
	Timestamp   string `json:"timestamp"`
}

// DocumentFailed is emitted by the ingestion worker when any pipeline stage fails.
type DocumentFailed struct {
	EventType    string `json:"event_type"`
	DocumentID   string `json:"document_id"`
	OrgID        string `json:"org_id"`
	ErrorMessage string `json:"error_message"`
	ErrorCode    string `json:"error_code,omitempty"`
	Timestamp    string `json:"timestamp"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func NewDocumentUploaded(documentID, orgID, s3Key, contentType, filename string, uploadedAt time.Time) DocumentUploaded {
	return DocumentUploaded{
		EventType:   TopicDocumentUploaded,
		DocumentID:  documentID,
		OrgID:       orgID,
		S3Key:       s3Key,
		ContentType: contentType,
		Filename:    filename,
		UploadedAt:  uploadedAt.UTC().Format(time.RFC3339),
		Timestamp:   nowRFC3339(),
	}
}
