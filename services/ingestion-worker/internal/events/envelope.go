package events

import "time"

// DocumentUploaded is the inbound envelope emitted by content-service once
// an upload lands in object storage.
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

// DocumentProcessed is emitted by this worker on successful ingestion.
type DocumentProcessed struct {
	EventType   string `json:"event_type"`
	DocumentID  string `json:"document_id"`
	OrgID       string `json:"org_id"`
	Status      string `json:"status"`
	ChunksCount int    `json:"chunks_count"`
	Timestamp   string `json:"timestamp"`
}

// DocumentFailed is emitted by this worker when any pipeline stage fails.
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

func NewDocumentProcessed(documentID, orgID string, chunksCount int) DocumentProcessed {
	return DocumentProcessed{
		EventType:   TopicDocumentProcessed,
		DocumentID:  documentID,
		OrgID:       orgID,
		Status:      "completed",
		ChunksCount: chunksCount,
		Timestamp:   nowRFC3339(),
	}
}

func NewDocumentFailed(documentID, orgID, errorMessage, errorCode string) DocumentFailed {
	return DocumentFailed{
		EventType:    TopicDocumentFailed,
		DocumentID:   documentID,
		OrgID:        orgID,
		ErrorMessage: errorMessage,
		ErrorCode:    errorCode,
		Timestamp:    nowRFC3339(),
	}
}
