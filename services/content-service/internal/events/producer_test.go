package events

import (
	"context"
	"testing"
	"time"
)

func TestLocalDispatcherInvokesRegisteredHandler(t *testing.T) {
	d := NewLocalDispatcher()

	var gotKey string
	var gotPayload []byte
	d.Handle(TopicDocumentUploaded, func(ctx context.Context, key string, payload []byte) error {
		gotKey = key
		gotPayload = payload
		return nil
	})

	err := d.Send(context.Background(), TopicDocumentUploaded, "doc-1", []byte(`{"document_id":"doc-1"}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotKey != "doc-1" {
		t.Errorf("expected key doc-1 to reach the handler, got %q", gotKey)
	}
	if string(gotPayload) != `{"document_id":"doc-1"}` {
		t.Errorf("expected payload to reach the handler unchanged, got %s", gotPayload)
	}
}

func TestLocalDispatcherSendOnUnregisteredTopicNoOps(t *testing.T) {
	d := NewLocalDispatcher()
	if err := d.Send(context.Background(), TopicDocumentFailed, "doc-1", []byte("{}")); err != nil {
		t.Errorf("expected no error sending to a topic with no handler, got %v", err)
	}
}

func TestNewDocumentUploadedEnvelope(t *testing.T) {
	evt := NewDocumentUploaded("doc-1", "org-1", "org-1/documents/doc-1.pdf", "application/pdf", "report.pdf", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if evt.EventType != TopicDocumentUploaded {
		t.Errorf("expected event_type %q, got %q", TopicDocumentUploaded, evt.EventType)
	}
	if evt.DocumentID != "doc-1" || evt.OrgID != "org-1" || evt.S3Key != "org-1/documents/doc-1.pdf" {
		t.Errorf("unexpected envelope fields: %+v", evt)
	}
	if evt.Timestamp == "" || evt.UploadedAt == "" {
		t.Errorf("expected both timestamps populated, got %+v", evt)
	}
}
