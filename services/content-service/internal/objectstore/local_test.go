package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLocalClient(t *testing.T) *LocalClient {
	t.Helper()
	dir := t.TempDir()
	c, err := NewLocalClient(dir, "http://localhost:8080/internal/storage", []byte("test-secret"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewLocalClient: %v", err)
	}
	return c
}

func TestLocalClientPresignPutRoundTripsThroughLoopbackHandler(t *testing.T) {
	client := newTestLocalClient(t)
	handler := client.LoopbackHandler("/internal/storage")

	presigned, err := client.PresignPut(context.Background(), "org-1/documents/doc-1.pdf", "application/pdf", time.Minute)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}

	req := httptest.NewRequest("PUT", presigned, bytes.NewBufferString("hello world"))
	req.URL.Path = "/internal/storage/org-1/documents/doc-1.pdf"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200 from PUT, got %d: %s", rec.Code, rec.Body.String())
	}

	rc, err := client.GetObject(context.Background(), "org-1/documents/doc-1.pdf")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello world" {
		t.Errorf("expected written content to round-trip, got %q", string(body))
	}
}

func TestLocalClientLoopbackHandlerRejectsTamperedToken(t *testing.T) {
	client := newTestLocalClient(t)
	handler := client.LoopbackHandler("/internal/storage")

	presigned, err := client.PresignPut(context.Background(), "org-1/documents/doc-2.pdf", "application/pdf", time.Minute)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}

	req := httptest.NewRequest("PUT", presigned+"-tampered", bytes.NewBufferString("evil"))
	req.URL.Path = "/internal/storage/org-1/documents/doc-2.pdf"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 403 {
		t.Errorf("expected 403 for tampered query, got %d", rec.Code)
	}
}

func TestLocalClientLoopbackHandlerRejectsExpiredToken(t *testing.T) {
	client := newTestLocalClient(t)
	handler := client.LoopbackHandler("/internal/storage")

	presigned, err := client.PresignPut(context.Background(), "org-1/documents/doc-3.pdf", "application/pdf", -time.Minute)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}

	req := httptest.NewRequest("PUT", presigned, bytes.NewBufferString("data"))
	req.URL.Path = "/internal/storage/org-1/documents/doc-3.pdf"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 403 {
		t.Errorf("expected 403 for expired token, got %d", rec.Code)
	}
}

func TestLocalClientOnWrittenCallbackFiresAfterPut(t *testing.T) {
	client := newTestLocalClient(t)
	handler := client.LoopbackHandler("/internal/storage")

	var gotKey string
	client.SetOnWritten(func(key string) { gotKey = key })

	presigned, err := client.PresignPut(context.Background(), "org-1/documents/doc-4.pdf", "application/pdf", time.Minute)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}
	req := httptest.NewRequest("PUT", presigned, bytes.NewBufferString("data"))
	req.URL.Path = "/internal/storage/org-1/documents/doc-4.pdf"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotKey != "org-1/documents/doc-4.pdf" {
		t.Errorf("expected onWritten callback with the object key, got %q", gotKey)
	}
}

func TestLocalClientGetObjectNotFound(t *testing.T) {
	client := newTestLocalClient(t)
	_, err := client.GetObject(context.Background(), "does/not/exist.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalClientDeleteObjectIsIdempotent(t *testing.T) {
	client := newTestLocalClient(t)
	if err := client.writeObject("org-1/documents/doc-5.pdf", bytes.NewBufferString("x")); err != nil {
		t.Fatalf("writeObject: %v", err)
	}
	if err := client.DeleteObject(context.Background(), "org-1/documents/doc-5.pdf"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := client.DeleteObject(context.Background(), "org-1/documents/doc-5.pdf"); err != nil {
		t.Errorf("expected deleting an already-deleted key to be a no-op, got %v", err)
	}
	if _, err := os.Stat(client.path("org-1/documents/doc-5.pdf")); !os.IsNotExist(err) {
		t.Errorf("expected file removed from disk")
	}
}
