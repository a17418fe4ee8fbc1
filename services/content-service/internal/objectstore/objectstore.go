// Package objectstore abstracts the document blob backend behind a small
// interface so the documents service is unaware of whether uploads land in
// S3, MinIO, or a local directory used for development and tests.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by GetObject when the key does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// Client presigns uploads and fetches/deletes objects by key. Keys are
// caller-derived storage paths, e.g. "{org_id}/documents/{document_id}.pdf".
type Client interface {
	// PresignPut returns a time-limited URL the caller can PUT content-type
	// bytes to directly. ttl is a lower bound; implementations may round up.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
}
