// Package objectstore provides read access to the document blobs
// content-service wrote, scoped to exactly what the ingestion pipeline
// needs: fetch bytes by storage key. It mirrors content-service's
// objectstore.Client shape so the two services agree on how a document's
// storage_key resolves to bytes, without sharing upload/presign concerns
// this service has no use for.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when the key does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// Client fetches a previously uploaded object by key.
type Client interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}
