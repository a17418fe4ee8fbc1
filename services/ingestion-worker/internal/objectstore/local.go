package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalClient reads objects from the same root directory content-service's
// local backend writes to. Used for development and LOCAL_TEST_MODE, where
// both services run against a shared filesystem path rather than MinIO/S3.
type LocalClient struct {
	root string
}

// NewLocalClient roots reads at dir.
func NewLocalClient(dir string) *LocalClient {
	return &LocalClient{root: dir}
}

func (c *LocalClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(c.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: open %q: %w", key, err)
	}
	return f, nil
}
