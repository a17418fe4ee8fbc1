package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalClient stores objects under a root directory on disk. It exists for
// development and integration tests where standing up MinIO is overkill.
// Rather than a real presigned URL it mints "file://{key}?token=...&expires=..."
// and relies on LoopbackHandler, mounted in the same process, to validate the
// token before serving the PUT/GET — so callers never need to know the
// object store is local.
type LocalClient struct {
	root      string
	secret    []byte
	baseURL   string
	onWritten func(key string)
	logger    *zap.Logger
}

// NewLocalClient rooted at dir. baseURL is the externally reachable address
// of the loopback handler, e.g. "http://localhost:8080/internal/storage".
func NewLocalClient(dir, baseURL string, secret []byte, logger *zap.Logger) (*LocalClient, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create storage root: %w", err)
	}
	return &LocalClient{root: dir, secret: secret, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

func (c *LocalClient) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(fmt.Sprintf("%s:%d", key, expires)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *LocalClient) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	token := c.sign(key, expires)
	q := url.Values{}
	q.Set("token", token)
	q.Set("expires", strconv.FormatInt(expires, 10))
	return fmt.Sprintf("%s/%s?%s", c.baseURL, key, q.Encode()), nil
}

// SetOnWritten registers a callback invoked after a successful PUT through
// the loopback handler. There is no real S3 event notification to subscribe
// to with a local backend, so this is how MarkUploaded gets called in
// development and tests.
func (c *LocalClient) SetOnWritten(fn func(key string)) {
	c.onWritten = fn
}

func (c *LocalClient) path(key string) string {
	return filepath.Join(c.root, filepath.FromSlash(key))
}

func (c *LocalClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(c.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: open %q: %w", key, err)
	}
	return f, nil
}

func (c *LocalClient) DeleteObject(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objectstore: delete %q: %w", key, err)
	}
	return nil
}

func (c *LocalClient) writeObject(key string, body io.Reader) error {
	full := c.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("objectstore: create dir for %q: %w", key, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("objectstore: create %q: %w", key, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("objectstore: write %q: %w", key, err)
	}
	return nil
}

func (c *LocalClient) validate(key, token, expiresRaw string) bool {
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil || time.Now().Unix() > expires {
		return false
	}
	want := c.sign(key, expires)
	return hmac.Equal([]byte(want), []byte(token))
}

// LoopbackHandler serves the signed PresignPut URLs. Mount it at the path
// prefix passed as baseURL to NewLocalClient, e.g. "/internal/storage/".
func (c *LocalClient) LoopbackHandler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, prefix)
		key = strings.TrimPrefix(key, "/")
		if key == "" {
			http.Error(w, "missing object key", http.StatusBadRequest)
			return
		}

		token := r.URL.Query().Get("token")
		expires := r.URL.Query().Get("expires")
		if !c.validate(key, token, expires) {
			http.Error(w, "invalid or expired token", http.StatusForbidden)
			return
		}

		switch r.Method {
		case http.MethodPut:
			if err := c.writeObject(key, r.Body); err != nil {
				c.logger.Error("local object store write failed", zap.String("key", key), zap.Error(err))
				http.Error(w, "write failed", http.StatusInternalServerError)
				return
			}
			if c.onWritten != nil {
				c.onWritten(key)
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			f, err := c.GetObject(r.Context(), key)
			if err != nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			defer f.Close()
			io.Copy(w, f)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
