package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDimensionMismatch is returned when the index rejects an upsert because
// the submitted vector dimension does not match the index's configured
// dimension. Callers should fail fast on this rather than retry.
var ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")

// PineconeClient talks to a single Pinecone index's data-plane host.
type PineconeClient struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func NewPineconeClient(host, apiKey string) *PineconeClient {
	return &PineconeClient{host: strings.TrimRight(host, "/"), apiKey: apiKey, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type upsertVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c *PineconeClient) Upsert(ctx context.Context, namespace string, records []Record) error {
	vectors := make([]upsertVector, len(records))
	for i, r := range records {
		vectors[i] = upsertVector{ID: r.ID, Values: r.Values, Metadata: r.Metadata}
	}
	body, err := json.Marshal(map[string]any{"namespace": namespace, "vectors": vectors})
	if err != nil {
		return err
	}

	status, payload, err := c.post(ctx, "/vectors/upsert", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		if strings.Contains(strings.ToLower(string(payload)), "dimension") {
			return fmt.Errorf("%w: %s", ErrDimensionMismatch, payload)
		}
		return fmt.Errorf("vectorindex: upsert returned %d: %s", status, payload)
	}
	return nil
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

func (c *PineconeClient) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	body, err := json.Marshal(map[string]any{
		"namespace":       namespace,
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	})
	if err != nil {
		return nil, err
	}

	status, payload, err := c.post(ctx, "/query", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("vectorindex: query returned %d: %s", status, payload)
	}

	var parsed queryResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("vectorindex: decode query response: %w", err)
	}

	matches := make([]Match, len(parsed.Matches))
	for i, m := range parsed.Matches {
		matches[i] = Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return matches, nil
}

func (c *PineconeClient) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("vectorindex: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}
