package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// OllamaClient implements Client against a local or remote Ollama server.
type OllamaClient struct {
	baseURL         string
	embeddingModel  string
	generationModel string
	httpClient      *http.Client
}

// NewOllamaClient builds a client with a single HTTP timeout shared by
// embedding and generation calls. Callers that need the two to differ
// construct two clients against the same server.
func NewOllamaClient(baseURL, embeddingModel, generationModel string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL:         baseURL,
		embeddingModel:  embeddingModel,
		generationModel: generationModel,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// embedResponse absorbs the shapes actually observed from Ollama-compatible
// servers: a batch numeric matrix under "embeddings", a list of per-item
// objects each carrying "embedding" or "values", or (for single-item calls)
// a bare "embedding" vector.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
	Data       []struct {
		Embedding []float32 `json:"embedding"`
		Values    []float32 `json:"values"`
	} `json:"data"`
}

func (r embedResponse) vectors() [][]float32 {
	if len(r.Embeddings) > 0 {
		return r.Embeddings
	}
	if len(r.Data) > 0 {
		out := make([][]float32, 0, len(r.Data))
		for _, item := range r.Data {
			if len(item.Embedding) > 0 {
				out = append(out, item.Embedding)
			} else {
				out = append(out, item.Values)
			}
		}
		return out
	}
	if len(r.Embedding) > 0 {
		return [][]float32{r.Embedding}
	}
	return nil
}

// Embed embeds texts, preferring a single batch call and falling back to
// per-text calls (trying two input-field spellings) when the batch response
// is malformed or count-mismatched. A single query embedding (rag-service's
// usual call shape) always takes the batch path with one element.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := c.embedBatch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, embedErr := c.embedOne(ctx, text)
		if embedErr != nil {
			return nil, fmt.Errorf("embed item %d: %w", i, embedErr)
		}
		out[i] = v
	}
	return out, nil
}

func (c *OllamaClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"model": c.embeddingModel, "input": texts})
	if err != nil {
		return nil, err
	}
	var parsed embedResponse
	if err := c.postJSON(ctx, "/api/embed", body, &parsed); err != nil {
		return nil, err
	}
	vectors := parsed.vectors()
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty batch embedding response")
	}
	return vectors, nil
}

// embedOne tries two input-field spellings ("input" then "prompt") that
// different Ollama-compatible servers expect for a single-item request.
func (c *OllamaClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	for _, field := range []string{"input", "prompt"} {
		body, err := json.Marshal(map[string]any{"model": c.embeddingModel, field: text})
		if err != nil {
			return nil, err
		}
		var parsed embedResponse
		if err := c.postJSON(ctx, "/api/embed", body, &parsed); err != nil {
			continue
		}
		vectors := parsed.vectors()
		if len(vectors) >= 1 {
			return vectors[0], nil
		}
	}
	return nil, fmt.Errorf("no embedding returned for item")
}

// ValidateEmbeddings checks finiteness, non-emptiness, a consistent length
// across items, and that length matches the configured dimension.
func ValidateEmbeddings(vectors [][]float32, expectedDim int) error {
	if len(vectors) == 0 {
		return fmt.Errorf("no embeddings returned")
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
		if len(v) != expectedDim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), expectedDim)
		}
		for _, f := range v {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return fmt.Errorf("embedding %d contains a non-finite value", i)
			}
		}
	}
	first := len(vectors[0])
	for i, v := range vectors {
		if len(v) != first {
			return fmt.Errorf("embedding %d has inconsistent length %d vs %d", i, len(v), first)
		}
	}
	return nil
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":  c.generationModel,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", err
	}
	var parsed generateResponse
	if err := c.postJSON(ctx, "/api/generate", body, &parsed); err != nil {
		return "", err
	}
	return parsed.Response, nil
}

func (c *OllamaClient) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(payload))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode ollama response: %w", err)
	}
	return nil
}
