package inference

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedParsesBatchEmbeddingsShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3", 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
}

func TestEmbedParsesPerItemObjectsShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.5, 0.6}},
				{"values": []float32{0.7, 0.8}},
			},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3", 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.5, 0.6}, vectors[0])
	assert.Equal(t, []float32{0.7, 0.8}, vectors[1])
}

func TestEmbedSingleQueryTakesBatchPathWithOneElement(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2}}})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3", 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"what is our refund policy?"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, 1, calls)
}

func TestEmbedFallsBackToPerItemCallsOnCountMismatch(t *testing.T) {
	var batchCalls, singleCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["input"].([]any); ok {
			batchCalls++
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2}}})
			return
		}
		singleCalls++
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.9, 1.0}})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3", 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 1, batchCalls)
	assert.Equal(t, 2, singleCalls)
}

func TestValidateEmbeddingsRejectsWrongDimension(t *testing.T) {
	err := ValidateEmbeddings([][]float32{{0.1, 0.2}}, 3)
	assert.Error(t, err)
}

func TestValidateEmbeddingsRejectsNonFiniteValues(t *testing.T) {
	err := ValidateEmbeddings([][]float32{{float32(math.NaN()), 0.2}}, 2)
	assert.Error(t, err)
}

func TestValidateEmbeddingsAcceptsConsistentVectors(t *testing.T) {
	err := ValidateEmbeddings([][]float32{{0.1, 0.2}, {0.3, 0.4}}, 2)
	assert.NoError(t, err)
}

func TestGenerateReturnsResponseField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": "hello there"})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3", 5*time.Second)
	text, err := client.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestGeneratePropagatesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("model not loaded"))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3", 5*time.Second)
	_, err := client.Generate(context.Background(), "say hi")
	assert.Error(t, err)
}

func TestNewOllamaClientDefaultsZeroTimeout(t *testing.T) {
	client := NewOllamaClient("http://localhost:11434", "nomic-embed-text", "llama3", 0)
	assert.Equal(t, 60*time.Second, client.httpClient.Timeout)
}
