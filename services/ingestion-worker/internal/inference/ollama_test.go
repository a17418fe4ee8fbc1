package inference

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

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

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3")
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

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3")
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.5, 0.6}, vectors[0])
	assert.Equal(t, []float32{0.7, 0.8}, vectors[1])
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

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3")
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

	client := NewOllamaClient(server.URL, "nomic-embed-text", "llama3")
	text, err := client.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}
