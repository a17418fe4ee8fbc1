// Package inference provides the embedding and generation contract the
// ingestion pipeline and rag-service share. The default implementation
// speaks the Ollama HTTP API; it is a narrow interface so tests can
// substitute an in-memory fake instead of standing up a model server.
package inference

import "context"

// Client embeds text and generates completions.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Generate(ctx context.Context, prompt string) (string, error)
}
