// Package vectorindex provides the namespace-scoped vector upsert/query
// contract the ingestion pipeline and rag-service share. The default
// implementation speaks the Pinecone HTTP API; it is an interface so tests
// can substitute an in-memory fake instead of a live index.
package vectorindex

import "context"

// Record is a single vector entry: a stable id, its embedding, and
// caller-defined metadata attached for retrieval-time filtering/display.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is a single retrieval result.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Client upserts and queries vectors within a namespace.
type Client interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
}
