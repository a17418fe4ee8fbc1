// Package rag implements the retrieval-augmented chat orchestrator: resolve
// or create a conversation, embed and retrieve against the document index,
// compose a grounded prompt, generate a response, and persist the turn.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/inference"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/vectorindex"
)

const noGroundingAnswer = "I don't have enough information in the indexed documents to answer that."

// Source is a single source attribution surfaced alongside an answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// ChatResponse is the result of a single chat query.
type ChatResponse struct {
	Answer         string    `json:"answer"`
	Sources        []Source  `json:"sources"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// conversationStore is the slice of postgres.Store the orchestrator needs.
// Kept as an interface, like inference.Client and vectorindex.Client, so
// tests can substitute an in-memory fake instead of a real database.
type conversationStore interface {
	CreateConversation(ctx context.Context, orgID, userID uuid.UUID) (*postgres.Conversation, error)
	GetConversation(ctx context.Context, orgID, userID, id uuid.UUID) (*postgres.Conversation, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]postgres.Message, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, sources []byte) (*postgres.Message, error)
}

// Orchestrator implements the RAG chat flow described in the package doc.
type Orchestrator struct {
	store   conversationStore
	embed   inference.Client
	vectors vectorindex.Client
	cfg     *config.Config
	logger  *zap.Logger
}

func NewOrchestrator(store conversationStore, embed inference.Client, vectors vectorindex.Client, cfg *config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{store: store, embed: embed, vectors: vectors, cfg: cfg, logger: logger.With(zap.String("component", "rag-orchestrator"))}
}

// Query runs the full chat flow for one request. conversationID is nil when
// the caller did not supply one, in which case a new conversation is created.
func (o *Orchestrator) Query(ctx context.Context, orgID, userID uuid.UUID, query string, conversationID *uuid.UUID) (*ChatResponse, error) {
	if len(query) > o.cfg.MaxQueryLength {
		return nil, ErrQueryTooLong
	}

	conv, err := o.resolveConversation(ctx, orgID, userID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := o.loadHistory(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("rag: load history: %w", err)
	}

	if _, err := o.store.AppendMessage(ctx, conv.ID, "user", query, nil); err != nil {
		return nil, fmt.Errorf("rag: append user message: %w", err)
	}

	passages, err := o.retrieve(ctx, orgID, query)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}

	var answer string
	if len(passages) == 0 {
		answer = noGroundingAnswer
	} else {
		prompt := ComposePrompt(history, passages, query)
		answer, err = o.embed.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
	}

	sources := sourcesFrom(passages)
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("rag: marshal sources: %w", err)
	}

	assistantMsg, err := o.store.AppendMessage(ctx, conv.ID, "assistant", answer, sourcesJSON)
	if err != nil {
		return nil, fmt.Errorf("rag: append assistant message: %w", err)
	}

	return &ChatResponse{
		Answer:         answer,
		Sources:        sources,
		ConversationID: conv.ID,
		Timestamp:      assistantMsg.CreatedAt,
	}, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, orgID, userID uuid.UUID, conversationID *uuid.UUID) (*postgres.Conversation, error) {
	if conversationID == nil {
		return o.store.CreateConversation(ctx, orgID, userID)
	}
	conv, err := o.store.GetConversation(ctx, orgID, userID, *conversationID)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// loadHistory fetches the bounded context window ahead of the current turn
// being appended, so the just-submitted query never doubles up in the
// rendered history.
func (o *Orchestrator) loadHistory(ctx context.Context, conversationID uuid.UUID) ([]HistoryTurn, error) {
	if o.cfg.RAGHistoryTurns <= 0 {
		return nil, nil
	}
	messages, err := o.store.RecentMessages(ctx, conversationID, o.cfg.RAGHistoryTurns)
	if err != nil {
		return nil, err
	}
	turns := make([]HistoryTurn, len(messages))
	for i, m := range messages {
		turns[i] = HistoryTurn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

// retrieve embeds the query and returns score-filtered, stably-ordered
// passages from the org's namespace. An empty result (no matches, or none
// above the score floor) is not an error.
func (o *Orchestrator) retrieve(ctx context.Context, orgID uuid.UUID, query string) ([]Passage, error) {
	vectors, err := o.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}

	namespace := "org_" + orgID.String()
	matches, err := o.vectors.Query(ctx, namespace, vectors[0], o.cfg.RAGTopK)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	passages := make([]Passage, 0, len(matches))
	for _, m := range matches {
		if m.Score < o.cfg.RAGMinScore {
			continue
		}
		passages = append(passages, passageFromMatch(m))
	}
	sortPassages(passages)
	return passages, nil
}

func passageFromMatch(m vectorindex.Match) Passage {
	p := Passage{Score: m.Score}
	if v, ok := m.Metadata["document_id"].(string); ok {
		p.DocumentID = v
	}
	if v, ok := m.Metadata["filename"].(string); ok {
		p.Filename = v
	}
	if v, ok := m.Metadata["text"].(string); ok {
		p.Text = v
	}
	switch v := m.Metadata["chunk_index"].(type) {
	case int:
		p.ChunkIndex = v
	case float64:
		p.ChunkIndex = int(v)
	}
	return p
}

func sourcesFrom(passages []Passage) []Source {
	sources := make([]Source, len(passages))
	for i, p := range passages {
		sources[i] = Source{DocumentID: p.DocumentID, Filename: p.Filename, ChunkIndex: p.ChunkIndex, Score: p.Score}
	}
	return sources
}
