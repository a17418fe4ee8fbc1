package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/vectorindex"
)

// fakeStore is an in-memory conversationStore, substituted for a real
// database the way inference.Client and vectorindex.Client are substituted.
type fakeStore struct {
	conversations map[uuid.UUID]*postgres.Conversation
	messages      map[uuid.UUID][]postgres.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{conversations: map[uuid.UUID]*postgres.Conversation{}, messages: map[uuid.UUID][]postgres.Message{}}
}

func (f *fakeStore) CreateConversation(ctx context.Context, orgID, userID uuid.UUID) (*postgres.Conversation, error) {
	conv := &postgres.Conversation{ID: uuid.New(), OrgID: orgID, UserID: userID}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeStore) GetConversation(ctx context.Context, orgID, userID, id uuid.UUID) (*postgres.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok || conv.OrgID != orgID || conv.UserID != userID {
		return nil, postgres.ErrNotFound
	}
	return conv, nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]postgres.Message, error) {
	msgs := f.messages[conversationID]
	if len(msgs) <= n {
		return append([]postgres.Message{}, msgs...), nil
	}
	return append([]postgres.Message{}, msgs[len(msgs)-n:]...), nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, sources []byte) (*postgres.Message, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	msg := postgres.Message{ID: uuid.New(), ConversationID: conversationID, Role: role, Content: content, Sources: sources}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	conv.MessageCount++
	return &msg, nil
}

type fakeEmbedder struct {
	vector      []float32
	generateErr error
	answer      string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = f.vector
	}
	return vectors, nil
}

func (f *fakeEmbedder) Generate(ctx context.Context, prompt string) (string, error) {
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.answer, nil
}

type fakeVectorIndex struct {
	matches []vectorindex.Match
}

func (f *fakeVectorIndex) Upsert(ctx context.Context, namespace string, records []vectorindex.Record) error {
	return nil
}

func (f *fakeVectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]vectorindex.Match, error) {
	return f.matches, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxQueryLength:  2000,
		RAGTopK:         5,
		RAGMinScore:     0.3,
		RAGHistoryTurns: 6,
	}
}

func TestQueryCreatesConversationWhenNoneSupplied(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbedder{vector: []float32{0.1}, answer: "here is the answer"}
	vectors := &fakeVectorIndex{matches: []vectorindex.Match{
		{ID: "doc_a_0", Score: 0.9, Metadata: map[string]any{"document_id": "doc_a", "filename": "policy.pdf", "chunk_index": 0, "text": "refunds within 30 days"}},
	}}
	orch := NewOrchestrator(store, embed, vectors, testConfig(), nil)

	resp, err := orch.Query(context.Background(), uuid.New(), uuid.New(), "what is the refund window?", nil)
	require.NoError(t, err)
	assert.Equal(t, "here is the answer", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc_a", resp.Sources[0].DocumentID)
	assert.NotEqual(t, uuid.Nil, resp.ConversationID)
}

func TestQueryReturnsConversationNotFoundForCrossTenantID(t *testing.T) {
	store := newFakeStore()
	orgID, userID := uuid.New(), uuid.New()
	conv, err := store.CreateConversation(context.Background(), orgID, userID)
	require.NoError(t, err)

	orch := NewOrchestrator(store, &fakeEmbedder{}, &fakeVectorIndex{}, testConfig(), nil)

	_, err = orch.Query(context.Background(), uuid.New(), userID, "question", &conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestQueryRejectsOversizedQuery(t *testing.T) {
	store := newFakeStore()
	cfg := testConfig()
	cfg.MaxQueryLength = 5
	orch := NewOrchestrator(store, &fakeEmbedder{}, &fakeVectorIndex{}, cfg, nil)

	_, err := orch.Query(context.Background(), uuid.New(), uuid.New(), "this query is far too long", nil)
	assert.ErrorIs(t, err, ErrQueryTooLong)
}

func TestQueryReturnsCannedAnswerWhenNoPassageMeetsScoreFloor(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbedder{vector: []float32{0.1}, answer: "should not be used"}
	vectors := &fakeVectorIndex{matches: []vectorindex.Match{
		{ID: "doc_a_0", Score: 0.1, Metadata: map[string]any{"document_id": "doc_a"}},
	}}
	orch := NewOrchestrator(store, embed, vectors, testConfig(), nil)

	resp, err := orch.Query(context.Background(), uuid.New(), uuid.New(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, noGroundingAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestQueryWrapsGenerationFailureAndDoesNotPersistAssistantMessage(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbedder{vector: []float32{0.1}, generateErr: errors.New("model unavailable")}
	vectors := &fakeVectorIndex{matches: []vectorindex.Match{
		{ID: "doc_a_0", Score: 0.9, Metadata: map[string]any{"document_id": "doc_a"}},
	}}
	orch := NewOrchestrator(store, embed, vectors, testConfig(), nil)

	_, err := orch.Query(context.Background(), uuid.New(), uuid.New(), "question", nil)
	require.ErrorIs(t, err, ErrGenerationFailed)

	// exactly one conversation was created by this call; its only message is
	// the user turn, since generation failed before the assistant reply.
	require.Len(t, store.conversations, 1)
	for id := range store.conversations {
		assert.Len(t, store.messages[id], 1)
		assert.Equal(t, "user", store.messages[id][0].Role)
	}
}

func TestQueryDoesNotDoubleCountCurrentTurnInHistory(t *testing.T) {
	store := newFakeStore()
	orgID, userID := uuid.New(), uuid.New()
	conv, err := store.CreateConversation(context.Background(), orgID, userID)
	require.NoError(t, err)

	embed := &fakeEmbedder{vector: []float32{0.1}, answer: "ok"}
	orch := NewOrchestrator(store, embed, &fakeVectorIndex{}, testConfig(), nil)

	_, err = orch.Query(context.Background(), orgID, userID, "first turn", &conv.ID)
	require.NoError(t, err)

	history, err := orch.loadHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	// two messages already persisted (user + assistant); loadHistory must
	// reflect exactly that, with no phantom duplicate of "first turn".
	count := 0
	for _, h := range history {
		if h.Content == "first turn" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
