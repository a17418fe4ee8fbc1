package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortPassagesOrdersByScoreDescending(t *testing.T) {
	passages := []Passage{
		{DocumentID: "doc_a", ChunkIndex: 0, Score: 0.4},
		{DocumentID: "doc_b", ChunkIndex: 0, Score: 0.9},
	}
	sortPassages(passages)
	assert.Equal(t, "doc_b", passages[0].DocumentID)
	assert.Equal(t, "doc_a", passages[1].DocumentID)
}

func TestSortPassagesTieBreaksByDocumentThenChunkIndex(t *testing.T) {
	passages := []Passage{
		{DocumentID: "doc_b", ChunkIndex: 2, Score: 0.5},
		{DocumentID: "doc_a", ChunkIndex: 3, Score: 0.5},
		{DocumentID: "doc_a", ChunkIndex: 1, Score: 0.5},
	}
	sortPassages(passages)
	assert.Equal(t, Passage{DocumentID: "doc_a", ChunkIndex: 1, Score: 0.5}, passages[0])
	assert.Equal(t, Passage{DocumentID: "doc_a", ChunkIndex: 3, Score: 0.5}, passages[1])
	assert.Equal(t, Passage{DocumentID: "doc_b", ChunkIndex: 2, Score: 0.5}, passages[2])
}

func TestComposePromptIncludesInstructionHistoryPassagesAndQuery(t *testing.T) {
	history := []HistoryTurn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	passages := []Passage{{DocumentID: "doc_a", Filename: "policy.pdf", ChunkIndex: 0, Text: "refunds within 30 days", Score: 0.8}}

	prompt := ComposePrompt(history, passages, "what is the refund window?")

	assert.True(t, strings.Contains(prompt, systemInstruction))
	assert.True(t, strings.Contains(prompt, "user: hi"))
	assert.True(t, strings.Contains(prompt, "assistant: hello"))
	assert.True(t, strings.Contains(prompt, "policy.pdf"))
	assert.True(t, strings.Contains(prompt, "refunds within 30 days"))
	assert.True(t, strings.Contains(prompt, "Question: what is the refund window?"))
}

func TestComposePromptOmitsHistorySectionWhenEmpty(t *testing.T) {
	passages := []Passage{{DocumentID: "doc_a", Filename: "policy.pdf", ChunkIndex: 0, Text: "refunds within 30 days", Score: 0.8}}
	prompt := ComposePrompt(nil, passages, "what is the refund window?")
	assert.False(t, strings.Contains(prompt, "Conversation so far:"))
}

func TestComposePromptOrdersPassagesByScore(t *testing.T) {
	passages := []Passage{
		{DocumentID: "doc_low", Text: "less relevant", Score: 0.2},
		{DocumentID: "doc_high", Text: "most relevant", Score: 0.95},
	}
	prompt := ComposePrompt(nil, passages, "query")
	assert.True(t, strings.Index(prompt, "most relevant") < strings.Index(prompt, "less relevant"))
}
