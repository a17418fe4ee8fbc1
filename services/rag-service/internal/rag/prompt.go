package rag

import (
	"fmt"
	"sort"
	"strings"
)

const systemInstruction = "You are a support assistant. Answer only using the passages provided below. " +
	"If the passages do not contain the answer, say you don't have enough information. " +
	"Do not invent facts not present in the passages."

// Passage is a single retrieved chunk, already score-filtered.
type Passage struct {
	DocumentID string
	Filename   string
	ChunkIndex int
	Text       string
	Score      float64
}

// HistoryTurn is one prior message rendered into the prompt's context window.
type HistoryTurn struct {
	Role    string
	Content string
}

// sortPassages orders passages by score descending, tie-broken by document
// then chunk index so retrieval order is stable across identical-score runs.
func sortPassages(passages []Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		if passages[i].DocumentID != passages[j].DocumentID {
			return passages[i].DocumentID < passages[j].DocumentID
		}
		return passages[i].ChunkIndex < passages[j].ChunkIndex
	})
}

// ComposePrompt builds the generation prompt: a grounding instruction, the
// bounded conversation history (oldest first), the retrieved passages in
// stable order, and the current query.
func ComposePrompt(history []HistoryTurn, passages []Passage, query string) string {
	sortPassages(passages)

	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] (%s, chunk %d): %s\n", i+1, p.Filename, p.ChunkIndex, p.Text)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}
