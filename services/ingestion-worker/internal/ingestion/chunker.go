package ingestion

import "strings"

// separators are tried in priority order: paragraph, line, sentence, word,
// then character, so a chunk boundary falls on the largest natural break
// that still fits within chunkSize.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one ordered slice of a parsed document with stable metadata.
type Chunk struct {
	Text        string
	Index       int
	TotalChunks int
}

// ChunkText recursively splits text on separators by priority, keeping
// pieces under size with overlap characters of trailing context carried
// into the next chunk so retrieval doesn't lose context at a boundary.
func ChunkText(text string, size, overlap int) []Chunk {
	pieces := splitRecursive(text, separators, size)
	merged := mergeWithOverlap(pieces, size, overlap)

	chunks := make([]Chunk, len(merged))
	for i, t := range merged {
		chunks[i] = Chunk{Text: t, Index: i, TotalChunks: len(merged)}
	}
	return chunks
}

// splitRecursive splits text by the first separator that yields pieces all
// within size; recurses into oversized pieces with the remaining
// separators, falling back to hard character slicing when separators run
// out.
func splitRecursive(text string, seps []string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, size)
	}

	sep := seps[0]
	var parts []string
	if sep == "" {
		parts = hardSplit(text, size)
	} else {
		parts = strings.Split(text, sep)
	}

	var out []string
	for i, part := range parts {
		if sep != "" && i < len(parts)-1 {
			part += sep
		}
		if len(part) > size {
			out = append(out, splitRecursive(part, seps[1:], size)...)
		} else if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

// mergeWithOverlap packs adjacent pieces into chunks up to size, then
// prepends the trailing overlap characters of each chunk to the next so
// consecutive chunks share context.
func mergeWithOverlap(pieces []string, size, overlap int) []string {
	if len(pieces) == 0 {
		return nil
	}

	var merged []string
	var current strings.Builder
	for _, p := range pieces {
		if current.Len()+len(p) > size && current.Len() > 0 {
			merged = append(merged, current.String())
			current.Reset()
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		merged = append(merged, current.String())
	}

	if overlap <= 0 || len(merged) < 2 {
		return merged
	}

	out := make([]string, len(merged))
	out[0] = merged[0]
	for i := 1; i < len(merged); i++ {
		prev := merged[i-1]
		tail := prev
		if len(prev) > overlap {
			tail = prev[len(prev)-overlap:]
		}
		out[i] = tail + merged[i]
	}
	return out
}
