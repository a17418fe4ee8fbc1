package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentPlainTextPassesThrough(t *testing.T) {
	text := strings.Repeat("this is a sentence of plain text content. ", 5)
	got, err := ParseDocument("text/plain", []byte(text))
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestParseDocumentRejectsInsufficientText(t *testing.T) {
	_, err := ParseDocument("text/plain", []byte("too short"))
	assert.ErrorIs(t, err, ErrInsufficientText)
}

func TestParseDocumentRejectsMalformedPDF(t *testing.T) {
	_, err := ParseDocument("application/pdf", []byte("not a real pdf"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientText)
}

func TestParseDocumentRejectsMalformedDOCX(t *testing.T) {
	_, err := ParseDocument("application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("not a real docx"))
	require.Error(t, err)
}
