package ingestion

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ErrPDFEncrypted is returned when a PDF cannot be read because it is
// password-protected.
var ErrPDFEncrypted = fmt.Errorf("pdf is encrypted")

// ErrInsufficientText is returned when a parsed document yields fewer than
// minParsedTextChars characters after trimming.
var ErrInsufficientText = fmt.Errorf("document has insufficient extractable text")

const minParsedTextChars = 100

// ParseDocument extracts plain text from raw bytes by content type.
func ParseDocument(contentType string, data []byte) (string, error) {
	var text string
	var err error

	switch {
	case strings.Contains(contentType, "pdf"):
		text, err = parsePDF(data)
	case strings.Contains(contentType, "wordprocessingml") || strings.Contains(contentType, "docx"):
		text, err = parseDOCX(data)
	default:
		text = string(data)
	}
	if err != nil {
		return "", err
	}

	if len(strings.TrimSpace(text)) < minParsedTextChars {
		return "", ErrInsufficientText
	}
	return text, nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return "", ErrPDFEncrypted
		}
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// parseDOCX shells out through a temp file since nguyenthenguyen/docx reads
// from a path, not an io.Reader.
func parseDOCX(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "ingest-*.docx")
	if err != nil {
		return "", fmt.Errorf("create temp file for docx: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("write temp docx: %w", err)
	}

	r, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer r.Close()

	return r.Editable().GetContent(), nil
}
