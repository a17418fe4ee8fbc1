package documents

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
var repeatedUnderscores = regexp.MustCompile(`_+`)

// sanitizeFilename replaces anything outside [A-Za-z0-9._-] with an
// underscore, collapses repeated underscores, and trims to 255 bytes.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	cleaned := unsafeFilenameChars.ReplaceAllString(base, "_")
	cleaned = repeatedUnderscores.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}
	return cleaned
}

// allowedContentTypes maps the accepted content types to the file extension
// used when deriving a document's storage key.
var allowedContentTypes = map[string]string{
	"application/pdf": "pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"text/plain":    "txt",
	"text/markdown": "md",
}

func extensionFor(contentType string) (string, bool) {
	ext, ok := allowedContentTypes[contentType]
	return ext, ok
}
