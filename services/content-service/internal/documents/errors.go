// Package documents implements document upload, listing, status, and
// deletion for the content service, orchestrating the object store, the
// document store, and the event producer behind a single API.
package documents

import "errors"

var (
	ErrNotFound          = errors.New("documents: not found")
	ErrUnsupportedType   = errors.New("documents: unsupported content type")
	ErrFileTooLarge      = errors.New("documents: file exceeds maximum size")
	ErrInvalidFilename   = errors.New("documents: filename sanitizes to empty string")
)
