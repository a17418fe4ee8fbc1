package rag

import "errors"

var (
	// ErrConversationNotFound mirrors postgres.ErrNotFound so callers of this
	// package never need to import the storage layer to check it.
	ErrConversationNotFound = errors.New("rag: conversation not found")
	ErrQueryTooLong         = errors.New("rag: query exceeds maximum length")
	ErrGenerationFailed     = errors.New("rag: generation endpoint failed")
)
