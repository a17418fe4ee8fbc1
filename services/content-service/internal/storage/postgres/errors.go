package postgres

import "errors"

var (
	// ErrNotFound is returned when a requested document does not exist, is
	// soft-deleted, or belongs to a different org than the caller's.
	ErrNotFound = errors.New("content/postgres: document not found")
	// ErrDuplicate is returned on a unique constraint violation (storage key collision).
	ErrDuplicate = errors.New("content/postgres: duplicate resource")
)
