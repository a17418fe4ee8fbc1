// Package postgres provides Postgres-backed persistence for conversations
// and messages. Every read and write is scoped by (org_id, user_id); no
// query in this package can cross that boundary.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a conversation row does not exist, or exists
// but belongs to a different org or user.
var ErrNotFound = errors.New("postgres: conversation not found")

// Store provides conversation and message persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store using the provided connection string.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreFromPool wraps an existing pool, useful for tests that share a
// pool with other stores against the same database.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool. A no-op when constructed from a shared
// pool via NewStoreFromPool, since the caller owns that pool's lifecycle.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Conversation is a single conversation row.
type Conversation struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	UserID       uuid.UUID
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a single message row. Sources carries the raw sources jsonb
// array; empty for user messages, populated for grounded assistant replies.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	Sources        []byte
	CreatedAt      time.Time
}

// CreateConversation starts a new, untitled conversation owned by (orgID, userID).
func (s *Store) CreateConversation(ctx context.Context, orgID, userID uuid.UUID) (*Conversation, error) {
	id := uuid.New()
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, org_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, org_id, user_id, title, message_count, created_at, updated_at
	`, id, orgID, userID).Scan(&c.ID, &c.OrgID, &c.UserID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

// GetConversation fetches a conversation scoped to (orgID, userID). Returns
// ErrNotFound if it does not exist or belongs to a different org or user.
func (s *Store) GetConversation(ctx context.Context, orgID, userID, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, user_id, title, message_count, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND org_id = $2 AND user_id = $3
	`, id, orgID, userID).Scan(&c.ID, &c.OrgID, &c.UserID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &c, nil
}

// ListConversations returns a tenant-and-user-scoped, paginated view ordered
// by most recently updated first.
func (s *Store) ListConversations(ctx context.Context, orgID, userID uuid.UUID, limit, offset int) ([]Conversation, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM conversations WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, user_id, title, message_count, created_at, updated_at
		FROM conversations
		WHERE org_id = $1 AND user_id = $2
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, orgID, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OrgID, &c.UserID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	return out, total, nil
}

// ListMessages returns a conversation's messages ordered oldest first. The
// conversation's ownership is checked first so a cross-tenant id still 404s
// rather than leaking an empty list.
func (s *Store) ListMessages(ctx context.Context, orgID, userID, conversationID uuid.UUID, limit, offset int) ([]Message, error) {
	if _, err := s.GetConversation(ctx, orgID, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, sources, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Sources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// RecentMessages returns the last n messages of a conversation, oldest
// first, with no ownership check (the orchestrator calls this only after
// already resolving the conversation for the current request).
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, sources, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Sources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AppendMessage inserts a message and bumps the parent conversation's
// message_count/updated_at (and, for the conversation's first user message,
// derives a title from its content). The conversation row is locked with
// FOR UPDATE for the duration of the transaction, which is what serializes
// concurrent appends to the same conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, sources []byte) (*Message, error) {
	if sources == nil {
		sources = []byte("[]")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("append message: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentTitle string
	var messageCount int
	err = tx.QueryRow(ctx, `
		SELECT title, message_count FROM conversations WHERE id = $1 FOR UPDATE
	`, conversationID).Scan(&currentTitle, &messageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append message: lock conversation: %w", err)
	}

	id := uuid.New()
	var m Message
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, sources)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, role, content, sources, created_at
	`, id, conversationID, role, content, sources).Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Sources, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: insert: %w", err)
	}

	title := currentTitle
	if title == "" && role == "user" {
		title = deriveTitle(content)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, updated_at = now(), title = $2
		WHERE id = $1
	`, conversationID, title); err != nil {
		return nil, fmt.Errorf("append message: update conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("append message: commit: %w", err)
	}
	return &m, nil
}

const maxDerivedTitleLength = 80

// deriveTitle truncates a message's content to a conversation title,
// breaking on a rune boundary.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= maxDerivedTitleLength {
		return content
	}
	return string(runes[:maxDerivedTitleLength])
}
