// Package audit provides audit event emission for the identity service.
//
// Purpose:
//
//	This package defines the audit event structure and provides an interface
//	for emitting audit events to Kafka. It includes a logger-based stub
//	implementation for development and testing, with a clear path to replace
//	with Kafka producer in production.
//
// Dependencies:
//   - github.com/google/uuid: UUID generation for event IDs
//   - github.com/rs/zerolog: Structured logging for stub implementation
//
// Debugging Notes:
//   - LoggerEmitter logs events as JSON for development visibility
//   - Hash field is tamper-evidence only; it is not a cryptographic signature
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event mirrors the Audit entry entity: an append-only record of a
// state-mutating or security-relevant action.
type Event struct {
	EventID   uuid.UUID  `json:"event_id"`
	OrgID     uuid.UUID  `json:"org_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Action    string     `json:"action"`
	Resource  string     `json:"resource,omitempty"`
	Status    string     `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	Hash      string     `json:"hash"`
	CreatedAt time.Time  `json:"created_at"`
}

// Emitter defines the interface for audit event emission. Implementations
// can use Kafka, logger, or other backends.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter is a development stub that logs audit events as JSON.
type LoggerEmitter struct {
	logger zerolog.Logger
}

// NewLoggerEmitter creates a logger-based audit emitter.
func NewLoggerEmitter(logger zerolog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger.With().Str("component", "audit").Logger()}
}

// Emit logs the audit event as structured JSON. Never fails.
func (e *LoggerEmitter) Emit(ctx context.Context, event Event) error {
	e.logger.Info().
		Str("event_id", event.EventID.String()).
		Str("org_id", event.OrgID.String()).
		Str("action", event.Action).
		Str("status", event.Status).
		Interface("details", event.Details).
		Msg("audit event")
	return nil
}

// NoopEmitter discards all events. Used in tests.
type NoopEmitter struct{}

func NewNoopEmitter() *NoopEmitter { return &NoopEmitter{} }

func (e *NoopEmitter) Emit(ctx context.Context, event Event) error { return nil }

// BuildEvent constructs an audit event, generating its id, timestamp, and
// tamper-evidence hash.
func BuildEvent(orgID uuid.UUID, userID *uuid.UUID, action, resource, status string, details map[string]any) Event {
	event := Event{
		EventID:   uuid.New(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Status:    status,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	event.Hash = computeEventHash(event)
	return event
}

// BuildEventFromRequest enriches an audit event with HTTP request metadata.
func BuildEventFromRequest(event Event, r *http.Request) Event {
	event.IPAddress = getClientIP(r)
	event.UserAgent = r.Header.Get("User-Agent")
	if event.Resource == "" {
		event.Resource = r.Method + " " + r.URL.Path
	}
	event.Hash = computeEventHash(event)
	return event
}

func computeEventHash(event Event) string {
	eventCopy := event
	eventCopy.Hash = ""

	payload, err := json.Marshal(eventCopy)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", eventCopy))
	}

	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// Common action names, matching the Identity service operations that emit them.
const (
	ActionOrgRegister       = "org.register"
	ActionLoginSuccess      = "login.success"
	ActionLoginFailed       = "login.failed"
	ActionLoginLocked       = "login.failed_account_locked"
	ActionTokenRefresh      = "token.refresh"
	ActionTokenReuseDetected = "token.reuse_detected"
	ActionLogout            = "logout"
	ActionUserCreate        = "user.create"
	ActionUserRoleChange    = "user.role_change"
)

// Status values recorded on an audit entry.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
