// Package api provides centralized HTTP error handling for rag-service,
// built on the shared error schema (github.com/ai-aas/shared-go/errors)
// every service in this codebase is meant to report through. It plays the
// same structural role as content-service's error-handling package (a code
// catalog, an HTTP status mapping, and a single response-writing path) but
// with rag-service's own code set: chat, conversation, and retrieval
// failures rather than request-routing ones.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	sharederrors "github.com/ai-aas/shared-go/errors"
)

// Error codes this service actually returns.
const (
	ErrCodeAuthInvalid          = "AUTH_INVALID"
	ErrCodeForbidden            = "INSUFFICIENT_PERMISSION"
	ErrCodeValidationError      = "VALIDATION_ERROR"
	ErrCodeQueryTooLong         = "QUERY_TOO_LONG"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeGenerationFailed     = "GENERATION_FAILED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// GetHTTPStatus maps an error code to an HTTP status code.
func GetHTTPStatus(code string) int {
	switch code {
	case ErrCodeAuthInvalid:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidationError, ErrCodeQueryTooLong:
		return http.StatusBadRequest
	case ErrCodeConversationNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeGenerationFailed, ErrCodeDatabaseError, ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Builder attaches request-scoped identifiers (trace id) to outgoing error
// bodies built from a bare error and code.
type Builder struct {
	tracer trace.Tracer
}

func NewBuilder(tracer trace.Tracer) *Builder {
	return &Builder{tracer: tracer}
}

// Build converts err into the shared error schema, filling in the trace id
// from the request's active span when one is present.
func (b *Builder) Build(ctx context.Context, err error, code string) *sharederrors.Error {
	var opts []sharederrors.Option
	if b.tracer != nil {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			opts = append(opts, sharederrors.WithTraceID(span.SpanContext().TraceID().String()))
		}
	}
	return sharederrors.New(code, err.Error(), opts...)
}

// WriteError writes a JSON error body (via the shared error schema) and the
// status code GetHTTPStatus maps the code to.
func (b *Builder) WriteError(w http.ResponseWriter, r *http.Request, err error, code string) {
	status := GetHTTPStatus(code)
	body := b.Build(r.Context(), err, code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
