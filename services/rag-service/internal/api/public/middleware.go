// Package public provides HTTP handlers and middleware for rag-service's
// external API: the chat query endpoint and conversation/message listing.
package public

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/api"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/auth"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// BodyBufferMiddleware buffers POST/PUT/PATCH bodies so RequireHMAC can read
// them for signature verification and still hand an intact body to the
// handler downstream.
func BodyBufferMiddleware(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSize))
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			if int64(len(body)) >= maxSize {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// AuthContextMiddleware wraps the HMAC and bearer gates and, once both have
// succeeded, attaches the AuthenticatedContext downstream handlers key their
// org/user scoping on.
func AuthContextMiddleware(gate *auth.Gate, builder *api.Builder, logger *zap.Logger, tracer trace.Tracer) func(http.Handler) http.Handler {
	attach := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := auth.ContextFromRequest(r.Context())
			if !ok {
				builder.WriteError(w, r, errors.New("missing authenticated context"), api.ErrCodeAuthInvalid)
				return
			}

			logger.Debug("authentication successful",
				zap.String("org_id", authCtx.OrganizationID),
				zap.String("user_id", authCtx.UserID))

			ctx := context.WithValue(r.Context(), authContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	return func(next http.Handler) http.Handler {
		return gate.RequireHMAC(gate.RequireBearer(attach(next)))
	}
}
