// Package public provides HTTP handlers and middleware for the content
// service's external API.
//
// Purpose:
//   This file implements the chi middleware that buffers request bodies for
//   HMAC verification and attaches the authenticated identity to the request
//   context ahead of the document-domain handlers.
package public

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/api"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/auth"
)

// Context key types to avoid collisions
type contextKey string

const (
	authContextKey contextKey = "auth_context"
)

const (
	bufferedBodyKey contextKey = "buffered_body"
	modelKey        contextKey = "model"
)

// BodyBufferMiddleware buffers the request body so it can be read multiple times.
// This is needed for HMAC verification in downstream middleware.
func BodyBufferMiddleware(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only buffer POST/PUT/PATCH requests with bodies
			if r.Method != "POST" && r.Method != "PUT" && r.Method != "PATCH" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Read the body
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSize))
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}

			// Check if body exceeds max size
			if int64(len(body)) >= maxSize {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			// Restore the body for downstream handlers
			r.Body = io.NopCloser(bytes.NewReader(body))

			// Store buffered body in context for HMAC verification
			ctx := context.WithValue(r.Context(), bufferedBodyKey, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthContextMiddleware wraps the HMAC and Bearer gates and, once both have
// run, derives the AuthenticatedContext downstream document handlers key on.
// gate.RequireHMAC and gate.RequireBearer already write 401s themselves on
// failure; this only runs when both succeed.
func AuthContextMiddleware(gate *auth.Gate, logger *zap.Logger, tracer trace.Tracer) func(http.Handler) http.Handler {
	attach := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := auth.ContextFromRequest(r.Context())
			if !ok {
				errorBuilder := api.NewErrorBuilder(tracer)
				response := errorBuilder.BuildError(r.Context(), nil, api.ErrCodeAuthInvalid)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(api.GetHTTPStatus(api.ErrCodeAuthInvalid))
				_ = json.NewEncoder(w).Encode(response)
				return
			}

			logger.Debug("authentication successful",
				zap.String("org_id", authCtx.OrganizationID),
				zap.String("user_id", authCtx.APIKeyID))

			ctx := context.WithValue(r.Context(), authContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	return func(next http.Handler) http.Handler {
		return gate.RequireHMAC(gate.RequireBearer(attach(next)))
	}
}
