// Package middleware provides the HTTP trust-fabric gates: the HMAC gate
// that authenticates the calling organization, and the Bearer gate that
// authenticates the calling user within that organization.
//
// Purpose:
//
//	HMAC and Bearer verification are two independent stages. The HMAC gate
//	always runs first and attaches the verified org to the request context;
//	the Bearer gate runs second and attaches the verified user on top of it.
//	A handler that only needs org-level trust (e.g. ValidateHMAC) mounts only
//	the HMAC gate; one that needs a specific user mounts both, in that order.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: route grouping
//   - internal/crypto: HMAC canonicalization/verification, bearer token verification
//   - internal/identity: org and user lookup backing each gate
//   - shared/go/authz: the context types and role-requirement helper both gates write into
//
// Debugging Notes:
//   - HMAC signature covers method, path, timestamp, and body exactly as
//     internal/crypto.CanonicalPayload builds it; any proxy that rewrites the
//     path or re-serializes the body invalidates every signature
//   - A stale timestamp (see maxClockSkew) is rejected before the signature
//     is even checked, to bound replay windows
//
// Error Handling:
//   - Missing/malformed headers, unknown client IDs, stale timestamps, and
//     signature mismatches all return 401 without distinguishing which,
//     so as not to help an attacker narrow down which header is wrong
package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/crypto"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/metrics"
	"github.com/otherjamesbrown/ai-aas/shared/go/authz"
)

const maxClockSkew = 5 * time.Minute

// RequireHMAC verifies the X-Client-ID/X-Timestamp/X-Signature headers
// against the canonical request payload and attaches the resolved org to
// the request context. See SignHMAC/VerifyHMAC in internal/crypto and the
// HMAC header contract this validates against.
func RequireHMAC(svc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get("X-Client-ID")
			timestamp := r.Header.Get("X-Timestamp")
			signature := r.Header.Get("X-Signature")
			if clientID == "" || timestamp == "" || signature == "" {
				metrics.RecordHMACVerification("unknown_client")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil || time.Since(time.Unix(ts, 0)).Abs() > maxClockSkew {
				metrics.RecordHMACVerification("stale_timestamp")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(newBodyReader(body))

			org, err := svc.ValidateHMAC(r.Context(), crypto.HashIdentifier(clientID))
			if err != nil {
				metrics.RecordHMACVerification("unknown_client")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload := crypto.CanonicalPayload(r.Method, r.URL.Path, timestamp, decodeBody(body))
			if !crypto.VerifyHMAC(org.ClientSecretHash, payload, signature) {
				metrics.RecordHMACVerification("invalid")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			metrics.RecordHMACVerification("valid")

			ctx := authz.WithOrg(r.Context(), authz.Org{OrgID: org.ID.String(), OrgName: org.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireBearer verifies the Authorization: Bearer <token> header against
// the org attached by RequireHMAC and attaches the resolved user. Must run
// after RequireHMAC in the middleware chain.
func RequireBearer(svc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org, ok := authz.OrgFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			orgUUID, err := parseUUID(org.OrgID)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := svc.ValidateBearer(r.Context(), orgUUID, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authz.WithUser(r.Context(), authz.User{UserID: user.ID.String(), Role: user.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
