// Package auth implements the same HMAC+bearer trust-fabric gate
// content-service fronts its API with: org identity comes from a verified
// client signature, user identity from a bearer token validated against
// that org. Neither gate owns the data it checks, so both call out to
// identity-service; the HMAC gate fronts that call with a short-TTL
// read-through Redis cache since it runs on every protected request.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: the org-lookup cache
//   - github.com/ai-aas/shared-go/trustfabric: canonical payload + signature verification
//   - github.com/ai-aas/shared-go/authz: the context types and role-requirement helper
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ai-aas/shared-go/authz"
	"github.com/ai-aas/shared-go/trustfabric"
)

const (
	maxClockSkew  = 5 * time.Minute
	orgCacheTTL   = 60 * time.Second
	orgCacheKeyFn = "org:clientidhash:%s"
)

// Gate fronts the HMAC and Bearer verification calls to identity-service.
type Gate struct {
	identityServiceURL string
	httpClient         *http.Client
	redis              *redis.Client
	logger             *zap.Logger
}

// NewGate builds a Gate that calls identityServiceURL's internal endpoints.
func NewGate(identityServiceURL string, redisClient *redis.Client, timeout time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		identityServiceURL: strings.TrimSuffix(identityServiceURL, "/"),
		httpClient:         &http.Client{Timeout: timeout},
		redis:              redisClient,
		logger:             logger,
	}
}

type orgRecord struct {
	OrgID            string `json:"org_id"`
	OrgName          string `json:"org_name"`
	ClientSecretHash string `json:"client_secret_hash"`
	Active           bool   `json:"active"`
}

// RequireHMAC verifies the X-Client-ID/X-Timestamp/X-Signature headers
// against the canonical request payload and attaches the resolved org to
// the request context.
func (g *Gate) RequireHMAC(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.Header.Get("X-Client-ID")
		timestamp := r.Header.Get("X-Timestamp")
		signature := r.Header.Get("X-Signature")
		if clientID == "" || timestamp == "" || signature == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil || time.Since(time.UnixMilli(ts)).Abs() > maxClockSkew {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		clientIDHash := trustfabric.HashIdentifier(clientID)
		org, err := g.lookupOrg(r.Context(), clientIDHash)
		if err != nil || !org.Active {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		payload := trustfabric.CanonicalPayload(r.Method, r.URL.Path, timestamp, decodeBody(body))
		if !trustfabric.VerifyHMAC(org.ClientSecretHash, payload, signature) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := authz.WithOrg(r.Context(), authz.Org{OrgID: org.OrgID, OrgName: org.OrgName})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireBearer verifies the Authorization: Bearer <token> header against
// the org attached by RequireHMAC and attaches the resolved user. Must run
// after RequireHMAC in the middleware chain.
func (g *Gate) RequireBearer(next http.Handler) http.Handler {
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

		user, err := g.validateBearer(r.Context(), org.OrgID, token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := authz.WithUser(r.Context(), authz.User{UserID: user.UserID, Role: user.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// lookupOrg resolves a client ID hash to its org record. A cache hit
// reporting the org active only short-circuits the live lookup; a cached
// inactive result is always reconfirmed live so a deactivation is never
// trusted longer than the window it was actually observed in.
func (g *Gate) lookupOrg(ctx context.Context, clientIDHash string) (orgRecord, error) {
	key := fmt.Sprintf(orgCacheKeyFn, clientIDHash)

	if g.redis != nil {
		if cached, err := g.redis.Get(ctx, key).Result(); err == nil {
			var rec orgRecord
			if json.Unmarshal([]byte(cached), &rec) == nil && rec.Active {
				return rec, nil
			}
		}
	}

	rec, err := g.lookupOrgLive(ctx, clientIDHash)
	if err != nil {
		return orgRecord{}, err
	}

	if g.redis != nil {
		if data, err := json.Marshal(rec); err == nil {
			g.redis.Set(ctx, key, data, orgCacheTTL)
		}
	}
	return rec, nil
}

func (g *Gate) lookupOrgLive(ctx context.Context, clientIDHash string) (orgRecord, error) {
	url := fmt.Sprintf("%s/internal/orgs/%s", g.identityServiceURL, clientIDHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return orgRecord{}, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return orgRecord{}, fmt.Errorf("org lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orgRecord{}, fmt.Errorf("org lookup: status %d", resp.StatusCode)
	}

	var rec orgRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return orgRecord{}, fmt.Errorf("org lookup: decode response: %w", err)
	}
	return rec, nil
}

// AuthenticatedContext is what RequireHMAC+RequireBearer leave behind for
// downstream handlers to key tenant/user scoping on.
type AuthenticatedContext struct {
	OrganizationID string
	UserID         string
	Role           string
}

// ContextFromRequest builds an AuthenticatedContext from the org/user the
// gates attached to the request context. Both gates must have already run.
func ContextFromRequest(ctx context.Context) (*AuthenticatedContext, bool) {
	org, ok := authz.OrgFromContext(ctx)
	if !ok {
		return nil, false
	}
	user, _ := authz.UserFromContext(ctx)
	return &AuthenticatedContext{
		OrganizationID: org.OrgID,
		UserID:         user.UserID,
		Role:           user.Role,
	}, true
}

type bearerUser struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (g *Gate) validateBearer(ctx context.Context, orgID, accessToken string) (bearerUser, error) {
	payload, err := json.Marshal(map[string]string{"org_id": orgID, "access_token": accessToken})
	if err != nil {
		return bearerUser{}, err
	}

	url := fmt.Sprintf("%s/internal/auth/validate-bearer", g.identityServiceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return bearerUser{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return bearerUser{}, fmt.Errorf("validate bearer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return bearerUser{}, fmt.Errorf("validate bearer: status %d", resp.StatusCode)
	}

	var user bearerUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return bearerUser{}, fmt.Errorf("validate bearer: decode response: %w", err)
	}
	return user, nil
}

// decodeBody parses an HTTP body as the JSON object the signer canonicalized
// it as. A non-object or empty body canonicalizes to an empty object, which
// matches what trustfabric.CanonicalPayload does for a nil body.
func decodeBody(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
