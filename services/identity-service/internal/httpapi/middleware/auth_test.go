package middleware

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/audit"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/crypto"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/storage/postgres"
	"github.com/otherjamesbrown/ai-aas/shared/go/authz"
)

func setupService(t *testing.T) *identity.Service {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.RunContainer(ctx,
		tcpostgres.WithDatabase("identity_service"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connString)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..", "..", "..")
	migrationsDir := filepath.Join(projectRoot, "services", "identity-service", "migrations", "sql")

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, migrationsDir))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	store := postgres.NewStoreFromPool(pool)
	t.Cleanup(func() { store.Close() })

	return identity.New(store, audit.NewNoopEmitter(), identity.Config{
		JWTSecret:          "test-secret-at-least-32-bytes-long",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		LockoutMaxAttempts: 3,
		LockoutDuration:    30 * time.Minute,
	})
}

func sign(t *testing.T, clientID, clientSecret, method, path string, body []byte) (string, string, string) {
	t.Helper()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	bodyMap := decodeBody(body)
	payload := crypto.CanonicalPayload(method, path, timestamp, bodyMap)
	signature := crypto.SignHMAC(crypto.HashIdentifier(clientSecret), payload)
	return clientID, timestamp, signature
}

func TestRequireHMACAcceptsValidSignatureAndRejectsTamperedOne(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	org, clientID, clientSecret, err := svc.RegisterOrg(ctx, "Acme")
	require.NoError(t, err)

	var gotOrgID string
	handler := RequireHMAC(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o, _ := authz.OrgFromContext(r.Context())
		gotOrgID = o.OrgID
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"name":"irrelevant"}`)
	cid, ts, sig := sign(t, clientID, clientSecret, http.MethodPost, "/v1/auth/login", body)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("X-Client-ID", cid)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, org.ID.String(), gotOrgID)

	// Tampering with the body after signing must invalidate the signature.
	tamperedReq := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"name":"tampered"}`)))
	tamperedReq.Header.Set("X-Client-ID", cid)
	tamperedReq.Header.Set("X-Timestamp", ts)
	tamperedReq.Header.Set("X-Signature", sig)
	tamperedRec := httptest.NewRecorder()
	handler.ServeHTTP(tamperedRec, tamperedReq)
	require.Equal(t, http.StatusUnauthorized, tamperedRec.Code)
}

func TestRequireHMACRejectsStaleTimestamp(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	_, clientID, clientSecret, err := svc.RegisterOrg(ctx, "Acme")
	require.NoError(t, err)

	handler := RequireHMAC(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{}`)
	staleTimestamp := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())
	payload := crypto.CanonicalPayload(http.MethodPost, "/v1/auth/login", staleTimestamp, decodeBody(body))
	signature := crypto.SignHMAC(crypto.HashIdentifier(clientSecret), payload)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("X-Client-ID", clientID)
	req.Header.Set("X-Timestamp", staleTimestamp)
	req.Header.Set("X-Signature", signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerAttachesUserAfterHMACGate(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	org, clientID, clientSecret, err := svc.RegisterOrg(ctx, "Acme")
	require.NoError(t, err)
	user, err := svc.Signup(ctx, org.ID, "owner@acme.io", "correct-horse-battery-1")
	require.NoError(t, err)
	pair, _, err := svc.Login(ctx, org.ID, "owner@acme.io", "correct-horse-battery-1")
	require.NoError(t, err)

	var gotUserID string
	handler := RequireHMAC(svc)(RequireBearer(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := authz.UserFromContext(r.Context())
		gotUserID = u.UserID
		w.WriteHeader(http.StatusOK)
	})))

	body := []byte(`{}`)
	cid, ts, sig := sign(t, clientID, clientSecret, http.MethodGet, "/v1/auth/validate-jwt", body)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/validate-jwt", bytes.NewReader(body))
	req.Header.Set("X-Client-ID", cid)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, user.ID.String(), gotUserID)
}
