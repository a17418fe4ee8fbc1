// Package identity implements the Identity service: org registration, user
// signup, login, refresh token rotation, logout, and role management. It is
// the one place that composes the Crypto primitives with the Credential
// store and the audit emitter; HTTP handlers only translate requests into
// calls against this package.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/audit"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/crypto"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/storage/postgres"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountLocked      = errors.New("identity: account locked")
	ErrWeakPassword       = errors.New("identity: password does not meet policy")
	ErrTokenExpired       = errors.New("identity: token expired")
	ErrTokenReused        = errors.New("identity: refresh token reused")
	ErrLastOwner          = errors.New("identity: cannot demote the last owner")
)

// Config carries the token-lifetime and lockout parameters Service needs.
// These come from the service's envconfig-loaded Config, kept separate here
// so this package has no dependency on the config package itself.
type Config struct {
	JWTSecret              string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	LockoutMaxAttempts     int
	LockoutDuration        time.Duration
}

// Service implements the Identity service operations.
type Service struct {
	store  *postgres.Store
	audit  audit.Emitter
	cfg    Config
}

func New(store *postgres.Store, emitter audit.Emitter, cfg Config) *Service {
	return &Service{store: store, audit: emitter, cfg: cfg}
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// RegisterOrg creates a new organization and returns the plaintext
// client_id/client_secret exactly once; only their hashes are persisted.
func (s *Service) RegisterOrg(ctx context.Context, name string) (postgres.Org, string, string, error) {
	clientID := uuid.New().String()
	clientSecret := uuid.New().String() + uuid.New().String()

	org, err := s.store.CreateOrg(ctx, postgres.CreateOrgParams{
		ID:               uuid.New(),
		Name:             name,
		ClientIDHash:     crypto.HashIdentifier(clientID),
		ClientSecretHash: crypto.HashIdentifier(clientSecret),
	})
	if err != nil {
		return postgres.Org{}, "", "", fmt.Errorf("register org: %w", err)
	}

	event := audit.BuildEvent(org.ID, nil, audit.ActionOrgRegister, "organizations/"+org.ID.String(), audit.StatusSuccess, nil)
	_ = s.audit.Emit(ctx, event)

	return org, clientID, clientSecret, nil
}

// Signup creates the first owner for a newly registered org, or an
// additional user when invoked by an existing admin/owner (see CreateUser).
func (s *Service) Signup(ctx context.Context, orgID uuid.UUID, email, password string) (postgres.User, error) {
	if !crypto.PasswordMeetsPolicy(password) {
		return postgres.User{}, ErrWeakPassword
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return postgres.User{}, fmt.Errorf("signup: hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, postgres.CreateUserParams{
		ID:           uuid.New(),
		OrgID:        orgID,
		Email:        email,
		PasswordHash: hash,
		Role:         postgres.RoleOwner,
	})
	if err != nil {
		return postgres.User{}, fmt.Errorf("signup: %w", err)
	}
	event := audit.BuildEvent(orgID, &user.ID, audit.ActionUserCreate, "users/"+user.ID.String(), audit.StatusSuccess, map[string]any{"role": user.Role})
	_ = s.audit.Emit(ctx, event)
	return user, nil
}

// CreateUser adds a user to an org at a given role. Callers are responsible
// for checking the caller's own role satisfies admin via authz.Satisfies
// before invoking this.
func (s *Service) CreateUser(ctx context.Context, orgID uuid.UUID, email, password, role string) (postgres.User, error) {
	if !crypto.PasswordMeetsPolicy(password) {
		return postgres.User{}, ErrWeakPassword
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return postgres.User{}, fmt.Errorf("create user: hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, postgres.CreateUserParams{
		ID:           uuid.New(),
		OrgID:        orgID,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return postgres.User{}, fmt.Errorf("create user: %w", err)
	}
	event := audit.BuildEvent(orgID, &user.ID, audit.ActionUserCreate, "users/"+user.ID.String(), audit.StatusSuccess, map[string]any{"role": role})
	_ = s.audit.Emit(ctx, event)
	return user, nil
}

// ListUsers returns a paginated page of an org's users.
func (s *Service) ListUsers(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]postgres.User, int, error) {
	return s.store.ListUsers(ctx, orgID, limit, offset)
}

// UpdateUserRole changes a user's role, enforcing the last-owner invariant.
func (s *Service) UpdateUserRole(ctx context.Context, orgID, userID uuid.UUID, role string, actorID uuid.UUID) (postgres.User, error) {
	user, err := s.store.UpdateUserRole(ctx, orgID, userID, role)
	if err != nil {
		if errors.Is(err, postgres.ErrLastOwner) {
			return postgres.User{}, ErrLastOwner
		}
		return postgres.User{}, fmt.Errorf("update user role: %w", err)
	}
	event := audit.BuildEvent(orgID, &actorID, audit.ActionUserRoleChange, "users/"+userID.String(), audit.StatusSuccess, map[string]any{"new_role": role})
	_ = s.audit.Emit(ctx, event)
	return user, nil
}

// Login authenticates an email/password pair within an org and issues a
// fresh access/refresh token pair. Failed attempts are recorded on the user
// row and lock the account once LockoutMaxAttempts is reached.
func (s *Service) Login(ctx context.Context, orgID uuid.UUID, email, password string) (TokenPair, postgres.User, error) {
	user, err := s.store.GetUserByEmail(ctx, orgID, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return TokenPair{}, postgres.User{}, ErrInvalidCredentials
		}
		return TokenPair{}, postgres.User{}, fmt.Errorf("login: %w", err)
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		return TokenPair{}, postgres.User{}, ErrAccountLocked
	}

	ok, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return TokenPair{}, postgres.User{}, fmt.Errorf("login: verify password: %w", err)
	}
	if !ok {
		attempts, locked, recErr := s.store.RecordFailedLogin(ctx, orgID, user.ID, s.cfg.LockoutMaxAttempts, s.cfg.LockoutDuration)
		if recErr == nil {
			action := audit.ActionLoginFailed
			if locked {
				action = audit.ActionLoginLocked
			}
			event := audit.BuildEvent(orgID, &user.ID, action, "users/"+user.ID.String(), audit.StatusFailure, map[string]any{"attempts": attempts})
			_ = s.audit.Emit(ctx, event)
		}
		if locked {
			return TokenPair{}, postgres.User{}, ErrAccountLocked
		}
		return TokenPair{}, postgres.User{}, ErrInvalidCredentials
	}

	if !user.Active {
		return TokenPair{}, postgres.User{}, ErrInvalidCredentials
	}

	if err := s.store.ResetLoginState(ctx, orgID, user.ID); err != nil {
		return TokenPair{}, postgres.User{}, fmt.Errorf("login: reset login state: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, orgID, user.ID)
	if err != nil {
		return TokenPair{}, postgres.User{}, fmt.Errorf("login: issue tokens: %w", err)
	}

	event := audit.BuildEvent(orgID, &user.ID, audit.ActionLoginSuccess, "users/"+user.ID.String(), audit.StatusSuccess, nil)
	_ = s.audit.Emit(ctx, event)

	return pair, user, nil
}

// Refresh rotates a refresh token for a fresh token pair. Presenting a
// refresh token that has already been rotated (or revoked) is treated as
// reuse: the whole chain cannot be trusted, so every live token for that
// user is revoked and the caller gets ErrTokenReused.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := crypto.VerifyToken(s.cfg.JWTSecret, refreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh: %w", ErrTokenExpired)
	}
	if claims.Type != crypto.TokenTypeRefresh {
		return TokenPair{}, ErrInvalidCredentials
	}
	tokenID, err := uuid.Parse(claims.TokenID)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}

	record, err := s.store.GetRefreshToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("refresh: %w", err)
	}

	nextTokenID := uuid.New()
	next := postgres.CreateRefreshTokenParams{
		TokenID:   nextTokenID,
		UserID:    record.UserID,
		OrgID:     record.OrgID,
		TokenHash: crypto.HashIdentifier(nextTokenID.String()),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}

	if err := s.store.RotateRefreshToken(ctx, tokenID, next); err != nil {
		if errors.Is(err, postgres.ErrTokenReused) {
			event := audit.BuildEvent(record.OrgID, &userID, audit.ActionTokenReuseDetected, "refresh_tokens/"+tokenID.String(), audit.StatusFailure, nil)
			_ = s.audit.Emit(ctx, event)
			return TokenPair{}, ErrTokenReused
		}
		return TokenPair{}, fmt.Errorf("refresh: rotate: %w", err)
	}

	accessToken, err := s.signAccessToken(record.UserID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh: sign access token: %w", err)
	}
	refreshJWT, err := crypto.SignToken(s.cfg.JWTSecret, crypto.Claims{
		UserID:    record.UserID.String(),
		Type:      crypto.TokenTypeRefresh,
		TokenID:   nextTokenID.String(),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: next.ExpiresAt.Unix(),
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh: sign refresh token: %w", err)
	}

	event := audit.BuildEvent(record.OrgID, &userID, audit.ActionTokenRefresh, "refresh_tokens/"+nextTokenID.String(), audit.StatusSuccess, nil)
	_ = s.audit.Emit(ctx, event)

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshJWT,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes the refresh token record named in the presented refresh
// token. Idempotent: logging out twice with the same token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := crypto.VerifyToken(s.cfg.JWTSecret, refreshToken)
	if err != nil || claims.Type != crypto.TokenTypeRefresh {
		return nil
	}
	tokenID, err := uuid.Parse(claims.TokenID)
	if err != nil {
		return nil
	}
	if err := s.store.RevokeRefreshToken(ctx, tokenID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	userID, _ := uuid.Parse(claims.UserID)
	event := audit.BuildEvent(uuid.Nil, &userID, audit.ActionLogout, "refresh_tokens/"+tokenID.String(), audit.StatusSuccess, nil)
	_ = s.audit.Emit(ctx, event)
	return nil
}

// ValidateBearer verifies an access token and returns the (userID, role) it
// authenticates, the second half of the trust fabric's two-stage gate.
func (s *Service) ValidateBearer(ctx context.Context, orgID uuid.UUID, accessToken string) (postgres.User, error) {
	claims, err := crypto.VerifyToken(s.cfg.JWTSecret, accessToken)
	if err != nil {
		return postgres.User{}, ErrTokenExpired
	}
	if claims.Type != crypto.TokenTypeAccess {
		return postgres.User{}, ErrInvalidCredentials
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return postgres.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByID(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return postgres.User{}, ErrInvalidCredentials
		}
		return postgres.User{}, fmt.Errorf("validate bearer: %w", err)
	}
	if !user.Active {
		return postgres.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ValidateHMAC looks up the org signing this request by its client id hash.
// The caller (the request authenticator middleware) computes and checks the
// signature itself; this just resolves the org record the signature is
// checked against.
func (s *Service) ValidateHMAC(ctx context.Context, clientIDHash string) (postgres.Org, error) {
	return s.lookupActiveOrg(ctx, clientIDHash)
}

// LookupOrgByClientIDHash is the same lookup ValidateHMAC performs, exposed
// for the internal org-lookup endpoint that content-service and rag-service
// call to resolve the org record they need to verify a signature locally.
func (s *Service) LookupOrgByClientIDHash(ctx context.Context, clientIDHash string) (postgres.Org, error) {
	return s.lookupActiveOrg(ctx, clientIDHash)
}

func (s *Service) lookupActiveOrg(ctx context.Context, clientIDHash string) (postgres.Org, error) {
	org, err := s.store.GetOrgByClientIDHash(ctx, clientIDHash)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return postgres.Org{}, ErrInvalidCredentials
		}
		return postgres.Org{}, fmt.Errorf("lookup org: %w", err)
	}
	if !org.Active {
		return postgres.Org{}, ErrInvalidCredentials
	}
	return org, nil
}

func (s *Service) issueTokenPair(ctx context.Context, orgID, userID uuid.UUID) (TokenPair, error) {
	accessToken, err := s.signAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	tokenID := uuid.New()
	expiresAt := time.Now().Add(s.cfg.RefreshTokenTTL)
	if err := s.store.CreateRefreshToken(ctx, postgres.CreateRefreshTokenParams{
		TokenID:   tokenID,
		UserID:    userID,
		OrgID:     orgID,
		TokenHash: crypto.HashIdentifier(tokenID.String()),
		ExpiresAt: expiresAt,
	}); err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := crypto.SignToken(s.cfg.JWTSecret, crypto.Claims{
		UserID:    userID.String(),
		Type:      crypto.TokenTypeRefresh,
		TokenID:   tokenID.String(),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) signAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	return crypto.SignToken(s.cfg.JWTSecret, crypto.Claims{
		UserID:    userID.String(),
		Type:      crypto.TokenTypeAccess,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL).Unix(),
	})
}
