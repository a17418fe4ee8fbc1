// Package auth provides HTTP handlers for the trust fabric's authentication
// flows: user signup, login, refresh token rotation, logout, and the
// service-to-service HMAC/bearer validation endpoints other services call
// to verify a request before trusting it.
//
// Purpose:
//
//	Handlers here are thin: they decode a request, call into internal/identity
//	for the actual business logic, and translate the result (or error) into
//	an HTTP response. No cryptographic or database logic lives in this package.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: route registration
//   - internal/identity: Login/Refresh/Logout/Signup/ValidateBearer/ValidateHMAC
//   - internal/httpapi/middleware: the HMAC and Bearer gates protecting these routes
//   - internal/metrics: auth attempt/failure counters
//
// Error Handling:
//   - Invalid JSON returns 400 Bad Request
//   - Invalid credentials and locked accounts both return 401 Unauthorized,
//     deliberately not distinguished in the response body
//   - Refresh token reuse returns 401 Unauthorized; the caller should treat
//     this as a signal to force re-authentication, not merely retry
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/metrics"
	"github.com/otherjamesbrown/ai-aas/shared/go/authz"
)

// RegisterRoutes mounts authentication routes beneath /v1/auth.
func RegisterRoutes(router chi.Router, svc *identity.Service) {
	h := &Handler{svc: svc}

	router.Route("/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireHMAC(svc))
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/validate-hmac", h.ValidateHMAC)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireBearer(svc))
				r.Post("/logout", h.Logout)
				r.Get("/validate-jwt", h.ValidateJWT)
			})
		})
	})

	// Internal: not behind the HMAC/bearer gates. Other services' bearer
	// gates call this to resolve an access token to its user, since only
	// this service holds the user directory the token's org scope is
	// checked against. Expected to sit behind network-level trust, same as
	// the internal org-lookup endpoint in internal/httpapi/orgs.
	router.Post("/internal/auth/validate-bearer", h.ValidateBearerInternal)
}

type Handler struct {
	svc *identity.Service
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Signup creates the first owner account for the calling org.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	org, ok := authz.OrgFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload signupRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	user, err := h.svc.Signup(r.Context(), orgID, payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, identity.ErrWeakPassword) {
			http.Error(w, "password does not meet policy", http.StatusBadRequest)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"user_id": user.ID.String(), "role": user.Role})
}

// Login authenticates an email/password pair and issues a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	org, ok := authz.OrgFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	pair, _, err := h.svc.Login(r.Context(), orgID, payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			metrics.RecordAuthFailure("account_locked")
		case errors.Is(err, identity.ErrInvalidCredentials):
			metrics.RecordAuthFailure("invalid_credentials")
		default:
			metrics.RecordAuthFailure("unknown")
		}
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	metrics.RecordAuthSuccess()

	writeTokenResponse(w, pair)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrTokenReused) {
			metrics.RecordRefresh("reused")
		} else {
			metrics.RecordRefresh("invalid")
		}
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	metrics.RecordRefresh("success")

	writeTokenResponse(w, pair)
}

// Logout revokes the refresh token record behind the bearer's refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.svc.Logout(r.Context(), payload.RefreshToken); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	metrics.RecordLogout()
	w.WriteHeader(http.StatusNoContent)
}

// ValidateHMAC is a no-op handler beyond the middleware chain itself: if the
// request reaches here, the HMAC gate already verified it. Callers use this
// endpoint purely to confirm their signing is correct before wiring it into
// a production integration.
func (h *Handler) ValidateHMAC(w http.ResponseWriter, r *http.Request) {
	org, _ := authz.OrgFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"org_id": org.OrgID, "org_name": org.OrgName})
}

// ValidateJWT is a no-op handler beyond the middleware chain: reaching here
// means both the HMAC and bearer gates already verified the request.
func (h *Handler) ValidateJWT(w http.ResponseWriter, r *http.Request) {
	user, _ := authz.UserFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"user_id": user.UserID, "role": user.Role})
}

type validateBearerRequest struct {
	OrgID       string `json:"org_id"`
	AccessToken string `json:"access_token"`
}

// ValidateBearerInternal resolves an access token to its user within a given
// org, for other services' bearer gates to call.
func (h *Handler) ValidateBearerInternal(w http.ResponseWriter, r *http.Request) {
	var payload validateBearerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	orgID, err := uuid.Parse(payload.OrgID)
	if err != nil {
		http.Error(w, "invalid org id", http.StatusBadRequest)
		return
	}

	user, err := h.svc.ValidateBearer(r.Context(), orgID, payload.AccessToken)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"user_id": user.ID.String(), "role": user.Role})
}

func writeTokenResponse(w http.ResponseWriter, pair identity.TokenPair) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenType:    "Bearer",
	})
}
