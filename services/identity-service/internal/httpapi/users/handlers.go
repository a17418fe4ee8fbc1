// Package users provides the HTTP handlers for listing an org's users and
// changing a user's role. Both routes require an admin or owner caller.
//
// Purpose:
//
//	These are the operations an org's administrators use once it has at
//	least one owner (created via POST /v1/auth/signup): inviting teammates
//	and managing who holds which role.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: route parameters
//   - internal/identity: CreateUser/ListUsers/UpdateUserRole business logic
//   - shared/go/authz: role-requirement enforcement
//
// Error Handling:
//   - Missing/invalid role requirement returns 403 Forbidden
//   - Demoting an org's last owner returns 409 Conflict
package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/shared/go/authz"
)

// RegisterRoutes mounts user management routes beneath /v1/users. The
// caller is responsible for wrapping this group with the HMAC and bearer
// gates; these handlers additionally require an admin (or owner) role.
func RegisterRoutes(router chi.Router, svc *identity.Service) {
	h := &Handler{svc: svc}
	router.Route("/v1/users", func(r chi.Router) {
		r.Use(authz.RequireRole("admin", http.HandlerFunc(forbidden)))
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/{userID}/role", h.UpdateRole)
	})
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "forbidden", http.StatusForbidden)
}

type Handler struct {
	svc *identity.Service
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	usersPage, total, err := h.svc.ListUsers(r.Context(), orgID, limit, offset)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	type userResponse struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	resp := make([]userResponse, 0, len(usersPage))
	for _, u := range usersPage {
		resp = append(resp, userResponse{ID: u.ID.String(), Email: u.Email, Role: u.Role})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"users": resp, "total": total})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
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

	var payload createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.Role == "" {
		payload.Role = "user"
	}

	user, err := h.svc.CreateUser(r.Context(), orgID, payload.Email, payload.Password, payload.Role)
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
	_ = json.NewEncoder(w).Encode(map[string]string{"id": user.ID.String(), "email": user.Email, "role": user.Role})
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
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
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var payload updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	actor, _ := authz.UserFromContext(r.Context())
	actorID, _ := uuid.Parse(actor.UserID)

	user, err := h.svc.UpdateUserRole(r.Context(), orgID, userID, payload.Role, actorID)
	if err != nil {
		if errors.Is(err, identity.ErrLastOwner) {
			http.Error(w, "cannot demote the organization's last owner", http.StatusConflict)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": user.ID.String(), "role": user.Role})
}
