// Package orgs provides the HTTP handlers for organization registration and
// the internal credential lookup other services' HMAC gates call.
//
// Purpose:
//
//	Implements POST /v1/org/register, the one unauthenticated endpoint in
//	this service: it is how a new organization obtains the client_id and
//	client_secret pair every other endpoint's HMAC gate is keyed on. Also
//	implements GET /internal/orgs/{clientIDHash}, which content-service and
//	rag-service call (behind their own short-TTL cache) to resolve a
//	client_id to the org record and secret hash needed to verify a request's
//	signature locally, without this service ever seeing that request.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: route registration
//   - internal/identity: RegisterOrg/LookupOrgByClientIDHash business logic
//
// Error Handling:
//   - Invalid JSON or a blank name returns 400 Bad Request
//   - Store failures return 500 Internal Server Error
//   - An unknown or inactive client_id_hash returns 404 Not Found
package orgs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
)

// RegisterRoutes mounts the org registration and internal lookup routes.
// The internal route is not behind the HMAC/bearer gates: it is what makes
// that verification possible for other services in the first place, and is
// expected to sit behind network-level trust (service mesh / private
// subnet), not request-level authentication.
func RegisterRoutes(router chi.Router, svc *identity.Service) {
	h := &Handler{svc: svc}
	router.Post("/v1/org/register", h.Register)
	router.Get("/internal/orgs/{clientIDHash}", h.Lookup)
}

type Handler struct {
	svc *identity.Service
}

type registerRequest struct {
	Name string `json:"name"`
}

type registerResponse struct {
	OrgID        string `json:"org_id"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Register creates a new organization and returns its client credentials.
// The client secret is returned exactly once here; it is never recoverable
// afterward, only its hash is persisted.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	org, clientID, clientSecret, err := h.svc.RegisterOrg(r.Context(), name)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(registerResponse{
		OrgID:        org.ID.String(),
		Name:         org.Name,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

type lookupResponse struct {
	OrgID            string `json:"org_id"`
	OrgName          string `json:"org_name"`
	ClientSecretHash string `json:"client_secret_hash"`
	Active           bool   `json:"active"`
}

// Lookup resolves a client_id hash to the org record an HMAC gate needs to
// verify a signature: the org's identity and its client secret hash.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	clientIDHash := chi.URLParam(r, "clientIDHash")

	org, err := h.svc.LookupOrgByClientIDHash(r.Context(), clientIDHash)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lookupResponse{
		OrgID:            org.ID.String(),
		OrgName:          org.Name,
		ClientSecretHash: org.ClientSecretHash,
		Active:           org.Active,
	})
}
