package public

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-aas/shared-go/authz"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/api"
	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/documents"
)

// DocumentsHandler serves the document upload/list/status/delete surface.
// Must sit behind AuthContextMiddleware; RegisterRoutes additionally gates
// upload and delete with the admin role.
type DocumentsHandler struct {
	service *documents.Service
	logger  *zap.Logger
	errors  *api.ErrorBuilder
}

func NewDocumentsHandler(service *documents.Service, logger *zap.Logger, errorBuilder *api.ErrorBuilder) *DocumentsHandler {
	return &DocumentsHandler{service: service, logger: logger, errors: errorBuilder}
}

// RegisterRoutes mounts the document endpoints under r. adminOnly wraps a
// handler with the admin role guard (upload, delete); r itself must already
// be running behind the HMAC+bearer gate.
func (h *DocumentsHandler) RegisterRoutes(r chi.Router) {
	adminOnly := func(next http.HandlerFunc) http.Handler {
		return authz.RequireRole("admin", http.HandlerFunc(h.forbidden))(next)
	}

	r.Method(http.MethodPost, "/v1/documents/upload", adminOnly(h.HandleIssueUpload))
	r.Get("/v1/documents", h.HandleList)
	r.Get("/v1/documents/{id}/status", h.HandleGetStatus)
	r.Method(http.MethodDelete, "/v1/documents/{id}", adminOnly(h.HandleDelete))
}

func (h *DocumentsHandler) forbidden(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, errors.New("admin role required"), api.ErrCodeForbidden)
}

type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

func (h *DocumentsHandler) HandleIssueUpload(w http.ResponseWriter, r *http.Request) {
	org, user, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, err, api.ErrCodeInvalidRequest)
		return
	}

	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeInvalidRequest)
		return
	}
	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeInvalidRequest)
		return
	}

	result, err := h.service.IssueUpload(r.Context(), orgID, userID, req.Filename, req.ContentType, req.FileSize)
	if err != nil {
		h.writeError(w, r, err, uploadErrorCode(err))
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": result.DocumentID,
		"upload_url":  result.UploadURL,
		"expires_in":  result.ExpiresIn,
	})
}

func uploadErrorCode(err error) string {
	switch {
	case errors.Is(err, documents.ErrUnsupportedType), errors.Is(err, documents.ErrFileTooLarge), errors.Is(err, documents.ErrInvalidFilename):
		return api.ErrCodeValidationError
	default:
		return api.ErrCodeInternalError
	}
}

func (h *DocumentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}
	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeInvalidRequest)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	result, err := h.service.List(r.Context(), orgID, documents.ListOptions{
		Limit:     limit,
		Offset:    offset,
		Status:    q.Get("status"),
		SortField: q.Get("sort_field"),
		SortDir:   q.Get("sort_dir"),
	})
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeInternalError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": result.Documents,
		"pagination": map[string]any{
			"total":    result.Total,
			"has_more": result.HasMore,
		},
	})
}

func (h *DocumentsHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}
	orgID, id, ok := h.parseOrgAndID(w, r, org.OrgID)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(r.Context(), orgID, id)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			h.writeError(w, r, err, api.ErrCodeNotFound)
			return
		}
		h.writeError(w, r, err, api.ErrCodeInternalError)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

func (h *DocumentsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}
	orgID, id, ok := h.parseOrgAndID(w, r, org.OrgID)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), orgID, id); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			h.writeError(w, r, err, api.ErrCodeNotFound)
			return
		}
		h.writeError(w, r, err, api.ErrCodeInternalError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentsHandler) parseOrgAndID(w http.ResponseWriter, r *http.Request, rawOrgID string) (uuid.UUID, uuid.UUID, bool) {
	orgID, err := uuid.Parse(rawOrgID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeInvalidRequest)
		return uuid.UUID{}, uuid.UUID{}, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeInvalidRequest)
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return orgID, id, true
}

func (h *DocumentsHandler) requestIdentity(w http.ResponseWriter, r *http.Request) (authz.Org, authz.User, bool) {
	org, ok := authz.OrgFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.New("missing org context"), api.ErrCodeAuthInvalid)
		return authz.Org{}, authz.User{}, false
	}
	user, ok := authz.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.New("missing user context"), api.ErrCodeAuthInvalid)
		return authz.Org{}, authz.User{}, false
	}
	return org, user, true
}

func (h *DocumentsHandler) writeError(w http.ResponseWriter, r *http.Request, err error, code string) {
	statusCode := api.GetHTTPStatus(code)
	response := h.errors.BuildError(r.Context(), err, code)
	h.logger.Warn("documents request error", zap.Int("status", statusCode), zap.String("code", code), zap.Error(err))
	h.writeJSON(w, statusCode, response)
}

func (h *DocumentsHandler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
