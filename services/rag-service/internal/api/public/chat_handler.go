package public

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-aas/shared-go/authz"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/api"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/rag"
	"github.com/otherjamesbrown/ai-aas/services/rag-service/internal/storage/postgres"
)

// chatStreamChunkSize bounds how much of a finished answer is sent per SSE
// event when streaming is requested. The generation client itself is not
// streaming, so this chunks the complete answer after the fact rather than
// token-by-token.
const chatStreamChunkSize = 80

// ChatHandler serves the chat query and conversation-listing surface. Must
// sit behind AuthContextMiddleware.
type ChatHandler struct {
	orchestrator *rag.Orchestrator
	store        *postgres.Store
	logger       *zap.Logger
	errors       *api.Builder
}

func NewChatHandler(orchestrator *rag.Orchestrator, store *postgres.Store, logger *zap.Logger, errorBuilder *api.Builder) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, store: store, logger: logger, errors: errorBuilder}
}

// RegisterRoutes mounts the chat endpoints under r. r must already be
// running behind the HMAC+bearer gate.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/chat/query", h.HandleQuery)
	r.Get("/v1/chat/conversations", h.HandleListConversations)
	r.Get("/v1/chat/conversations/{id}/messages", h.HandleListMessages)
}

type chatQueryRequest struct {
	Query          string     `json:"query"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

// HandleQuery runs a single chat turn. With ?stream=true it emits the
// finished answer as a sequence of SSE chunks terminated by a "done" event,
// rather than the single JSON body it returns by default.
func (h *ChatHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	org, user, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, r, errors.New("query must not be empty"), api.ErrCodeValidationError)
		return
	}

	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}
	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}

	resp, err := h.orchestrator.Query(r.Context(), orgID, userID, req.Query, req.ConversationID)
	if err != nil {
		h.writeError(w, r, err, chatErrorCode(err))
		return
	}

	if r.URL.Query().Get("stream") == "true" {
		h.streamResponse(w, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// streamResponse writes resp.Answer as a series of SSE "chunk" events
// followed by a terminal "done" event carrying the full response metadata
// (sources, conversation id, timestamp) so a streaming client ends up with
// the same information a non-streaming caller gets in one shot.
func (h *ChatHandler) streamResponse(w http.ResponseWriter, resp *rag.ChatResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	bw := bufio.NewWriter(w)

	answer := resp.Answer
	for len(answer) > 0 {
		n := chatStreamChunkSize
		if n > len(answer) {
			n = len(answer)
		}
		chunk, rest := answer[:n], answer[n:]
		answer = rest

		payload, _ := json.Marshal(map[string]string{"delta": chunk})
		bw.WriteString("event: chunk\n")
		bw.WriteString("data: ")
		bw.Write(payload)
		bw.WriteString("\n\n")
		bw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	}

	done, _ := json.Marshal(resp)
	bw.WriteString("event: done\n")
	bw.WriteString("data: ")
	bw.Write(done)
	bw.WriteString("\n\n")
	bw.Flush()
	if flusher != nil {
		flusher.Flush()
	}
}

func chatErrorCode(err error) string {
	switch {
	case errors.Is(err, rag.ErrQueryTooLong):
		return api.ErrCodeQueryTooLong
	case errors.Is(err, rag.ErrConversationNotFound):
		return api.ErrCodeConversationNotFound
	case errors.Is(err, rag.ErrGenerationFailed):
		return api.ErrCodeGenerationFailed
	default:
		return api.ErrCodeInternalError
	}
}

func (h *ChatHandler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	org, user, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}
	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}
	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	conversations, total, err := h.store.ListConversations(r.Context(), orgID, userID, limit, offset)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeDatabaseError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"pagination": map[string]any{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *ChatHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	org, user, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}
	orgID, err := uuid.Parse(org.OrgID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}
	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, api.ErrCodeValidationError)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	messages, err := h.store.ListMessages(r.Context(), orgID, userID, conversationID, limit, offset)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			h.writeError(w, r, err, api.ErrCodeConversationNotFound)
			return
		}
		h.writeError(w, r, err, api.ErrCodeDatabaseError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *ChatHandler) requestIdentity(w http.ResponseWriter, r *http.Request) (authz.Org, authz.User, bool) {
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

func (h *ChatHandler) writeError(w http.ResponseWriter, r *http.Request, err error, code string) {
	h.logger.Warn("chat request error", zap.Int("status", api.GetHTTPStatus(code)), zap.String("code", code), zap.Error(err))
	h.errors.WriteError(w, r, err, code)
}

func (h *ChatHandler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
