package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbus-tasks/assistant/internal/middleware"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/service"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

// ChatHandler handles the assistant endpoints.
type ChatHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger.OrNop(log)}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := readChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.chat.Run(ctx, service.ChatRequest{
		OwnerID:           middleware.GetOwnerID(ctx),
		ConversationID:    deref(req.ConversationID),
		Message:           req.Message,
		PreferredLanguage: deref(req.PreferredLanguage),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/v1/chat/history/{id}
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, err := middleware.CanonicalConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chat.History(ctx, middleware.GetOwnerID(ctx), conversationID)
	if err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// readChatRequest decodes and validates a chat body, writing the error
// response itself when it fails.
func readChatRequest(w http.ResponseWriter, r *http.Request) (*model.ChatRequest, bool) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if req.ConversationID != nil && *req.ConversationID != "" {
		id, err := middleware.CanonicalConversationID(*req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		req.ConversationID = &id
	}
	if err := middleware.ValidateLanguage(deref(req.PreferredLanguage)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
