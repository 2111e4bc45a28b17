// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nimbus-tasks/assistant/internal/middleware"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/service"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

const conversationNotFound = "conversation not found"

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  logger.OrNop(log),
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.service.Create(ctx, middleware.GetOwnerID(ctx), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	resp, err := h.service.List(ctx, middleware.GetOwnerID(ctx), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, err := middleware.CanonicalConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Get(ctx, middleware.GetOwnerID(ctx), conversationID)
	if err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Update handles PUT /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, err := middleware.CanonicalConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Update(ctx, middleware.GetOwnerID(ctx), conversationID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to update conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, err := middleware.CanonicalConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(ctx, middleware.GetOwnerID(ctx), conversationID); err != nil {
		writeServiceError(w, h.logger, err, conversationNotFound, "failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
