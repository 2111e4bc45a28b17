package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/agent"
	"github.com/nimbus-tasks/assistant/internal/middleware"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/service"
	"github.com/nimbus-tasks/assistant/pkg/logger"
	"github.com/nimbus-tasks/assistant/pkg/metrics"
)

// StreamHandler serves chat turns as server-sent events so clients can
// show tool activity before the reply is ready.
type StreamHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chat *service.ChatService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{chat: chat, logger: logger.OrNop(log)}
}

// ConversationEvent announces the conversation a turn belongs to.
type ConversationEvent struct {
	ConversationID string `json:"conversation_id"`
}

// ReplyEvent carries the final assistant reply.
type ReplyEvent struct {
	ConversationID string              `json:"conversation_id"`
	Response       string              `json:"response"`
	ToolCalls      []agent.ToolCallLog `json:"tool_calls"`
}

// Chat handles POST /api/v1/chat/stream
func (h *StreamHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := readChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Headers are deferred until the conversation is resolved so an unknown
	// conversation still gets a plain 404.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	// A stream lives as long as the turn does; the server-wide write
	// timeout does not apply to it.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", zap.Error(err))
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	send := func(event string, data interface{}) {
		if ctx.Err() != nil {
			return
		}
		if err := sendSSEEvent(w, flusher, event, data); err != nil {
			h.logger.Warn("failed to write SSE event", zap.String("event", event), zap.Error(err))
		}
	}

	resp, err := h.chat.Run(ctx, service.ChatRequest{
		OwnerID:           middleware.GetOwnerID(ctx),
		ConversationID:    deref(req.ConversationID),
		Message:           req.Message,
		PreferredLanguage: deref(req.PreferredLanguage),
		OnConversation: func(id string) {
			start()
			send("conversation", &ConversationEvent{ConversationID: id})
		},
		Observer: agent.ObserverFunc(func(_ context.Context, call agent.ToolCallLog) {
			send("tool_call", call)
		}),
	})
	if err != nil {
		if !started {
			writeServiceError(w, h.logger, err, conversationNotFound, "failed to process message")
			return
		}
		h.logger.Error("chat stream failed", zap.Error(err))
		send("error", &model.ErrorEvent{
			Code:    "chat_error",
			Message: "failed to process message",
		})
		return
	}

	send("reply", &ReplyEvent{
		ConversationID: resp.ConversationID,
		Response:       resp.Response,
		ToolCalls:      resp.ToolCalls,
	})
	send("done", map[string]bool{"success": true})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
