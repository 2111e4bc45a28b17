package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbus-tasks/assistant/internal/llm"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/pkg/metrics"
)

// DefaultHistoryLimit is how many stored messages are replayed to the model.
const DefaultHistoryLimit = 50

// HistoryAdapter turns stored messages into model transcript turns and
// records new turns. Only user and assistant messages cross requests.
type HistoryAdapter struct {
	messages store.MessageStore
	limit    int
	now      func() time.Time
}

// NewHistoryAdapter creates an adapter replaying at most limit messages.
// A non-positive limit uses DefaultHistoryLimit.
func NewHistoryAdapter(messages store.MessageStore, limit int) *HistoryAdapter {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryAdapter{messages: messages, limit: limit, now: time.Now}
}

// LoadHistory returns the newest messages of the conversation, oldest
// first.
func (h *HistoryAdapter) LoadHistory(ctx context.Context, conversationID, ownerID string) ([]llm.ChatMessage, error) {
	stored, err := h.messages.ListMessages(ctx, conversationID, ownerID, h.limit)
	if err != nil {
		return nil, err
	}

	out := make([]llm.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		if !msg.Role.Persisted() {
			continue
		}
		out = append(out, llm.ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out, nil
}

// Append stores one user or assistant turn.
func (h *HistoryAdapter) Append(ctx context.Context, conversationID, ownerID string, role model.Role, content string) (*model.Message, error) {
	if !role.Persisted() {
		return nil, fmt.Errorf("role %q is not persisted", role)
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		OwnerID:        ownerID,
		Role:           role,
		Content:        content,
		CreatedAt:      h.now().UTC(),
	}
	if err := h.messages.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	return msg, nil
}

// All returns every stored message of the conversation.
func (h *HistoryAdapter) All(ctx context.Context, conversationID, ownerID string) ([]model.Message, error) {
	return h.messages.ListMessages(ctx, conversationID, ownerID, 0)
}
