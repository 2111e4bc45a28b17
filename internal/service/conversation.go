package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/pkg/logger"
	"github.com/nimbus-tasks/assistant/pkg/metrics"
)

const maxConversationTitle = 60

// ConversationService handles conversation operations.
type ConversationService struct {
	store  store.ConversationStore
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(conversations store.ConversationStore, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  conversations,
		logger: logger.OrNop(log).Named("conversations"),
	}
}

// Create creates a new conversation.
func (s *ConversationService) Create(ctx context.Context, ownerID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:      uuid.Must(uuid.NewV7()).String(),
		OwnerID: ownerID,
	}
	if req != nil && req.Title != nil {
		title := clipTitle(*req.Title)
		if title != "" {
			conv.Title = &title
		}
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	metrics.ConversationsTotal.Inc()

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("owner_id", ownerID),
	)
	return conv, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, ownerID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID, ownerID)
	if err != nil {
		return nil, mapConversationErr(err)
	}
	return conv, nil
}

// List retrieves conversations for an owner, most recently active first.
func (s *ConversationService) List(ctx context.Context, ownerID string, limit, offset int) (*model.ListConversationsResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	convs, total, err := s.store.ListConversations(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Update renames a conversation.
func (s *ConversationService) Update(ctx context.Context, ownerID, conversationID string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	title := clipTitle(req.Title)
	if title == "" {
		return nil, &ValidationError{Err: errors.New("title is required")}
	}
	conv, err := s.store.RenameConversation(ctx, conversationID, ownerID, title)
	if err != nil {
		return nil, mapConversationErr(err)
	}
	return conv, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, ownerID, conversationID string) error {
	if err := s.store.DeleteConversation(ctx, conversationID, ownerID); err != nil {
		return mapConversationErr(err)
	}
	s.logger.Info("conversation deleted",
		zap.String("conversation_id", conversationID),
		zap.String("owner_id", ownerID),
	)
	return nil
}

func mapConversationErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// clipTitle trims s to its first line and at most maxConversationTitle
// characters.
func clipTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if utf8.RuneCountInString(s) <= maxConversationTitle {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxConversationTitle-1])) + "…"
}
