package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/agent"
	"github.com/nimbus-tasks/assistant/internal/events"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/pkg/logger"
	"github.com/nimbus-tasks/assistant/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Runner answers one user message. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) agent.RunResult
}

// ChatRequest is one inbound chat turn for an authenticated owner.
type ChatRequest struct {
	OwnerID           string
	ConversationID    string
	Message           string
	PreferredLanguage string

	// OnConversation is called once the conversation is resolved, before
	// the agent runs.
	OnConversation func(conversationID string)
	// Observer sees tool calls while the agent runs.
	Observer agent.Observer
}

// ChatResponse is the reply to a chat turn.
type ChatResponse struct {
	ConversationID string              `json:"conversation_id"`
	Response       string              `json:"response"`
	ToolCalls      []agent.ToolCallLog `json:"tool_calls"`
}

// ChatService runs chat turns. It keeps no state between calls; every turn
// rebuilds its context from the store.
type ChatService struct {
	conversations *ConversationService
	history       *HistoryAdapter
	runner        Runner
	publisher     events.Publisher
	logger        *logger.Logger
}

// NewChatService creates a new chat service. A nil publisher disables run
// events.
func NewChatService(
	conversations *ConversationService,
	history *HistoryAdapter,
	runner Runner,
	publisher events.Publisher,
	log *logger.Logger,
) *ChatService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ChatService{
		conversations: conversations,
		history:       history,
		runner:        runner,
		publisher:     publisher,
		logger:        logger.OrNop(log).Named("chat"),
	}
}

// Run handles one chat turn. The user message is stored before the agent
// runs and the reply after it; a failure to store either is returned as an
// error. Everything the agent does is reported in the response, never as an
// error.
func (s *ChatService) Run(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &ValidationError{Err: ErrEmptyMessage}
	}

	conversationID, err := s.resolveConversation(ctx, req.OwnerID, req.ConversationID, message)
	if err != nil {
		return nil, err
	}
	if req.OnConversation != nil {
		req.OnConversation(conversationID)
	}

	log := s.logger.WithContext(logger.CorrelationID(ctx), req.OwnerID).
		With(zap.String("conversation_id", conversationID))

	// History is read before the new message is stored so it is not
	// replayed twice.
	history, err := s.history.LoadHistory(ctx, conversationID, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", mapConversationErr(err))
	}

	if _, err := s.history.Append(ctx, conversationID, req.OwnerID, model.RoleUser, message); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", mapConversationErr(err))
	}

	result := s.runner.Run(ctx, agent.RunRequest{
		OwnerID:           req.OwnerID,
		History:           history,
		Message:           message,
		PreferredLanguage: req.PreferredLanguage,
		Observer:          req.Observer,
	})

	// Tool calls may already have changed data, so the reply is stored even
	// if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if _, err := s.history.Append(persistCtx, conversationID, req.OwnerID, model.RoleAssistant, result.Reply); err != nil {
		log.Error("failed to store assistant reply", zap.Error(err))
		return nil, fmt.Errorf("failed to store assistant message: %w", mapConversationErr(err))
	}

	s.publish(persistCtx, conversationID, req.OwnerID, result, log)

	return &ChatResponse{
		ConversationID: conversationID,
		Response:       result.Reply,
		ToolCalls:      result.ToolCalls,
	}, nil
}

// History returns every stored message of a conversation the owner holds.
func (s *ChatService) History(ctx context.Context, ownerID, conversationID string) (*model.ChatHistoryResponse, error) {
	if _, err := s.conversations.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.history.All(ctx, conversationID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", mapConversationErr(err))
	}

	out := &model.ChatHistoryResponse{
		ConversationID: conversationID,
		Messages:       make([]model.HistoryMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		if !m.Role.Persisted() {
			continue
		}
		out.Messages = append(out.Messages, model.HistoryMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, ownerID, conversationID, firstMessage string) (string, error) {
	if conversationID != "" {
		conv, err := s.conversations.Get(ctx, ownerID, conversationID)
		if err != nil {
			return "", err
		}
		return conv.ID, nil
	}

	title := firstMessage
	conv, err := s.conversations.Create(ctx, ownerID, &model.CreateConversationRequest{Title: &title})
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (s *ChatService) publish(ctx context.Context, conversationID, ownerID string, result agent.RunResult, log *logger.Logger) {
	event := &model.RunEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           model.EventTypeRunCompleted,
		ConversationID: conversationID,
		OwnerID:        ownerID,
		Iterations:     result.Iterations,
		Language:       result.Language.Primary,
		Intent:         string(result.Intent),
		ToolCalls:      make([]model.ToolCallEntry, len(result.ToolCalls)),
		CreatedAt:      time.Now().UTC(),
	}
	if result.Fallback() {
		event.Type = model.EventTypeRunFallback
	}
	for i, tc := range result.ToolCalls {
		event.ToolCalls[i] = model.ToolCallEntry{Tool: tc.Tool, OK: tc.Result.OK}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, event)
	metrics.RecordEventPublish(s.publisher.Name(), err)
	if err != nil {
		log.Warn("failed to publish run event", zap.String("backend", s.publisher.Name()), zap.Error(err))
	}
}

// IsNotFound reports whether err means the requested entity is absent for
// this caller.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrTaskNotFound) || errors.Is(err, store.ErrNotFound)
}
