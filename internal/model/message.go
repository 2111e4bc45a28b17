package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Persisted reports whether messages with this role survive across requests.
// Tool results only live inside a single agent run.
func (r Role) Persisted() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a stored conversation message. Messages are immutable.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	OwnerID        string    `json:"owner_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Seq is the store insertion counter, used to break CreatedAt ties.
	Seq int64 `json:"-"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	ConversationID    *string `json:"conversation_id,omitempty"`
	Message           string  `json:"message"`
	PreferredLanguage *string `json:"preferred_language,omitempty"`
}

// HistoryMessage is one entry of a chat history response.
type HistoryMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ChatHistoryResponse is the response for GET /api/v1/chat/history/{id}.
type ChatHistoryResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []HistoryMessage `json:"messages"`
}

// ErrorEvent represents an error event on a stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
