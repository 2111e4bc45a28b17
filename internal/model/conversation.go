// Package model defines data structures for the task assistant.
package model

import (
	"time"
)

// Conversation represents a chat thread owned by exactly one user.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

// UpdateConversationRequest is the request to rename a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
