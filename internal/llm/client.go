// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrMalformedResponse is returned when a provider answers with something
// that is neither text nor tool calls.
var ErrMalformedResponse = errors.New("malformed completion response")

// ToolCall is a tool invocation requested by the model. Arguments holds the
// raw JSON object exactly as the model emitted it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolSpec describes one callable tool to the provider.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object.
	Parameters map[string]any
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents a completion response. Either Content or
// ToolCalls (or both) is populated.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// HasToolCalls reports whether the model asked for any tool.
func (r *CompletionResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// SupportsModel reports whether c lists model. An empty model selects the
// provider default and is always supported.
func SupportsModel(c Client, model string) bool {
	if model == "" {
		return true
	}
	for _, m := range c.Models() {
		if m == model {
			return true
		}
	}
	return false
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

const defaultMaxTokens = 1024
