package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the OpenAI LLM client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return NewOpenAIClientWithConfig(openai.DefaultConfig(apiKey)), nil
}

// NewOpenAIClientWithConfig creates a client from a full configuration,
// for OpenAI-compatible endpoints.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

// Complete sends a completion request with the tool catalog attached.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.System, req.Messages),
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}

	out, err := fromOpenAIResponse(resp)
	if err != nil {
		return nil, err
	}
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

func toOpenAIMessages(system string, msgs []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range msgs {
		m := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		switch msg.Role {
		case RoleTool:
			m.Role = openai.ChatMessageRoleTool
			m.ToolCallID = msg.ToolCallID
		case RoleAssistant:
			m.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		out = append(out, m)
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		}
	}
	return tools
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) (*CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:    choice.Message.Content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == "" {
			return nil, fmt.Errorf("%w: tool call without a name", ErrMalformedResponse)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
