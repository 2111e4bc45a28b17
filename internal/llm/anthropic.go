package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &AnthropicClient{
		client: client,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

// Complete sends a completion request with tool use enabled.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if req.System != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(req.System)})
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropic.F(toAnthropicTools(req.Tools))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	out := &CompletionResponse{
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			out.Content += block.Text
		case anthropic.ContentBlockTypeToolUse:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	if out.Content == "" && len(out.ToolCalls) == 0 && len(resp.Content) > 0 {
		return nil, fmt.Errorf("%w: no text or tool use blocks", ErrMalformedResponse)
	}
	return out, nil
}

// toAnthropicMessages maps the provider-neutral transcript onto Anthropic's
// alternating user/assistant turns. Consecutive tool results are folded into
// one user turn of tool_result blocks.
func toAnthropicMessages(msgs []ChatMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var results []anthropic.MessageParamContentUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleTool:
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case RoleAssistant:
			flush()
			var blocks []anthropic.MessageParamContentUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, fmt.Errorf("invalid arguments for tool call %s: %w", tc.ID, err)
					}
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlockParam(tc.ID, tc.Name, input))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flush()
	return out, nil
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolParam {
	tools := make([]anthropic.ToolParam, len(specs))
	for i, spec := range specs {
		tools[i] = anthropic.ToolParam{
			Name:        anthropic.F(spec.Name),
			Description: anthropic.F(spec.Description),
			InputSchema: anthropic.F[interface{}](spec.Parameters),
		}
	}
	return tools
}
