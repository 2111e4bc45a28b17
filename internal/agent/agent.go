// Package agent runs the bounded tool-calling conversation between a user
// message and the inference provider.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/heuristics"
	"github.com/nimbus-tasks/assistant/internal/llm"
	"github.com/nimbus-tasks/assistant/internal/tools"
	"github.com/nimbus-tasks/assistant/pkg/logger"
	"github.com/nimbus-tasks/assistant/pkg/metrics"
	"github.com/nimbus-tasks/assistant/pkg/tracing"
)

// Fixed replies used when the run cannot produce one from the model.
const (
	ExhaustedReply = "I apologize, but I encountered too many tool calls. Please try rephrasing your request."
	ErrorReply     = "I apologize, but I encountered an error processing your request. Please try again."
)

// Outcome labels how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

var errNoClient = errors.New("no inference client configured")

// ToolExecutor runs one tool for an authenticated caller.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any, callerID string) tools.Result
}

// Observer receives tool calls while a run is in progress.
type Observer interface {
	OnToolCall(ctx context.Context, call ToolCallLog)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, call ToolCallLog)

// OnToolCall calls f.
func (f ObserverFunc) OnToolCall(ctx context.Context, call ToolCallLog) { f(ctx, call) }

// ToolCallLog is one entry of the transparency log returned with a reply.
type ToolCallLog struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result tools.Result   `json:"result"`
}

// RunRequest is the input of one run. History holds prior user and
// assistant turns in chronological order.
type RunRequest struct {
	OwnerID           string
	History           []llm.ChatMessage
	Message           string
	PreferredLanguage string

	// Observer overrides the agent-wide observer for this run.
	Observer Observer
}

// RunResult is the output of one run.
type RunResult struct {
	Reply      string
	ToolCalls  []ToolCallLog
	Iterations int
	Language   heuristics.Language
	Intent     heuristics.Intent
	Outcome    Outcome
}

// Fallback reports whether Reply is one of the fixed replies.
func (r RunResult) Fallback() bool {
	return r.Outcome != OutcomeCompleted
}

// Agent holds no per-conversation state; one Agent serves every request.
type Agent struct {
	client        llm.Client
	tools         ToolExecutor
	maxIterations int
	llmTimeout    time.Duration
	model         string
	observer      Observer
	logger        *logger.Logger
	tracer        trace.Tracer
}

// New creates an agent that talks to client and executes tools through
// executor.
func New(client llm.Client, executor ToolExecutor, opts ...Option) *Agent {
	a := &Agent{
		client:        client,
		tools:         executor,
		maxIterations: DefaultMaxIterations,
		llmTimeout:    DefaultLLMTimeout,
		logger:        logger.Nop(),
		tracer:        tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run answers req.Message. It never returns an error: inference faults,
// cancellation and iteration exhaustion all end in a fixed reply together
// with whatever tool calls already happened.
func (a *Agent) Run(ctx context.Context, req RunRequest) RunResult {
	res := RunResult{
		Language:  heuristics.ResolveLanguage(req.PreferredLanguage, req.Message),
		Intent:    heuristics.DetectIntent(req.Message),
		ToolCalls: []ToolCallLog{},
	}

	ctx, span := a.tracer.Start(ctx, "agent.Run", trace.WithAttributes(
		attribute.String("owner_id", req.OwnerID),
		attribute.String("language", res.Language.Primary),
		attribute.String("intent", string(res.Intent)),
	))
	defer span.End()

	log := a.logger.With(
		zap.String("owner_id", req.OwnerID),
		zap.String("language", res.Language.Primary),
		zap.String("intent", string(res.Intent)),
	)

	observer := a.observer
	if req.Observer != nil {
		observer = req.Observer
	}

	system := systemPrompt(res.Language, res.Intent)
	messages := make([]llm.ChatMessage, 0, len(req.History)+1+2*a.maxIterations)
	messages = append(messages, req.History...)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: req.Message})

	finish := func(outcome Outcome, reply string) RunResult {
		res.Outcome = outcome
		res.Reply = reply
		span.SetAttributes(
			attribute.String("outcome", string(outcome)),
			attribute.Int("iterations", res.Iterations),
			attribute.Int("tool_calls", len(res.ToolCalls)),
		)
		metrics.RecordAgentRun(string(outcome), res.Iterations)
		log.Info("agent run finished",
			zap.String("outcome", string(outcome)),
			zap.Int("iterations", res.Iterations),
			zap.Int("tool_calls", len(res.ToolCalls)),
		)
		return res
	}

	for i := 0; i < a.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			log.Info("run cancelled before iteration", zap.Int("iteration", i+1), zap.Error(err))
			return finish(OutcomeCancelled, ErrorReply)
		}
		res.Iterations = i + 1

		resp, err := a.complete(ctx, system, messages, i+1)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "inference failed")
			log.Warn("inference call failed", zap.Int("iteration", i+1), zap.Error(err))
			return finish(OutcomeError, ErrorReply)
		}

		if !resp.HasToolCalls() {
			return finish(OutcomeCompleted, resp.Content)
		}

		messages = append(messages, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			if ctx.Err() != nil {
				log.Info("run cancelled, skipping remaining tool calls", zap.String("tool", tc.Name))
				return finish(OutcomeCancelled, ErrorReply)
			}

			entry := a.invoke(ctx, tc, req.OwnerID, log)
			res.ToolCalls = append(res.ToolCalls, entry)
			messages = append(messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    entry.Result.JSON(),
			})
			if observer != nil {
				observer.OnToolCall(ctx, entry)
			}
		}
	}

	log.Warn("iteration limit reached", zap.Int("limit", a.maxIterations))
	return finish(OutcomeExhausted, ExhaustedReply)
}

// complete performs one inference call under the per-call deadline.
func (a *Agent) complete(ctx context.Context, system string, messages []llm.ChatMessage, iteration int) (*llm.CompletionResponse, error) {
	if a.client == nil {
		return nil, errNoClient
	}

	ctx, span := a.tracer.Start(ctx, "agent.Complete", trace.WithAttributes(
		attribute.String("provider", a.client.Name()),
		attribute.Int("iteration", iteration),
	))
	defer span.End()

	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.client.Complete(ctx, &llm.CompletionRequest{
		Model:    a.model,
		System:   system,
		Messages: messages,
		Tools:    tools.Specs(),
	})
	elapsed := time.Since(start).Seconds()

	if err == nil && resp == nil {
		err = llm.ErrMalformedResponse
	}
	if err == nil && !resp.HasToolCalls() && resp.Content == "" {
		err = fmt.Errorf("%w: empty reply", llm.ErrMalformedResponse)
	}
	if err != nil {
		metrics.RecordLLMRequest(a.client.Name(), a.model, "error", elapsed, 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordLLMRequest(a.client.Name(), resp.Model, "success", elapsed, resp.TokensIn, resp.TokensOut)
	span.SetAttributes(
		attribute.Int("tokens_in", resp.TokensIn),
		attribute.Int("tokens_out", resp.TokensOut),
		attribute.Int("tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

// invoke runs one requested tool. A started call is never interrupted by
// the caller going away, so it runs on a context that ignores cancellation.
func (a *Agent) invoke(ctx context.Context, tc llm.ToolCall, ownerID string, log *logger.Logger) ToolCallLog {
	ctx, span := a.tracer.Start(ctx, "agent.Tool", trace.WithAttributes(
		attribute.String("tool", tc.Name),
	))
	defer span.End()

	args, err := tools.ParseArguments(tc.Arguments)
	if err != nil {
		log.Warn("malformed tool arguments",
			zap.String("tool", tc.Name),
			zap.String("arguments", tc.Arguments),
			zap.Error(err),
		)
		entry := ToolCallLog{
			Tool:   tc.Name,
			Args:   map[string]any{},
			Result: tools.Fail("Invalid arguments for %s: expected a JSON object", tc.Name),
		}
		span.SetAttributes(attribute.Bool("ok", false))
		return entry
	}

	var result tools.Result
	if a.tools == nil {
		result = tools.Fail("Tool execution is unavailable")
	} else {
		result = a.tools.Execute(context.WithoutCancel(ctx), tc.Name, args, ownerID)
	}

	span.SetAttributes(attribute.Bool("ok", result.OK))
	log.Debug("tool call",
		zap.String("tool", tc.Name),
		zap.Bool("ok", result.OK),
		zap.String("message", result.Message),
	)
	return ToolCallLog{Tool: tc.Name, Args: args, Result: result}
}
