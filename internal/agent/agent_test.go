package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-tasks/assistant/internal/heuristics"
	"github.com/nimbus-tasks/assistant/internal/llm"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/internal/tools"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

// scriptedLLM replays canned responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	errs      []error
	requests  []*llm.CompletionRequest
	onCall    func(n int)
}

func (s *scriptedLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	n := len(s.requests)
	cp := *req
	cp.Messages = append([]llm.ChatMessage(nil), req.Messages...)
	s.requests = append(s.requests, &cp)
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(n)
	}
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	if n >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[n], nil
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return []string{"scripted-1"} }

func toolCall(id, name, args string) *llm.CompletionResponse {
	return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

func text(s string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: s}
}

func newStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recordingExecutor wraps a dispatcher and remembers the identity of every
// call.
type recordingExecutor struct {
	inner   ToolExecutor
	callers []string
	names   []string
}

func (r *recordingExecutor) Execute(ctx context.Context, name string, args map[string]any, callerID string) tools.Result {
	r.callers = append(r.callers, callerID)
	r.names = append(r.names, name)
	return r.inner.Execute(ctx, name, args, callerID)
}

func TestRunAddsTaskForCaller(t *testing.T) {
	s := newStore(t)
	exec := &recordingExecutor{inner: tools.NewDispatcher(s, logger.Nop())}
	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		toolCall("c1", tools.AddTask, `{"title":"Buy milk","user_id":"U2"}`),
		text("Added \"Buy milk\" to your list."),
	}}

	res := New(client, exec).Run(context.Background(), RunRequest{
		OwnerID: "U1",
		Message: "add a task called Buy milk",
	})

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.False(t, res.Fallback())
	assert.NotEmpty(t, res.Reply)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, heuristics.IntentAdd, res.Intent)
	assert.Equal(t, heuristics.English, res.Language.Primary)

	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Result.OK)
	assert.Equal(t, []string{"U1"}, exec.callers)

	tasks, err := s.ListTasks(context.Background(), "U1", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)
	assert.False(t, tasks[0].IsCompleted)

	// The second request carries the tool transcript.
	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleUser, second[0].Role)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Equal(t, llm.RoleTool, second[2].Role)
	assert.Equal(t, "c1", second[2].ToolCallID)
	assert.Contains(t, second[2].Content, `"ok":true`)
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	s := newStore(t)
	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		toolCall("c", tools.ListTasks, `{}`),
	}}

	res := New(client, tools.NewDispatcher(s, nil), WithMaxIterations(3)).Run(context.Background(), RunRequest{
		OwnerID: "U1",
		Message: "show my tasks",
	})

	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, ExhaustedReply, res.Reply)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, client.requests, 3)
	assert.Len(t, res.ToolCalls, 3)
}

func TestRunDefaultIterationLimit(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		toolCall("c", tools.ListTasks, `{}`),
	}}
	res := New(client, tools.NewDispatcher(newStore(t), nil)).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "loop"})

	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.Len(t, client.requests, DefaultMaxIterations)
}

func TestRunInferenceFaultKeepsPartialLog(t *testing.T) {
	s := newStore(t)
	client := &scriptedLLM{
		responses: []*llm.CompletionResponse{toolCall("c1", tools.AddTask, `{"title":"a"}`)},
		errs:      []error{nil, errors.New("429 quota exceeded")},
	}

	res := New(client, tools.NewDispatcher(s, nil)).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "add a"})

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, ErrorReply, res.Reply)
	assert.True(t, res.Fallback())
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Result.OK)
}

func TestRunWithoutClient(t *testing.T) {
	res := New(nil, nil).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "hi"})
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, ErrorReply, res.Reply)
	assert.Empty(t, res.ToolCalls)
}

func TestRunEmptyReplyIsAFault(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.CompletionResponse{text("")}}
	res := New(client, nil).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "hi"})
	assert.Equal(t, ErrorReply, res.Reply)
}

type slowLLM struct{}

func (slowLLM) Complete(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (slowLLM) Name() string     { return "slow" }
func (slowLLM) Models() []string { return nil }

func TestRunInferenceTimeout(t *testing.T) {
	res := New(slowLLM{}, nil, WithLLMTimeout(10*time.Millisecond)).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "hi"})
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, 1, res.Iterations)
}

func TestMalformedArgumentsAreFedBack(t *testing.T) {
	s := newStore(t)
	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		toolCall("c1", tools.AddTask, `{"title": "Buy`),
		text("Sorry, could you repeat the title?"),
	}}

	res := New(client, tools.NewDispatcher(s, nil)).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "add Buy"})

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Result.OK)
	assert.Contains(t, res.ToolCalls[0].Result.Message, "Invalid arguments")

	tasks, err := s.ListTasks(context.Background(), "U1", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunIsDeterministicForFixedResponses(t *testing.T) {
	history := []llm.ChatMessage{
		{Role: llm.RoleUser, Content: "add milk"},
		{Role: llm.RoleAssistant, Content: "Added milk."},
	}
	script := func() *scriptedLLM {
		return &scriptedLLM{responses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{
				{ID: "a", Name: tools.ListTasks, Arguments: `{"status":"pending"}`},
				{ID: "b", Name: tools.CompleteTask, Arguments: `{"task_id":1}`},
			}},
			text("Done."),
		}}
	}

	var runs [][]string
	for i := 0; i < 2; i++ {
		s := newStore(t)
		_, err := s.CreateTask(context.Background(), "U1", "milk")
		require.NoError(t, err)

		exec := &recordingExecutor{inner: tools.NewDispatcher(s, nil)}
		client := script()
		res := New(client, exec).Run(context.Background(), RunRequest{OwnerID: "U1", History: history, Message: "mark milk done"})
		require.Equal(t, OutcomeCompleted, res.Outcome)

		assert.Equal(t, history, client.requests[0].Messages[:2])
		runs = append(runs, exec.names)
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, []string{tools.ListTasks, tools.CompleteTask}, runs[0])
}

func TestCancellationLetsInFlightToolFinish(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		toolCall("c1", tools.AddTask, `{"title":"survives"}`),
		text("never reached"),
	}}

	exec := &cancellingExecutor{inner: tools.NewDispatcher(s, nil), cancel: cancel}
	res := New(client, exec).Run(ctx, RunRequest{OwnerID: "U1", Message: "add survives"})

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Len(t, client.requests, 1, "no iteration may start after cancellation")
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Result.OK)

	tasks, err := s.ListTasks(context.Background(), "U1", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

// cancellingExecutor cancels the request while the tool is running.
type cancellingExecutor struct {
	inner  ToolExecutor
	cancel context.CancelFunc
}

func (c *cancellingExecutor) Execute(ctx context.Context, name string, args map[string]any, callerID string) tools.Result {
	c.cancel()
	return c.inner.Execute(ctx, name, args, callerID)
}

func TestObserverSeesEachCall(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		toolCall("c1", tools.ListTasks, `{}`),
		text("You have no tasks."),
	}}

	var seen []string
	obs := ObserverFunc(func(_ context.Context, call ToolCallLog) { seen = append(seen, call.Tool) })

	New(client, tools.NewDispatcher(newStore(t), nil)).Run(context.Background(), RunRequest{
		OwnerID:  "U1",
		Message:  "list",
		Observer: obs,
	})
	assert.Equal(t, []string{tools.ListTasks}, seen)
}

func TestSystemPromptCarriesSteering(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.CompletionResponse{text("ٹھیک ہے")}}
	New(client, nil).Run(context.Background(), RunRequest{OwnerID: "U1", Message: "میرے کام دکھاؤ"})

	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].System, "Reply in Urdu")
	assert.Contains(t, client.requests[0].System, "confirm=true")
	assert.Len(t, client.requests[0].Tools, len(tools.Catalog()))
}
