package agent

import (
	"time"

	"github.com/nimbus-tasks/assistant/pkg/logger"
)

// DefaultMaxIterations bounds the number of inference calls in one run.
const DefaultMaxIterations = 5

// DefaultLLMTimeout bounds a single inference call.
const DefaultLLMTimeout = 30 * time.Second

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations overrides the iteration bound. Values below one are
// ignored.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithLLMTimeout sets the deadline applied to each inference call. Zero
// disables the per-call deadline.
func WithLLMTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d >= 0 {
			a.llmTimeout = d
		}
	}
}

// WithModel selects the provider model. Empty keeps the provider default.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// WithLogger sets the agent's logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l.Named("agent")
		}
	}
}

// WithObserver registers a callback that sees each tool call as soon as
// its result is known.
func WithObserver(o Observer) Option {
	return func(a *Agent) { a.observer = o }
}
