package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbus-tasks/assistant/internal/model"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "runs.user-1.run_completed", EventSubject("user-1", model.EventTypeRunCompleted))
	assert.Equal(t, "runs.a_b_c_.run_fallback", EventSubject("a.b c*", model.EventTypeRunFallback))
	assert.Equal(t, "runs._.run_completed", EventSubject("", model.EventTypeRunCompleted))
}

func TestNewStreamManagerDefaultsStream(t *testing.T) {
	m := NewStreamManager(&Client{}, "")
	assert.Equal(t, DefaultStreamName, m.stream)
	assert.Equal(t, "nats", m.Name())
}
