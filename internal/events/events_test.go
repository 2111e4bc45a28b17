package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-tasks/assistant/internal/model"
)

func sampleEvent() *model.RunEvent {
	return &model.RunEvent{
		ID:             "evt-1",
		Type:           model.EventTypeRunCompleted,
		ConversationID: "conv-1",
		OwnerID:        "u1",
		Iterations:     2,
		Language:       "en",
		Intent:         "add",
		ToolCalls:      []model.ToolCallEntry{{Tool: "add_task", OK: true}},
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendNone, p.Name())
	assert.NoError(t, p.Publish(ctx, sampleEvent()))
	assert.NoError(t, p.Ping(ctx))

	_, err = New(ctx, Config{Backend: "kafka"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: BackendRedis}, nil)
	assert.Error(t, err, "redis needs an address")

	_, err = New(ctx, Config{Backend: BackendRabbitMQ}, nil)
	assert.Error(t, err, "rabbitmq needs a URL")
}

func TestRedisXAddArgs(t *testing.T) {
	p := newRedisPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), RedisConfig{MaxLen: 1000})
	defer p.Close()

	args, err := p.xaddArgs(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "nimbus:agent-runs", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]any)
	assert.Equal(t, "u1", values["owner_id"])
	var decoded model.RunEvent
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, *sampleEvent(), decoded)
}

func TestRabbitMQPublishing(t *testing.T) {
	msg, err := publishing(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)
	assert.Equal(t, "run_completed", msg.Type)
}
