package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nimbus-tasks/assistant/internal/model"
)

// RedisConfig describes the Redis stream run events are appended to.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream length approximately. Zero keeps everything.
	MaxLen int64
}

// RedisPublisher appends run events to a Redis stream with XADD.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisPublisher(client, cfg), nil
}

func newRedisPublisher(client *redis.Client, cfg RedisConfig) *RedisPublisher {
	stream := cfg.Stream
	if stream == "" {
		stream = "nimbus:agent-runs"
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: cfg.MaxLen}
}

func (p *RedisPublisher) Name() string { return BackendRedis }

// Publish appends event to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, event *model.RunEvent) error {
	args, err := p.xaddArgs(event)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append event to redis: %w", err)
	}
	return nil
}

func (p *RedisPublisher) xaddArgs(event *model.RunEvent) (*redis.XAddArgs, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":              event.ID,
			"type":            string(event.Type),
			"owner_id":        event.OwnerID,
			"conversation_id": event.ConversationID,
			"payload":         string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return args, nil
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
