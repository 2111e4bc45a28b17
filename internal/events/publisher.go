// Package events delivers agent run summaries to an external broker for
// audit consumers. Publishing is always best effort.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbus-tasks/assistant/internal/model"
	natsclient "github.com/nimbus-tasks/assistant/internal/nats"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

// Supported backends.
const (
	BackendNone     = "none"
	BackendNATS     = "nats"
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Publisher sends run events somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, event *model.RunEvent) error
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend  string
	NATS     natsclient.Config
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*natsclient.StreamManager)(nil)
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (*RabbitMQPublisher)(nil)
)

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, *model.RunEvent) error { return nil }
func (Nop) Ping(context.Context) error                     { return nil }
func (Nop) Name() string                                   { return BackendNone }
func (Nop) Close() error                                   { return nil }

// New connects the configured backend.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return Nop{}, nil
	case BackendNATS:
		client, err := natsclient.Connect(ctx, cfg.NATS, log)
		if err != nil {
			return nil, err
		}
		sm := natsclient.NewStreamManager(client, cfg.NATS.Stream)
		setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := sm.EnsureStream(setupCtx); err != nil {
			client.Close()
			return nil, err
		}
		return sm, nil
	case BackendRedis:
		return NewRedisPublisher(ctx, cfg.Redis)
	case BackendRabbitMQ:
		return NewRabbitMQPublisher(cfg.RabbitMQ)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
