package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimbus-tasks/assistant/internal/model"
)

// RabbitMQConfig describes the queue run events are published to.
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// RabbitMQPublisher publishes run events to a durable queue.
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	// Channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// NewRabbitMQPublisher dials the broker and declares the queue.
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq URL is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "nimbus.agent-runs"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare rabbitmq queue: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitMQPublisher) Name() string { return BackendRabbitMQ }

// Publish sends event as a persistent JSON message.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event *model.RunEvent) error {
	msg, err := publishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("rabbitmq publisher is closed")
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event to rabbitmq: %w", err)
	}
	return nil
}

func publishing(event *model.RunEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.CreatedAt,
		Body:         body,
	}, nil
}

func (p *RabbitMQPublisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
