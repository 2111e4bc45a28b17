package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/nimbus-tasks/assistant/internal/model"
)

const (
	// DefaultStreamName is the JetStream stream holding run events.
	DefaultStreamName = "AGENT_RUNS"

	// SubjectPrefix is the prefix for all run event subjects.
	SubjectPrefix = "runs"
)

// StreamManager publishes run events to a JetStream stream.
type StreamManager struct {
	client *Client
	stream string
}

// NewStreamManager creates a new stream manager. An empty stream name uses
// DefaultStreamName.
func NewStreamManager(client *Client, stream string) *StreamManager {
	if stream == "" {
		stream = DefaultStreamName
	}
	return &StreamManager{client: client, stream: stream}
}

// EnsureStream creates the run events stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, m.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        m.stream,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Agent run audit events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for a run event. Subject tokens cannot
// contain dots, spaces or wildcards, so those are replaced.
func EventSubject(ownerID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(ownerID), subjectToken(string(eventType)))
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// Name identifies the backend in metrics.
func (m *StreamManager) Name() string { return "nats" }

// Publish publishes a run event. The event id doubles as the JetStream
// message id so a retried publish is deduplicated.
func (m *StreamManager) Publish(ctx context.Context, event *model.RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = m.client.JetStream().Publish(ctx, EventSubject(event.OwnerID, event.Type), data,
		jetstream.WithMsgID(event.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Ping reports whether the connection is up and the stream is reachable.
func (m *StreamManager) Ping(ctx context.Context) error {
	if !m.client.IsConnected() {
		return errors.New("nats: not connected")
	}
	if _, err := m.client.JetStream().Stream(ctx, m.stream); err != nil {
		return fmt.Errorf("nats: stream %s unavailable: %w", m.stream, err)
	}
	return nil
}

// Close closes the underlying connection.
func (m *StreamManager) Close() error {
	m.client.Close()
	return nil
}
