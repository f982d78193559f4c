package outbox

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Message is one decoded outbox row on its way to a broker.
type Message struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       []byte
}

// Attributes carries the routing fields every sink sends alongside the payload.
func (m Message) Attributes() map[string]string {
	return map[string]string{
		"event_id":       m.EventID,
		"event_type":     m.EventType,
		"aggregate_type": m.AggregateType,
		"aggregate_id":   m.AggregateID,
		"occurred_at":    m.OccurredAt.Format(time.RFC3339Nano),
	}
}

// Sink delivers messages to a broker. Deliver must not return until the
// broker has acknowledged the message.
type Sink interface {
	Name() string
	Ping(context.Context) error
	Deliver(context.Context, Message) error
}

// StreamWriter appends entries to a Redis stream.
type StreamWriter interface {
	Ping(context.Context) error
	XAdd(ctx context.Context, stream string, maxLen int64, values map[string]any) (string, error)
}

// StreamSink appends each message to a capped Redis stream.
type StreamSink struct {
	writer StreamWriter
	stream string
	maxLen int64
}

func NewStreamSink(writer StreamWriter, stream string, maxLen int64) (*StreamSink, error) {
	if writer == nil {
		return nil, errors.New("stream writer is required")
	}
	if strings.TrimSpace(stream) == "" {
		return nil, errors.New("stream name is required")
	}
	return &StreamSink{writer: writer, stream: stream, maxLen: maxLen}, nil
}

func (s *StreamSink) Name() string { return "redis:" + s.stream }

func (s *StreamSink) Ping(ctx context.Context) error {
	return s.writer.Ping(ctx)
}

func (s *StreamSink) Deliver(ctx context.Context, msg Message) error {
	values := make(map[string]any, 6)
	for k, v := range msg.Attributes() {
		values[k] = v
	}
	values["payload"] = string(msg.Payload)
	_, err := s.writer.XAdd(ctx, s.stream, s.maxLen, values)
	return err
}
