package pubsub

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type pinger interface {
	Ping(context.Context) error
}

type topicPublisher struct {
	pub *pubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.pub.Publish(ctx, msg)
}

// Sink publishes outbox messages to the domain topic and waits for the
// server ack before reporting success.
type Sink struct {
	health pinger
	pub    publisher
	topic  string
}

var _ outbox.Sink = (*Sink)(nil)

func NewSink(client *Client) (*Sink, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	pub := client.DomainPublisher()
	if pub == nil {
		return nil, errTopicRequired
	}
	return newSink(client, topicPublisher{pub: pub}, client.topicResourceName(client.cfg.DomainTopic)), nil
}

func newSink(health pinger, pub publisher, topic string) *Sink {
	return &Sink{health: health, pub: pub, topic: topic}
}

func (s *Sink) Name() string { return "pubsub:" + s.topic }

func (s *Sink) Ping(ctx context.Context) error {
	return s.health.Ping(ctx)
}

func (s *Sink) Deliver(ctx context.Context, msg outbox.Message) error {
	result := s.pub.Publish(ctx, &pubsub.Message{
		Data:       msg.Payload,
		Attributes: msg.Attributes(),
	})
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", s.topic)
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.EventID, s.topic, err)
	}
	return nil
}
