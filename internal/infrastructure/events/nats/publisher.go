package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	domainevents "github.com/weathertaxi/tlcfetch/internal/domain/events"
)

// Publisher implements the EventPublisher interface using NATS JetStream
type Publisher struct {
	client *Client
	logger *zap.Logger
}

// NewPublisher creates a new NATS event publisher
func NewPublisher(client *Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.Named("nats"),
	}
}

// PublishEvent publishes an event on <prefix>.<event type>
func (p *Publisher) PublishEvent(ctx context.Context, event domainevents.Event) error {
	subject := p.client.Subject(event.EventType())

	data, err := json.Marshal(domainevents.NewMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.client.JetStream().Publish(pubCtx, subject, data,
		jetstream.WithMsgID(event.ID().String()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", event.ID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
	)

	return nil
}
