package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
	domainevents "github.com/weathertaxi/tlcfetch/internal/domain/events"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/events/kafka"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/events/nats"
)

// NoopPublisher drops every event
type NoopPublisher struct{}

// PublishEvent does nothing
func (NoopPublisher) PublishEvent(context.Context, domainevents.Event) error { return nil }

// NewPublisher builds the publisher selected by events.driver
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (domainevents.EventPublisher, func(), error) {
	switch cfg.Driver {
	case "", "none":
		return NoopPublisher{}, func() {}, nil
	case "nats":
		client, cleanup, err := nats.NewClient(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return nats.NewPublisher(client, logger), cleanup, nil
	case "kafka":
		pub, err := kafka.NewPublisher(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Failed to close kafka producer", zap.Error(err))
			}
		}
		return pub, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
