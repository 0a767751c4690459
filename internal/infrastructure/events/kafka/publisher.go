package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/events"
)

// Publisher implements events.EventPublisher on a single Kafka topic
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewPublisher creates a new Kafka event publisher
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("events.kafka_brokers is required")
	}

	config := sarama.NewConfig()
	config.ClientID = "tlcfetch"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}

	return NewPublisherWithProducer(producer, cfg.KafkaTopic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.Named("kafka"),
	}
}

// PublishEvent publishes an event keyed by its aggregate so a run's or
// task's events stay ordered within a partition.
func (p *Publisher) PublishEvent(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(events.NewMessage(event))
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.AggregateID().String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType())},
			{Key: []byte("aggregate_type"), Value: []byte(event.AggregateType())},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("event_type", event.EventType()),
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	return p.producer.Close()
}
