package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	"github.com/weathertaxi/tlcfetch/internal/domain/events"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/events/kafka"
)

func runCompleted() *download.RunCompleted {
	return download.NewRunCompleted(&download.RunReport{
		RunID:   uuid.New(),
		Mode:    download.ModeVerify,
		Summary: download.Summary{Resolved: 1, Verified: 1},
	})
}

func TestPublisher_PublishEvent(t *testing.T) {
	event := runCompleted()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg events.Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.EventType != download.EventRunCompleted {
			return errors.New("unexpected event type " + msg.EventType)
		}
		if msg.AggregateID != event.AggregateID() {
			return errors.New("unexpected aggregate id")
		}
		return nil
	})

	publisher := kafka.NewPublisherWithProducer(producer, "tlcfetch.events", zaptest.NewLogger(t))
	defer publisher.Close()

	require.NoError(t, publisher.PublishEvent(context.Background(), event))
}

func TestPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := kafka.NewPublisherWithProducer(producer, "tlcfetch.events", zaptest.NewLogger(t))
	defer publisher.Close()

	err := publisher.PublishEvent(context.Background(), runCompleted())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher := kafka.NewPublisherWithProducer(producer, "tlcfetch.events", zaptest.NewLogger(t))
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishEvent(ctx, runCompleted())
	assert.ErrorIs(t, err, context.Canceled)
}
