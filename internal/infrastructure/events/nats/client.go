package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
)

// StreamName is the JetStream stream holding pipeline events
const StreamName = "TLCFETCH_EVENTS"

// Client wraps NATS and JetStream connections
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *zap.Logger
}

// NewClient connects to NATS and makes sure the event stream exists
func NewClient(cfg config.EventsConfig, logger *zap.Logger) (*Client, func(), error) {
	logger = logger.Named("nats")

	opts := []nats.Option{
		nats.Name("tlcfetch"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS async error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		nc:     nc,
		js:     js,
		prefix: strings.TrimSuffix(cfg.SubjectPrefix, "."),
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.initializeStream(ctx); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	cleanup := func() {
		if err := nc.Drain(); err != nil {
			logger.Error("failed to drain NATS connection", zap.Error(err))
		}
	}

	logger.Info("NATS client initialized",
		zap.String("url", cfg.NATSURL),
		zap.String("stream", StreamName),
	)

	return client, cleanup, nil
}

func (c *Client) initializeStream(ctx context.Context) error {
	stream := jetstream.StreamConfig{
		Name:         StreamName,
		Description:  "Dataset acquisition run and task events",
		Subjects:     []string{c.prefix + ".>"},
		Retention:    jetstream.LimitsPolicy,
		MaxAge:       30 * 24 * time.Hour,
		MaxConsumers: -1,
		Replicas:     1,
		Storage:      jetstream.FileStorage,
		Discard:      jetstream.DiscardOld,
		Duplicates:   2 * time.Minute,
		MaxMsgs:      -1,
		MaxBytes:     -1,
	}

	if _, err := c.js.CreateOrUpdateStream(ctx, stream); err != nil {
		return fmt.Errorf("failed to create %s stream: %w", StreamName, err)
	}
	return nil
}

// Subject returns the subject an event type is published on
func (c *Client) Subject(eventType string) string {
	return c.prefix + "." + eventType
}

// JetStream returns the JetStream context
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// IsConnected checks if the client is connected
func (c *Client) IsConnected() bool {
	return c.nc.IsConnected()
}
