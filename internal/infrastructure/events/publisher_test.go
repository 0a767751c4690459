package events_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/events"
)

func TestNewPublisher(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.EventsConfig)
		wantErr bool
	}{
		{name: "default is noop", mutate: func(c *config.EventsConfig) {}},
		{name: "explicit none", mutate: func(c *config.EventsConfig) { c.Driver = "none" }},
		{name: "kafka without brokers", mutate: func(c *config.EventsConfig) { c.Driver = "kafka" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *config.EventsConfig) { c.Driver = "carrier-pigeon" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Events
			tt.mutate(&cfg)

			pub, cleanup, err := events.NewPublisher(cfg, zaptest.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer cleanup()

			event := download.NewRunCompleted(&download.RunReport{RunID: uuid.New()})
			assert.NoError(t, pub.PublishEvent(context.Background(), event))
		})
	}
}
