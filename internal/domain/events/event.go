package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event interface {
	ID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	EventType() string
	Version() int
	CreatedAt() time.Time
	Metadata() map[string]interface{}
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	id            uuid.UUID
	aggregateID   uuid.UUID
	aggregateType string
	eventType     string
	version       int
	createdAt     time.Time
	metadata      map[string]interface{}
}

// NewBaseEvent creates a new base event
func NewBaseEvent(aggregateID uuid.UUID, aggregateType, eventType string, version int) BaseEvent {
	return BaseEvent{
		id:            uuid.New(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		eventType:     eventType,
		version:       version,
		createdAt:     time.Now(),
		metadata:      make(map[string]interface{}),
	}
}

func (e BaseEvent) ID() uuid.UUID                    { return e.id }
func (e BaseEvent) AggregateID() uuid.UUID           { return e.aggregateID }
func (e BaseEvent) AggregateType() string            { return e.aggregateType }
func (e BaseEvent) EventType() string                { return e.eventType }
func (e BaseEvent) Version() int                     { return e.version }
func (e BaseEvent) CreatedAt() time.Time             { return e.createdAt }
func (e BaseEvent) Metadata() map[string]interface{} { return e.metadata }

// WithMetadata sets a metadata key and returns the event for chaining
func (e BaseEvent) WithMetadata(key string, value interface{}) BaseEvent {
	e.metadata[key] = value
	return e
}

// EventPublisher defines the interface for event publishing
type EventPublisher interface {
	PublishEvent(ctx context.Context, event Event) error
}

// Message is the wire envelope of a published event
type Message struct {
	ID            uuid.UUID              `json:"id"`
	AggregateID   uuid.UUID              `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	EventType     string                 `json:"event_type"`
	Version       int                    `json:"version"`
	Data          interface{}            `json:"data"`
	Metadata      map[string]interface{} `json:"metadata"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewMessage wraps an event in its wire envelope
func NewMessage(event Event) Message {
	return Message{
		ID:            event.ID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		Version:       event.Version(),
		Data:          event,
		Metadata:      event.Metadata(),
		CreatedAt:     event.CreatedAt(),
	}
}
