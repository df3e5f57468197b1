// Package eventbus provides the transport the orchestrator and the runtime engine talk through.
package eventbus

import (
	"context"

	"github.com/dukex/orchestra/pkg/events"
)

// Event is anything the bus can route by type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. key selects the partition, so events published with the
// same execution id keep their order on Kafka.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes incoming events to one handler per type. Handlers must be
// registered before Subscribe starts consuming.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event. A returned error nacks the message for redelivery.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// identified is implemented by every protocol event through events.BaseEvent.
type identified interface {
	EventID() string
	Processed() bool
}
