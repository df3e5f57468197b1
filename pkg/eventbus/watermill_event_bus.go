package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/orchestra/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	ledger     Ledger
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

type Option func(*WatermillEventBus)

// WithLedger skips events whose id was already handled.
func WithLedger(ledger Ledger) Option {
	return func(eb *WatermillEventBus) {
		eb.ledger = ledger
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(eb *WatermillEventBus) {
		eb.logger = logger.With("module", "event-bus")
	}
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, opts ...Option) *WatermillEventBus {
	eb := &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        slog.Default().With("module", "event-bus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	if e, ok := event.(identified); ok {
		msg.Metadata.Set(events.EventIDMetadataKey, e.EventID())
	}

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.process(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) process(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	event, err := Decode(eventType, msg.Payload)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Dropping undecodable message", "message_id", msg.UUID, "error", err)
		msg.Ack()

		return
	}

	eventID := ""
	if e, ok := event.(identified); ok {
		if e.Processed() {
			msg.Ack()

			return
		}

		eventID = e.EventID()
	}

	if eb.ledger != nil && eventID != "" {
		first, err := eb.ledger.Claim(ctx, eventID)
		if err != nil {
			eb.logger.ErrorContext(ctx, "Failed to claim event", "event_id", eventID, "error", err)
			msg.Nack()

			return
		}

		if !first {
			eb.logger.DebugContext(ctx, "Skipping duplicated event", "event_id", eventID, "event_type", eventType)
			msg.Ack()

			return
		}
	}

	err = handler(ctx, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Event handler failed", "event_id", eventID, "event_type", eventType, "error", err)

		if eb.ledger != nil && eventID != "" {
			releaseErr := eb.ledger.Release(ctx, eventID)
			if releaseErr != nil {
				eb.logger.ErrorContext(ctx, "Failed to release event", "event_id", eventID, "error", releaseErr)
			}
		}

		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
