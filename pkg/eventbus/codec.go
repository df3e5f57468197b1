package eventbus

import (
	"fmt"

	"github.com/dukex/orchestra/pkg/events"
	gojson "github.com/goccy/go-json"
)

// Marshal and Unmarshal are the single encoding site of event payloads.
func Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// newEvent allocates the concrete event for eventType.
func newEvent(eventType events.EventType) (any, error) {
	switch eventType {
	case events.ActivationRequestedEvent:
		return &events.ActivationRequest{}, nil
	case events.ActivationRespondedEvent:
		return &events.ActivationResponse{}, nil
	case events.InvocationRequestedEvent:
		return &events.InvocationRequest{}, nil
	case events.InvocationRespondedEvent:
		return &events.InvocationResponse{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// Decode turns a payload back into its concrete event.
func Decode(eventType events.EventType, payload []byte) (any, error) {
	event, err := newEvent(eventType)
	if err != nil {
		return nil, err
	}

	err = Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
