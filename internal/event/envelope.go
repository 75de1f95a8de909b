package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeFundingExecuted
	EventTypeFundingSkipped
)

// EventEnvelope wraps every outbound event. The payload is the JSON form of
// the event; amounts inside it are base-10 strings.
type EventEnvelope struct {
	// Stable idempotency key, the execution ID
	IdempotencyKey string `json:"idempotency_key"`

	EventType string `json:"event_type"`

	Network string `json:"network"`

	Timestamp time.Time `json:"timestamp"`

	Payload json.RawMessage `json:"payload"`
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Network the account lives on (mainnet, calibration)
	Network() string

	// OccurredAt is when the engine produced the event
	OccurredAt() time.Time
}

// Wrap builds the envelope for evt.
func Wrap(evt Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", evt.EventType(), err)
	}
	return &EventEnvelope{
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType().String(),
		Network:        evt.Network(),
		Timestamp:      evt.OccurredAt(),
		Payload:        payload,
	}, nil
}

func (et EventType) String() string {
	switch et {
	case EventTypeFundingExecuted:
		return "executed"
	case EventTypeFundingSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Decode turns an envelope back into its typed event.
func (env *EventEnvelope) Decode() (Event, error) {
	var evt Event
	switch env.EventType {
	case EventTypeFundingExecuted.String():
		evt = &FundingExecuted{}
	case EventTypeFundingSkipped.String():
		evt = &FundingSkipped{}
	default:
		return nil, fmt.Errorf("decode envelope %s: unknown event type %q", env.IdempotencyKey, env.EventType)
	}
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return evt, nil
}
