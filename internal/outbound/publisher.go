package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PayRunway/internal/event"
)

const (
	// StreamName holds every funding event.
	StreamName = "PAYRUNWAY_FUNDING"

	// SubjectPrefix is followed by {event_type}.{network}.
	SubjectPrefix = "payrunway.funding"
)

// StreamPublisher is the part of jetstream.JetStream the publisher uses.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher publishes funding events to JetStream for downstream consumers.
// Subjects follow payrunway.funding.{event_type}.{network}; the event's
// idempotency key is the message ID so redelivered publishes are deduplicated
// by the stream.
type Publisher struct {
	js     StreamPublisher
	logger zerolog.Logger
}

func NewPublisher(js StreamPublisher, logger zerolog.Logger) *Publisher {
	return &Publisher{js: js, logger: logger}
}

// Publish wraps evt in an envelope and publishes it.
func (p *Publisher) Publish(ctx context.Context, evt event.Event) error {
	env, err := event.Wrap(evt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := Subject(evt.EventType(), evt.Network())
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.IdempotencyKey))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug().
		Str("subject", subject).
		Str("idempotency_key", env.IdempotencyKey).
		Uint64("stream_seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("event published")
	return nil
}

// Subject builds the publish subject for an event type on a network.
func Subject(et event.EventType, network string) string {
	if network == "" {
		network = "unknown"
	}
	// NATS subject tokens cannot contain dots or wildcards.
	network = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(network)
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, et, network)
}

// EnsureStream creates the funding events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, maxAge time.Duration) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     maxAge,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("payrunwayd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect NATS %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}
