package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PayRunway/internal/event"
	"PayRunway/internal/outbound"
)

// Recorder is where projected executions land.
type Recorder interface {
	RecordExecution(ctx context.Context, evt *event.FundingExecuted) error
}

// HistoryProjector rebuilds the execution history from the funding stream.
// Executions recorded directly by the executor arrive here as duplicates and
// are absorbed by the recorder's idempotent insert.
type HistoryProjector struct {
	recorder Recorder
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewHistoryProjector(recorder Recorder, logger zerolog.Logger) *HistoryProjector {
	return &HistoryProjector{recorder: recorder, logger: logger}
}

// Start creates a durable consumer on executed events and begins consuming.
// Messages are acked after the record is written and nak'ed on failure so
// JetStream redelivers them.
func (hp *HistoryProjector) Start(ctx context.Context, js jetstream.JetStream, durable string) error {
	consumer, err := js.CreateOrUpdateConsumer(ctx, outbound.StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: fmt.Sprintf("%s.%s.>", outbound.SubjectPrefix, event.EventTypeFundingExecuted),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := hp.Handle(ctx, msg.Data()); err != nil {
			hp.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("history projection failed")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", durable, err)
	}
	hp.consumer = cc
	hp.logger.Info().Str("consumer", durable).Msg("history projector started")
	return nil
}

// Handle decodes one envelope and records it. Envelopes of other event types
// are ignored.
func (hp *HistoryProjector) Handle(ctx context.Context, data []byte) error {
	var env event.EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	evt, err := env.Decode()
	if err != nil {
		return err
	}
	executed, ok := evt.(*event.FundingExecuted)
	if !ok {
		return nil
	}
	return hp.recorder.RecordExecution(ctx, executed)
}

// Stop stops consuming.
func (hp *HistoryProjector) Stop() {
	if hp.consumer != nil {
		hp.consumer.Stop()
		hp.logger.Info().Msg("history projector stopped")
	}
}
