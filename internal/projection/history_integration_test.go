package projection_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PayRunway/internal/event"
	"PayRunway/internal/observability"
	"PayRunway/internal/outbound"
	"PayRunway/internal/projection"
	"PayRunway/internal/testutil"
)

func TestHistoryProjector_ConsumesStream(t *testing.T) {
	testutil.RequireIntegration(t)

	var logs bytes.Buffer
	logger := observability.NewTestLogger(&logs, "projection")

	nc, js, err := outbound.Connect(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test NATS not available: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, outbound.EnsureStream(ctx, js, time.Hour))

	// a fresh network keeps this run's subjects apart from earlier runs
	network := "it-" + uuid.NewString()[:8]
	durable := "history-" + network

	rec := &testutil.RecordingRecorder{}
	hp := projection.NewHistoryProjector(rec, logger)
	require.NoError(t, hp.Start(ctx, js, durable))
	defer js.DeleteConsumer(context.Background(), outbound.StreamName, durable)

	pub := outbound.NewPublisher(js, logger)
	executed := &event.FundingExecuted{
		ExecutionID:    uuid.New(),
		NetworkName:    network,
		Action:         "deposit",
		RequestedDelta: "87600",
		ExecutedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, pub.Publish(ctx, &event.FundingSkipped{ExecutionID: uuid.New(), NetworkName: network}))
	require.NoError(t, pub.Publish(ctx, executed))
	// same message id, dropped by the stream's duplicate window
	require.NoError(t, pub.Publish(ctx, executed))

	assert.Eventually(t, func() bool {
		return len(rec.Recorded()) >= 1
	}, 10*time.Second, 50*time.Millisecond)

	// give a duplicate delivery time to show up before counting
	time.Sleep(500 * time.Millisecond)
	hp.Stop()

	records := rec.Recorded()
	require.Len(t, records, 1)
	assert.Equal(t, executed.ExecutionID, records[0].ExecutionID)
	assert.Contains(t, logs.String(), `"component":"projection"`)
	assert.Contains(t, logs.String(), "history projector started")
}
