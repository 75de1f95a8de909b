package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Executed(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := &FundingExecuted{
		ExecutionID:    uuid.MustParse("6f1c2b1e-6a0e-4c55-9d4e-1f7b9c2a0a11"),
		NetworkName:    "calibration",
		Action:         "deposit",
		RequestedDelta: "87600",
		ExecutedAt:     at,
	}

	env, err := Wrap(evt)
	require.NoError(t, err)
	assert.Equal(t, "6f1c2b1e-6a0e-4c55-9d4e-1f7b9c2a0a11", env.IdempotencyKey)
	assert.Equal(t, "executed", env.EventType)
	assert.Equal(t, "calibration", env.Network)
	assert.Equal(t, at, env.Timestamp)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "87600", payload["requested_delta"], "amounts stay strings")
}

func TestEnvelope_DecodeRoundTrip(t *testing.T) {
	skipped := &FundingSkipped{
		ExecutionID:     uuid.New(),
		NetworkName:     "mainnet",
		WalletShortfall: "400",
		CeilingExceeded: true,
		SkippedAt:       time.Now().UTC().Truncate(time.Second),
	}
	env, err := Wrap(skipped)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var back EventEnvelope
	require.NoError(t, json.Unmarshal(raw, &back))

	decoded, err := back.Decode()
	require.NoError(t, err)
	assert.Equal(t, skipped, decoded)
}

func TestEnvelope_DecodeUnknownType(t *testing.T) {
	_, err := (&EventEnvelope{EventType: "liquidated"}).Decode()
	assert.Error(t, err)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "unknown", EventTypeUnknown.String())
	assert.Equal(t, "skipped", EventTypeFundingSkipped.String())
}
