package payments_test

import (
	stdmath "math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmath "PayRunway/internal/math"
	"PayRunway/internal/payments"
)

func TestCalculateRequiredTopUp(t *testing.T) {
	p := noFloor()
	piece := big.NewInt(10) // rate 10, lockup 288000 at bytePrice

	tests := []struct {
		name       string
		deposited  int64
		rateUsed   int64
		req        payments.TopUpRequirement
		wantTopUp  string
		wantReason payments.TopUpReason
	}{
		{
			name:       "piece lockup only",
			req:        payments.TopUpRequirement{PieceSizeBytes: piece, PricePerTiBPerEpoch: bytePrice},
			wantTopUp:  "288000",
			wantReason: payments.ReasonPieceUpload,
		},
		{
			name:       "runway on top of piece",
			req:        payments.TopUpRequirement{MinDays: 1, PieceSizeBytes: piece, PricePerTiBPerEpoch: bytePrice},
			wantTopUp:  "316800",
			wantReason: payments.ReasonRunwayPlusUpload,
		},
		{
			name:       "runway only",
			rateUsed:   10,
			req:        payments.TopUpRequirement{MinDays: 2},
			wantTopUp:  "57600",
			wantReason: payments.ReasonRequiredRunway,
		},
		{
			name:       "already funded",
			deposited:  1_000_000,
			rateUsed:   10,
			req:        payments.TopUpRequirement{MinDays: 2},
			wantTopUp:  "0",
			wantReason: payments.ReasonNone,
		},
		{
			name:       "funded for piece and runway",
			deposited:  1_000_000,
			req:        payments.TopUpRequirement{MinDays: 2, PieceSizeBytes: piece, PricePerTiBPerEpoch: bytePrice},
			wantTopUp:  "0",
			wantReason: payments.ReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payments.CalculateRequiredTopUp(p, snapshot(tt.deposited, 0, tt.rateUsed), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopUp, got.RequiredTopUp.String())
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestCalculateRequiredTopUp_Details(t *testing.T) {
	got, err := payments.CalculateRequiredTopUp(noFloor(), snapshot(0, 0, 0), payments.TopUpRequirement{
		MinDays:             1,
		PieceSizeBytes:      big.NewInt(10),
		PricePerTiBPerEpoch: bytePrice,
	})
	require.NoError(t, err)

	assert.Equal(t, "10", got.Details.PieceRate.String())
	assert.Equal(t, "288000", got.Details.PieceLockup.String())
	assert.Equal(t, "288000", got.Details.UploadTopUp.String())
	assert.Equal(t, "316800", got.Details.RunwayTopUp.String())
}

func TestCalculateRequiredTopUp_FloorAppliesToPiece(t *testing.T) {
	p := payments.DefaultParams()
	floor := payments.FloorAllowances(p)

	got, err := payments.CalculateRequiredTopUp(p, snapshot(0, 0, 0), payments.TopUpRequirement{
		PieceSizeBytes:      big.NewInt(1024),
		PricePerTiBPerEpoch: calibrationPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.RequiredTopUp.Cmp(floor.LockupAllowance))
	assert.Equal(t, payments.ReasonPieceUpload, got.Reason)
}

func TestCalculateRequiredTopUp_InvalidInput(t *testing.T) {
	p := payments.DefaultParams()

	_, err := payments.CalculateRequiredTopUp(p, snapshot(0, 0, 0), payments.TopUpRequirement{
		PieceSizeBytes: big.NewInt(10),
	})
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument, "piece without price")

	_, err = payments.CalculateRequiredTopUp(p, snapshot(0, 0, 0), payments.TopUpRequirement{MinDays: -1})
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)

	for _, d := range []float64{stdmath.NaN(), stdmath.Inf(1)} {
		_, err = payments.CalculateRequiredTopUp(p, snapshot(0, 0, 0), payments.TopUpRequirement{MinDays: d})
		assert.ErrorIs(t, err, pmath.ErrInvalidArgument, "days %v", d)
	}

	_, err = payments.CalculateRequiredTopUp(p, nil, payments.TopUpRequirement{})
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)
}
