package payments_test

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmath "PayRunway/internal/math"
	"PayRunway/internal/payments"
)

// 2.5 tokens per TiB per 30 days, per 30s epoch.
var calibrationPrice = big.NewInt(28_935_185_185_185)

// noFloor keeps default epochs and lockup but removes the per-piece minimum.
func noFloor() payments.Params {
	p := payments.DefaultParams()
	p.FloorPrice = new(big.Int)
	return p
}

// ============================================================================
// Params
// ============================================================================

func TestDefaultParams(t *testing.T) {
	p := payments.DefaultParams()
	require.NoError(t, p.Validate())

	assert.Equal(t, int64(2880), p.EpochsPerDay())
	assert.Equal(t, int64(120), p.EpochsPerHour())
	assert.Equal(t, int64(86_400), p.EpochsPerMonth())
	assert.Equal(t, int64(28_800), p.LockupEpochs())
	assert.Equal(t, int64(120), p.SafetyEpochs())
	assert.Equal(t, "60000000000000000", p.FloorPrice.String())
}

func TestParams_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*payments.Params)
	}{
		{"epoch does not divide a day", func(p *payments.Params) { p.EpochDuration = 7_000_000_000 }},
		{"zero lockup", func(p *payments.Params) { p.LockupDays = 0 }},
		{"nil floor", func(p *payments.Params) { p.FloorPrice = nil }},
		{"zero floor period", func(p *payments.Params) { p.FloorPeriodDays = 0 }},
		{"negative epsilon", func(p *payments.Params) { p.BothEpsilon = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := payments.DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), pmath.ErrInvalidArgument)
		})
	}
}

// ============================================================================
// Allowances
// ============================================================================

func TestCalculateStorageAllowances_FractionalCapacity(t *testing.T) {
	p := payments.DefaultParams()
	price := big.NewInt(1_000_000_000_000)

	got, err := payments.CalculateStorageAllowances(p, 1.5, price)
	require.NoError(t, err)

	assert.Equal(t, "1500000000000", got.RateAllowance.String())
	assert.Equal(t, 0, got.LockupAllowance.Cmp(new(big.Int).Mul(got.RateAllowance, big.NewInt(28_800))))
	assert.Equal(t, 1.5, got.CapacityTiBPerMonth)
}

func TestCalculateStorageAllowances_RoundsRateUp(t *testing.T) {
	got, err := payments.CalculateStorageAllowances(payments.DefaultParams(), 0.5, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "2", got.RateAllowance.String())
}

func TestCalculateStorageAllowances_InvalidInput(t *testing.T) {
	p := payments.DefaultParams()

	_, err := payments.CalculateStorageAllowances(p, -1, calibrationPrice)
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)

	_, err = payments.CalculateStorageAllowances(p, math.NaN(), calibrationPrice)
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)

	_, err = payments.CalculateStorageAllowances(p, 1, big.NewInt(-1))
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)
}

func TestCalculateStorageFromTokens(t *testing.T) {
	p := payments.DefaultParams()
	price := big.NewInt(1_000_000_000_000)
	amount := new(big.Int).Mul(price, big.NewInt(28_800*3))

	got, err := payments.CalculateStorageFromTokens(p, amount, price)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-9)
}

func TestPieceRate_RoundsUp(t *testing.T) {
	rate, err := payments.PieceRate(big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "1", rate.String())

	rate, err = payments.PieceRate(big.NewInt(0), calibrationPrice)
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Sign())
}

// TestCalculateActualCapacity_InverseLaw checks that converting a capacity to
// a rate allowance and back lands on the original capacity.
func TestCalculateActualCapacity_InverseLaw(t *testing.T) {
	p := payments.DefaultParams()
	for _, capacity := range []float64{0.25, 1, 2.75, 10, 1024} {
		for _, price := range []*big.Int{calibrationPrice, big.NewInt(1_000_000_000), big.NewInt(7)} {
			pair, err := payments.CalculateStorageAllowances(p, capacity, price)
			require.NoError(t, err)

			got, err := payments.CalculateActualCapacity(pair.RateAllowance, price)
			require.NoError(t, err)
			// ceil can add at most one base unit of rate
			tolerance := 1e-6*math.Max(capacity, 1) + 1/float64(price.Int64())
			assert.InDelta(t, capacity, got, tolerance, "capacity %v price %s", capacity, price)
		}
	}
}

func TestCalculateActualCapacity_InverseLawProperty(t *testing.T) {
	p := payments.DefaultParams()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("actualCapacity(allowances(c, p).rate, p) ~= c", prop.ForAll(
		func(capacity float64, price int64) bool {
			bigPrice := big.NewInt(price)
			pair, err := payments.CalculateStorageAllowances(p, capacity, bigPrice)
			if err != nil {
				return false
			}
			got, err := payments.CalculateActualCapacity(pair.RateAllowance, bigPrice)
			if err != nil {
				return false
			}
			return math.Abs(got-capacity) <= 1e-6*math.Max(capacity, 1)
		},
		gen.Float64Range(0.001, 10_000),
		gen.Int64Range(1_000_000_000, 1_000_000_000_000_000),
	))

	properties.TestingRun(t)
}

// ============================================================================
// Floor pricing
// ============================================================================

func TestFloorAllowances_Defaults(t *testing.T) {
	p := payments.DefaultParams()
	floor := payments.FloorAllowances(p)

	// 0.06e18 / (30 × 2880), floored
	assert.Equal(t, "694444444444", floor.RateAllowance.String())
	assert.Equal(t, "19999999999987200", floor.LockupAllowance.String())
}

func TestApplyFloorPricing_ComponentwiseMax(t *testing.T) {
	p := payments.DefaultParams()
	floor := payments.FloorAllowances(p)

	base := payments.AllowancePair{
		RateAllowance:       new(big.Int).Mul(floor.RateAllowance, big.NewInt(2)),
		LockupAllowance:     big.NewInt(1),
		CapacityTiBPerMonth: 0.5,
	}
	got := payments.ApplyFloorPricing(p, base)

	assert.Equal(t, 0, got.RateAllowance.Cmp(base.RateAllowance), "rate above floor kept")
	assert.Equal(t, 0, got.LockupAllowance.Cmp(floor.LockupAllowance), "lockup raised to floor")
	assert.Equal(t, 0.5, got.CapacityTiBPerMonth)
}

func TestApplyFloorPricing_Monotonicity(t *testing.T) {
	p := payments.DefaultParams()
	floorRate := payments.FloorAllowances(p).RateAllowance

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("rate >= floor and unchanged when already above", prop.ForAll(
		func(rate, lockup int64) bool {
			base := payments.AllowancePair{
				RateAllowance:   big.NewInt(rate),
				LockupAllowance: big.NewInt(lockup),
			}
			got := payments.ApplyFloorPricing(p, base)
			if got.RateAllowance.Cmp(floorRate) < 0 {
				return false
			}
			if base.RateAllowance.Cmp(floorRate) >= 0 && got.RateAllowance.Cmp(base.RateAllowance) != 0 {
				return false
			}
			return got.LockupAllowance.Cmp(base.LockupAllowance) >= 0
		},
		gen.Int64Range(0, 10_000_000_000_000),
		gen.Int64Range(0, 1_000_000_000_000_000_000),
	))

	properties.TestingRun(t)
}

func TestAllowancesForPiece_SmallPiecesChargeFloor(t *testing.T) {
	p := payments.DefaultParams()
	floor := payments.FloorAllowances(p)

	oneByte, err := payments.AllowancesForPiece(p, big.NewInt(1), calibrationPrice)
	require.NoError(t, err)
	oneKiB, err := payments.AllowancesForPiece(p, big.NewInt(1024), calibrationPrice)
	require.NoError(t, err)

	for _, got := range []payments.AllowancePair{oneByte, oneKiB} {
		assert.Equal(t, 0, got.RateAllowance.Cmp(floor.RateAllowance))
		assert.Equal(t, 0, got.LockupAllowance.Cmp(floor.LockupAllowance))
	}
}

func TestAllowancesForPiece_LargePieceAboveFloor(t *testing.T) {
	p := payments.DefaultParams()
	size := new(big.Int).Mul(big.NewInt(100), pmath.BigTiB)

	got, err := payments.AllowancesForPiece(p, size, calibrationPrice)
	require.NoError(t, err)

	want := new(big.Int).Mul(calibrationPrice, big.NewInt(100))
	assert.Equal(t, 0, got.RateAllowance.Cmp(want))
	assert.InDelta(t, 100.0, got.CapacityTiBPerMonth, 1e-9)
}

func TestAllowancesForPiece_NegativeSize(t *testing.T) {
	_, err := payments.AllowancesForPiece(payments.DefaultParams(), big.NewInt(-1), calibrationPrice)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pmath.ErrInvalidArgument))
}
