package payments

import (
	"fmt"
	"math/big"
	"time"

	pmath "PayRunway/internal/math"
)

const (
	// DaysPerMonth is the billing month used for capacity-per-month figures.
	DaysPerMonth = 30

	DefaultEpochDuration   = 30 * time.Second
	DefaultLockupDays      = 10
	DefaultFloorPeriodDays = 30
	DefaultSafetyMargin    = time.Hour

	// DefaultFloorPrice is the minimum charge per piece per floor period (0.06 tokens).
	DefaultFloorPrice = "0.06"
)

// Params are the network parameters every calculation is evaluated against.
// They are passed explicitly so alternate networks can be modelled side by side.
type Params struct {
	EpochDuration time.Duration

	// LockupDays is the mandatory lockup window reserved against future spend.
	LockupDays int64

	// FloorPrice is charged per FloorPeriodDays regardless of piece size.
	FloorPrice      *big.Int
	FloorPeriodDays int64

	// SafetyMargin of burn added on top of an exact runway target.
	SafetyMargin time.Duration

	// BothEpsilon is the relative tolerance under which rate and lockup
	// limits are reported as binding together.
	BothEpsilon float64
}

// DefaultParams returns mainnet/calibration defaults: 30s epochs, 10 day
// lockup, 0.06 token floor per 30 days and a one hour safety margin.
func DefaultParams() Params {
	return Params{
		EpochDuration:   DefaultEpochDuration,
		LockupDays:      DefaultLockupDays,
		FloorPrice:      pmath.MustParseUnits(DefaultFloorPrice, pmath.TokenDecimals),
		FloorPeriodDays: DefaultFloorPeriodDays,
		SafetyMargin:    DefaultSafetyMargin,
		BothEpsilon:     1e-9,
	}
}

// Validate checks that the parameters describe a usable network.
func (p Params) Validate() error {
	if p.EpochDuration <= 0 || (24*time.Hour)%p.EpochDuration != 0 {
		return fmt.Errorf("epoch duration %s must divide a day: %w", p.EpochDuration, pmath.ErrInvalidArgument)
	}
	if p.LockupDays <= 0 {
		return fmt.Errorf("lockup days must be positive, got %d: %w", p.LockupDays, pmath.ErrInvalidArgument)
	}
	if p.FloorPrice == nil || p.FloorPrice.Sign() < 0 {
		return fmt.Errorf("floor price must be non-negative: %w", pmath.ErrInvalidArgument)
	}
	if p.FloorPeriodDays <= 0 {
		return fmt.Errorf("floor period days must be positive, got %d: %w", p.FloorPeriodDays, pmath.ErrInvalidArgument)
	}
	if p.SafetyMargin < 0 {
		return fmt.Errorf("safety margin must be non-negative: %w", pmath.ErrInvalidArgument)
	}
	if p.BothEpsilon < 0 {
		return fmt.Errorf("both epsilon must be non-negative: %w", pmath.ErrInvalidArgument)
	}
	return nil
}

// EpochsPerDay is the number of epochs in 24 hours (2880 for 30s epochs).
func (p Params) EpochsPerDay() int64 {
	return int64(24 * time.Hour / p.EpochDuration)
}

// EpochsPerHour is the number of epochs in one hour.
func (p Params) EpochsPerHour() int64 {
	return int64(time.Hour / p.EpochDuration)
}

// EpochsPerMonth is the number of epochs in a 30 day billing month.
func (p Params) EpochsPerMonth() int64 {
	return DaysPerMonth * p.EpochsPerDay()
}

// LockupEpochs is the lockup window in epochs.
func (p Params) LockupEpochs() int64 {
	return p.LockupDays * p.EpochsPerDay()
}

// SafetyEpochs is the safety margin rounded up to whole epochs.
func (p Params) SafetyEpochs() int64 {
	if p.SafetyMargin <= 0 {
		return 0
	}
	return int64((p.SafetyMargin + p.EpochDuration - 1) / p.EpochDuration)
}

func (p Params) bigEpochsPerDay() *big.Int {
	return big.NewInt(p.EpochsPerDay())
}

func (p Params) bigLockupEpochs() *big.Int {
	return big.NewInt(p.LockupEpochs())
}
