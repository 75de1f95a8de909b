package payments

import (
	"math/big"

	pmath "PayRunway/internal/math"
)

// FloorAllowances is the minimum viable allowance for any single piece,
// independent of its size.
//
//	floorRate   = floorPrice / (floorPeriodDays × epochsPerDay)   (floor division)
//	floorLockup = floorRate × lockupEpochs
func FloorAllowances(p Params) AllowancePair {
	periodEpochs := big.NewInt(p.FloorPeriodDays * p.EpochsPerDay())
	rate := pmath.MustDivRound(pmath.Copy(p.FloorPrice), periodEpochs, pmath.RoundFloor)

	return AllowancePair{
		RateAllowance:   rate,
		LockupAllowance: new(big.Int).Mul(rate, p.bigLockupEpochs()),
	}
}

// ApplyFloorPricing raises base to the floor componentwise.
func ApplyFloorPricing(p Params, base AllowancePair) AllowancePair {
	floor := FloorAllowances(p)

	return AllowancePair{
		RateAllowance:       pmath.Max(pmath.Copy(base.RateAllowance), floor.RateAllowance),
		LockupAllowance:     pmath.Max(pmath.Copy(base.LockupAllowance), floor.LockupAllowance),
		CapacityTiBPerMonth: base.CapacityTiBPerMonth,
	}
}
