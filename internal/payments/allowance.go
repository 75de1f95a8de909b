package payments

import (
	"fmt"
	"math/big"

	pmath "PayRunway/internal/math"
)

// AllowancePair is a (rate, lockup) authorization together with the storage
// capacity it corresponds to. Capacity is a display quantity in TiB.
type AllowancePair struct {
	RateAllowance       *big.Int
	LockupAllowance     *big.Int
	CapacityTiBPerMonth float64
}

// CalculateStorageAllowances converts a capacity target into the rate and
// lockup allowances required at the given price.
//
//	rateAllowance   = ceil(pricePerTiBPerEpoch × capacityTiB)
//	lockupAllowance = rateAllowance × lockupEpochs
func CalculateStorageAllowances(p Params, capacityTiB float64, pricePerTiBPerEpoch *big.Int) (AllowancePair, error) {
	if err := requireNonNegative("price", pricePerTiBPerEpoch); err != nil {
		return AllowancePair{}, err
	}

	scaledCapacity, scale, err := pmath.ScaleDecimal(capacityTiB)
	if err != nil {
		return AllowancePair{}, fmt.Errorf("capacity %v TiB: %w", capacityTiB, err)
	}

	rate, err := pmath.MulDiv(pricePerTiBPerEpoch, scaledCapacity, big.NewInt(scale), pmath.RoundCeil)
	if err != nil {
		return AllowancePair{}, err
	}
	lockup := new(big.Int).Mul(rate, p.bigLockupEpochs())

	return AllowancePair{
		RateAllowance:       rate,
		LockupAllowance:     lockup,
		CapacityTiBPerMonth: capacityTiB,
	}, nil
}

// CalculateActualCapacity is the inverse of CalculateStorageAllowances: the
// TiB a rate allowance sustains. Returns 0 when the price is 0.
func CalculateActualCapacity(rateAllowance, pricePerTiBPerEpoch *big.Int) (float64, error) {
	if err := requireNonNegative("rate allowance", rateAllowance); err != nil {
		return 0, err
	}
	if err := requireNonNegative("price", pricePerTiBPerEpoch); err != nil {
		return 0, err
	}
	if pricePerTiBPerEpoch.Sign() == 0 {
		return 0, nil
	}
	return pmath.RatioToFloat(rateAllowance, pricePerTiBPerEpoch)
}

// CalculateStorageFromTokens returns the TiB a flat token amount can sustain
// once the mandatory lockup window is reserved out of it.
func CalculateStorageFromTokens(p Params, amount, pricePerTiBPerEpoch *big.Int) (float64, error) {
	if err := requireNonNegative("amount", amount); err != nil {
		return 0, err
	}
	if err := requireNonNegative("price", pricePerTiBPerEpoch); err != nil {
		return 0, err
	}
	if pricePerTiBPerEpoch.Sign() == 0 {
		return 0, nil
	}
	costForLockup := new(big.Int).Mul(pricePerTiBPerEpoch, p.bigLockupEpochs())
	return CalculateActualCapacity(amount, costForLockup)
}

// PieceRate is the per-epoch cost of storing sizeBytes before the floor is applied.
func PieceRate(sizeBytes, pricePerTiBPerEpoch *big.Int) (*big.Int, error) {
	if err := requireNonNegative("piece size", sizeBytes); err != nil {
		return nil, err
	}
	if err := requireNonNegative("price", pricePerTiBPerEpoch); err != nil {
		return nil, err
	}
	return pmath.MulDiv(pricePerTiBPerEpoch, sizeBytes, pmath.BigTiB, pmath.RoundCeil)
}

// AllowancesForPiece is the allowance a single piece of sizeBytes commits,
// with floor pricing applied.
func AllowancesForPiece(p Params, sizeBytes, pricePerTiBPerEpoch *big.Int) (AllowancePair, error) {
	rate, err := PieceRate(sizeBytes, pricePerTiBPerEpoch)
	if err != nil {
		return AllowancePair{}, err
	}

	capacity, ok := pmath.RatioToFloatSafe(sizeBytes, pmath.BigTiB)
	if !ok {
		capacity = 0
	}

	base := AllowancePair{
		RateAllowance:       rate,
		LockupAllowance:     new(big.Int).Mul(rate, p.bigLockupEpochs()),
		CapacityTiBPerMonth: capacity,
	}
	return ApplyFloorPricing(p, base), nil
}

func requireNonNegative(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%s is nil: %w", name, pmath.ErrInvalidArgument)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%s is negative (%s): %w", name, v, pmath.ErrInvalidArgument)
	}
	return nil
}

type named struct {
	name string
	v    *big.Int
}

func requireAll(amounts ...named) error {
	for _, a := range amounts {
		if err := requireNonNegative(a.name, a.v); err != nil {
			return err
		}
	}
	return nil
}
