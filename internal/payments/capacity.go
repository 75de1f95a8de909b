package payments

import (
	"fmt"
	"math/big"

	pmath "PayRunway/internal/math"
)

// LimitingFactor names the allowance that binds a capacity or duration result.
type LimitingFactor string

const (
	LimitRate   LimitingFactor = "rate"
	LimitLockup LimitingFactor = "lockup"
	LimitBoth   LimitingFactor = "both"
	// LimitNone is reported only when the price is zero and nothing binds.
	LimitNone LimitingFactor = "none"
)

// CalculateCapacityForDuration returns the TiB that allowance tokens can keep
// stored for durationDays. Durations shorter than one epoch are billed as one.
func CalculateCapacityForDuration(p Params, allowance, pricePerTiBPerEpoch *big.Int, durationDays float64) (float64, error) {
	if err := requireNonNegative("allowance", allowance); err != nil {
		return 0, err
	}
	if err := requireNonNegative("price", pricePerTiBPerEpoch); err != nil {
		return 0, err
	}
	if durationDays < 0 {
		return 0, fmt.Errorf("duration %v days: %w", durationDays, pmath.ErrInvalidArgument)
	}
	if pricePerTiBPerEpoch.Sign() == 0 {
		return 0, nil
	}

	epochs := durationDays * float64(p.EpochsPerDay())
	if epochs < 1 {
		return CalculateActualCapacity(allowance, pricePerTiBPerEpoch)
	}

	scaledEpochs, scale, err := pmath.ScaleDecimal(epochs)
	if err != nil {
		return 0, fmt.Errorf("duration %v days: %w", durationDays, err)
	}

	// allowance / (price × scaledEpochs / scale)
	budget := new(big.Int).Mul(allowance, big.NewInt(scale))
	cost := new(big.Int).Mul(pricePerTiBPerEpoch, scaledEpochs)
	return CalculateActualCapacity(budget, cost)
}

type MaxUploadInput struct {
	RateAllowance       *big.Int
	LockupAllowance     *big.Int
	PricePerTiBPerEpoch *big.Int
}

type MaxUpload struct {
	MaxSizeBytes   *big.Int
	MaxSizeTiB     float64
	LimitingFactor LimitingFactor
}

// CalculateMaxUploadableFileSize returns the largest piece the allowances can
// carry. The rate allowance is assumed to run indefinitely, the lockup
// allowance must cover the full lockup window.
func CalculateMaxUploadableFileSize(p Params, in MaxUploadInput) (MaxUpload, error) {
	if err := requireAll(
		named{"rate allowance", in.RateAllowance},
		named{"lockup allowance", in.LockupAllowance},
		named{"price", in.PricePerTiBPerEpoch},
	); err != nil {
		return MaxUpload{}, err
	}
	if in.PricePerTiBPerEpoch.Sign() == 0 {
		return MaxUpload{MaxSizeBytes: new(big.Int), LimitingFactor: LimitNone}, nil
	}

	rateBytes := pmath.MustDivRound(
		new(big.Int).Mul(in.RateAllowance, pmath.BigTiB),
		in.PricePerTiBPerEpoch, pmath.RoundFloor)

	lockupCost := new(big.Int).Mul(in.PricePerTiBPerEpoch, p.bigLockupEpochs())
	lockupBytes := pmath.MustDivRound(
		new(big.Int).Mul(in.LockupAllowance, pmath.BigTiB),
		lockupCost, pmath.RoundFloor)

	factor := bindingFactor(rateBytes, lockupBytes, p.BothEpsilon)
	maxBytes := pmath.Min(rateBytes, lockupBytes)

	tib, ok := pmath.RatioToFloatSafe(maxBytes, pmath.BigTiB)
	if !ok {
		return MaxUpload{}, fmt.Errorf("max upload %s bytes: %w", maxBytes, pmath.ErrPrecisionLimit)
	}

	return MaxUpload{
		MaxSizeBytes:   maxBytes,
		MaxSizeTiB:     tib,
		LimitingFactor: factor,
	}, nil
}

type MaxDurationInput struct {
	FileSizeBytes       *big.Int
	RateAllowance       *big.Int
	LockupAllowance     *big.Int
	PricePerTiBPerEpoch *big.Int

	// ApplyFloor charges the piece at least the floor rate, as an upload
	// would be charged. Off, the raw piece rate is used.
	ApplyFloor bool
}

type MaxDuration struct {
	MaxDurationDays float64
	LimitingFactor  LimitingFactor
}

// CalculateMaxDurationForFileSize fixes the piece size and returns how many
// days the allowances can keep it stored. A rate allowance below the piece
// rate means the piece cannot be stored at all.
func CalculateMaxDurationForFileSize(p Params, in MaxDurationInput) (MaxDuration, error) {
	if err := requireAll(
		named{"file size", in.FileSizeBytes},
		named{"rate allowance", in.RateAllowance},
		named{"lockup allowance", in.LockupAllowance},
		named{"price", in.PricePerTiBPerEpoch},
	); err != nil {
		return MaxDuration{}, err
	}
	pieceRate, err := PieceRate(in.FileSizeBytes, in.PricePerTiBPerEpoch)
	if err != nil {
		return MaxDuration{}, err
	}
	if in.ApplyFloor {
		pieceRate = pmath.Max(pieceRate, FloorAllowances(p).RateAllowance)
	}
	if pieceRate.Sign() == 0 {
		return MaxDuration{LimitingFactor: LimitNone}, nil
	}
	if pieceRate.Cmp(in.RateAllowance) > 0 {
		return MaxDuration{LimitingFactor: LimitRate}, nil
	}

	dailyCost := new(big.Int).Mul(pieceRate, p.bigEpochsPerDay())
	days, err := pmath.RatioToFloat(in.LockupAllowance, dailyCost)
	if err != nil {
		return MaxDuration{}, fmt.Errorf("max duration: %w", err)
	}
	return MaxDuration{MaxDurationDays: days, LimitingFactor: LimitLockup}, nil
}

// bindingFactor compares the two byte limits. Within relative epsilon both bind.
func bindingFactor(rateBytes, lockupBytes *big.Int, epsilon float64) LimitingFactor {
	larger := pmath.Max(rateBytes, lockupBytes)
	if larger.Sign() == 0 {
		return LimitBoth
	}
	diff := new(big.Int).Sub(rateBytes, lockupBytes)
	diff.Abs(diff)

	rel, ok := pmath.RatioToFloatSafe(diff, larger)
	if ok && rel <= epsilon {
		return LimitBoth
	}
	if rateBytes.Cmp(lockupBytes) < 0 {
		return LimitRate
	}
	return LimitLockup
}
