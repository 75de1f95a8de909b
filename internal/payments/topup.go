package payments

import (
	"fmt"
	"math"
	"math/big"

	"PayRunway/internal/account"
	pmath "PayRunway/internal/math"
)

type TopUpForDuration struct {
	TopUp     *big.Int
	Available *big.Int
	DailyBurn *big.Int
}

// ComputeTopUpForDuration returns the deposit needed for the available balance
// to last days at the current burn. Never negative.
//
//	topUp = max(0, dailyBurn × ceil(days) − available)
func ComputeTopUpForDuration(p Params, snap *account.Snapshot, days float64) (TopUpForDuration, error) {
	if snap == nil {
		return TopUpForDuration{}, fmt.Errorf("top up for duration: nil snapshot: %w", pmath.ErrInvalidArgument)
	}
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return TopUpForDuration{}, fmt.Errorf("top up for duration: days %v: %w", days, pmath.ErrInvalidArgument)
	}

	result := TopUpForDuration{
		TopUp:     new(big.Int),
		Available: snap.Available(),
		DailyBurn: dailyBurn(p, snap.RateUsed()),
	}
	if days <= 0 || result.DailyBurn.Sign() == 0 {
		return result, nil
	}

	wholeDays, _ := new(big.Float).SetFloat64(math.Ceil(days)).Int(nil)
	needed := new(big.Int).Mul(result.DailyBurn, wholeDays)
	result.TopUp = pmath.ClampZero(needed.Sub(needed, result.Available))
	return result, nil
}

type ExactDaysAdjustment struct {
	// Delta is negative when the account holds more than the target needs.
	Delta           *big.Int
	TargetAvailable *big.Int
}

// ComputeAdjustmentForExactDays returns the deposit change that leaves exactly
// days of runway plus the safety margin of burn. A zero burn needs no change.
func ComputeAdjustmentForExactDays(p Params, snap *account.Snapshot, days int64) (ExactDaysAdjustment, error) {
	if snap == nil {
		return ExactDaysAdjustment{}, fmt.Errorf("exact days: nil snapshot: %w", pmath.ErrInvalidArgument)
	}
	if days < 0 {
		return ExactDaysAdjustment{}, fmt.Errorf("exact days: negative days %d: %w", days, pmath.ErrInvalidArgument)
	}

	rate := snap.RateUsed()
	if rate.Sign() == 0 {
		return ExactDaysAdjustment{Delta: new(big.Int), TargetAvailable: snap.Available()}, nil
	}

	target := new(big.Int).Mul(dailyBurn(p, rate), big.NewInt(days))
	target.Add(target, new(big.Int).Mul(rate, big.NewInt(p.SafetyEpochs())))

	// Measured against the deposit so an account already under its lockup
	// is brought back above it as well.
	delta := new(big.Int).Add(snap.LockupUsed(), target)
	delta.Sub(delta, snap.Deposited())

	return ExactDaysAdjustment{Delta: delta, TargetAvailable: target}, nil
}

type ExactDepositAdjustment struct {
	Delta         *big.Int
	ClampedTarget *big.Int
}

// ComputeAdjustmentForExactDeposit moves the deposit to target, but never
// below the lockup already committed.
func ComputeAdjustmentForExactDeposit(snap *account.Snapshot, target *big.Int) (ExactDepositAdjustment, error) {
	if snap == nil {
		return ExactDepositAdjustment{}, fmt.Errorf("exact deposit: nil snapshot: %w", pmath.ErrInvalidArgument)
	}
	if err := requireNonNegative("target deposit", target); err != nil {
		return ExactDepositAdjustment{}, fmt.Errorf("exact deposit: %w", err)
	}

	clamped := pmath.Max(target, snap.LockupUsed())
	delta := new(big.Int).Sub(clamped, snap.Deposited())
	return ExactDepositAdjustment{Delta: delta, ClampedTarget: clamped}, nil
}

type TopUpReason string

const (
	ReasonNone             TopUpReason = "none"
	ReasonPieceUpload      TopUpReason = "piece-upload"
	ReasonRequiredRunway   TopUpReason = "required-runway"
	ReasonRunwayPlusUpload TopUpReason = "required-runway-plus-upload"
)

// TopUpRequirement describes an upcoming write and the runway that must
// remain once it lands. PieceSizeBytes is optional; Price is required with it.
type TopUpRequirement struct {
	MinDays             float64
	PieceSizeBytes      *big.Int
	PricePerTiBPerEpoch *big.Int
}

type TopUpDetails struct {
	UploadTopUp *big.Int
	RunwayTopUp *big.Int
	PieceRate   *big.Int
	PieceLockup *big.Int
}

type TopUpCalculation struct {
	RequiredTopUp *big.Int
	Reason        TopUpReason
	Details       TopUpDetails
}

// CalculateRequiredTopUp returns the larger of the deposit a pending piece
// needs for its lockup and the deposit the runway target needs once the
// piece's rate is added to the burn.
func CalculateRequiredTopUp(p Params, snap *account.Snapshot, req TopUpRequirement) (TopUpCalculation, error) {
	if snap == nil {
		return TopUpCalculation{}, fmt.Errorf("required top up: nil snapshot: %w", pmath.ErrInvalidArgument)
	}
	if req.MinDays < 0 || math.IsNaN(req.MinDays) || math.IsInf(req.MinDays, 0) {
		return TopUpCalculation{}, fmt.Errorf("required top up: days %v: %w", req.MinDays, pmath.ErrInvalidArgument)
	}

	details := TopUpDetails{
		UploadTopUp: new(big.Int),
		RunwayTopUp: new(big.Int),
		PieceRate:   new(big.Int),
		PieceLockup: new(big.Int),
	}

	withPiece := req.PieceSizeBytes != nil
	projected := snap
	if withPiece {
		if req.PricePerTiBPerEpoch == nil {
			return TopUpCalculation{}, fmt.Errorf("required top up: piece size without price: %w", pmath.ErrInvalidArgument)
		}
		piece, err := AllowancesForPiece(p, req.PieceSizeBytes, req.PricePerTiBPerEpoch)
		if err != nil {
			return TopUpCalculation{}, fmt.Errorf("required top up: %w", err)
		}
		details.PieceRate = piece.RateAllowance
		details.PieceLockup = piece.LockupAllowance
		projected = snap.WithAdditionalUsage(piece.RateAllowance, piece.LockupAllowance)
	}

	// Lockup shortfall: the deposit must cover every committed lockup.
	shortfall := new(big.Int).Sub(projected.LockupUsed(), projected.Deposited())
	shortfall = pmath.ClampZero(shortfall)
	if withPiece {
		details.UploadTopUp = pmath.Copy(shortfall)
	}

	if req.MinDays > 0 {
		runway, err := ComputeTopUpForDuration(p, projected, req.MinDays)
		if err != nil {
			return TopUpCalculation{}, fmt.Errorf("required top up: %w", err)
		}
		details.RunwayTopUp = runway.TopUp.Add(runway.TopUp, shortfall)
	}

	calc := TopUpCalculation{Details: details}
	switch {
	case details.RunwayTopUp.Sign() == 0 && details.UploadTopUp.Sign() == 0:
		calc.RequiredTopUp = new(big.Int)
		calc.Reason = ReasonNone
	case details.RunwayTopUp.Cmp(details.UploadTopUp) > 0:
		calc.RequiredTopUp = pmath.Copy(details.RunwayTopUp)
		calc.Reason = ReasonRequiredRunway
		if withPiece {
			calc.Reason = ReasonRunwayPlusUpload
		}
	default:
		calc.RequiredTopUp = pmath.Copy(details.UploadTopUp)
		calc.Reason = ReasonPieceUpload
	}
	return calc, nil
}
