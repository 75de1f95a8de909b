package payments

import (
	"fmt"
	"math/big"

	"PayRunway/internal/account"
	pmath "PayRunway/internal/math"
)

// UploadCheck reports whether a piece can be written right now. Shortfalls
// are fields, not errors.
type UploadCheck struct {
	Affordable bool

	// InsufficientDeposit is the extra deposit needed to cover the piece's lockup.
	InsufficientDeposit *big.Int
	RequiredRate        *big.Int
	RequiredLockup      *big.Int

	RateAllowanceExceeded   bool
	LockupAllowanceExceeded bool
}

// CheckUploadAffordability tests a piece of sizeBytes against the deposit and
// the operator allowances in snap. Unset allowances are treated as unlimited.
func CheckUploadAffordability(p Params, snap *account.Snapshot, sizeBytes, pricePerTiBPerEpoch *big.Int) (UploadCheck, error) {
	if snap == nil {
		return UploadCheck{}, fmt.Errorf("upload check: nil snapshot: %w", pmath.ErrInvalidArgument)
	}
	piece, err := AllowancesForPiece(p, sizeBytes, pricePerTiBPerEpoch)
	if err != nil {
		return UploadCheck{}, fmt.Errorf("upload check: %w", err)
	}

	projected := snap.WithAdditionalUsage(piece.RateAllowance, piece.LockupAllowance)

	check := UploadCheck{
		RequiredRate:   piece.RateAllowance,
		RequiredLockup: piece.LockupAllowance,
	}
	check.InsufficientDeposit = pmath.ClampZero(new(big.Int).Sub(projected.LockupUsed(), projected.Deposited()))

	if limit := snap.Allowances.RateAllowance; limit != nil {
		check.RateAllowanceExceeded = projected.RateUsed().Cmp(limit) > 0
	}
	if limit := snap.Allowances.LockupAllowance; limit != nil {
		check.LockupAllowanceExceeded = projected.LockupUsed().Cmp(limit) > 0
	}

	check.Affordable = check.InsufficientDeposit.Sign() == 0 &&
		!check.RateAllowanceExceeded &&
		!check.LockupAllowanceExceeded
	return check, nil
}
