package funding

import (
	"errors"
	"fmt"
	"math/big"

	pmath "PayRunway/internal/math"
)

// ErrInvalidTarget is returned for a missing, conflicting or malformed target.
// It wraps math.ErrInvalidArgument.
var ErrInvalidTarget = fmt.Errorf("invalid funding target: %w", pmath.ErrInvalidArgument)

// Mode controls whether a plan may withdraw.
type Mode string

const (
	// ModeExact moves the deposit to the target in either direction.
	ModeExact Mode = "exact"
	// ModeMinimum only ever deposits.
	ModeMinimum Mode = "minimum"
)

// ParseMode accepts "exact" or "minimum"; empty means exact.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeExact:
		return ModeExact, nil
	case ModeMinimum:
		return ModeMinimum, nil
	default:
		return "", fmt.Errorf("unknown mode %q: %w", s, pmath.ErrInvalidArgument)
	}
}

type TargetType string

const (
	TargetRunway           TargetType = "runway"
	TargetDeposit          TargetType = "deposit"
	TargetRunwayWithUpload TargetType = "runway-with-upload"
)

// Target is one of RunwayTarget, DepositTarget or RunwayWithUploadTarget.
type Target interface {
	Type() TargetType
	validate() error
}

// RunwayTarget asks for Days of runway at the current burn.
type RunwayTarget struct {
	Days int64
}

func (RunwayTarget) Type() TargetType { return TargetRunway }

func (t RunwayTarget) validate() error {
	if t.Days < 0 {
		return fmt.Errorf("runway days %d is negative: %w", t.Days, ErrInvalidTarget)
	}
	return nil
}

// DepositTarget asks for an exact deposited balance.
type DepositTarget struct {
	Amount *big.Int
}

func (DepositTarget) Type() TargetType { return TargetDeposit }

func (t DepositTarget) validate() error {
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return fmt.Errorf("deposit target must be a non-negative amount: %w", ErrInvalidTarget)
	}
	return nil
}

// RunwayWithUploadTarget asks for Days of runway after a pending piece of
// PieceSizeBytes has been committed at PricePerTiBPerEpoch.
type RunwayWithUploadTarget struct {
	Days                int64
	PieceSizeBytes      *big.Int
	PricePerTiBPerEpoch *big.Int
}

func (RunwayWithUploadTarget) Type() TargetType { return TargetRunwayWithUpload }

func (t RunwayWithUploadTarget) validate() error {
	if t.Days < 0 {
		return fmt.Errorf("runway days %d is negative: %w", t.Days, ErrInvalidTarget)
	}
	if t.PieceSizeBytes == nil || t.PieceSizeBytes.Sign() < 0 {
		return fmt.Errorf("piece size must be a non-negative amount: %w", ErrInvalidTarget)
	}
	if t.PricePerTiBPerEpoch == nil || t.PricePerTiBPerEpoch.Sign() < 0 {
		return fmt.Errorf("piece price must be a non-negative amount: %w", ErrInvalidTarget)
	}
	return nil
}

// Request is a validated planning request.
type Request struct {
	Target Target
	Mode   Mode
}

func (r Request) Validate() error {
	if r.Target == nil {
		return fmt.Errorf("no target: %w", ErrInvalidTarget)
	}
	if r.Mode != ModeExact && r.Mode != ModeMinimum {
		return fmt.Errorf("unknown mode %q: %w", r.Mode, pmath.ErrInvalidArgument)
	}
	return r.Target.validate()
}

// Options is the flat form requests arrive in from HTTP, gRPC, config and
// the keeper. Exactly one of TargetRunwayDays and TargetDeposit must be set.
type Options struct {
	TargetRunwayDays *int64
	TargetDeposit    *big.Int

	// Optional pending piece, only valid with TargetRunwayDays.
	PieceSizeBytes      *big.Int
	PricePerTiBPerEpoch *big.Int

	Mode Mode
}

// Resolve turns the options into a Request.
func (o Options) Resolve() (Request, error) {
	mode, err := ParseMode(string(o.Mode))
	if err != nil {
		return Request{}, err
	}

	hasRunway := o.TargetRunwayDays != nil
	hasDeposit := o.TargetDeposit != nil
	hasPiece := o.PieceSizeBytes != nil

	var target Target
	switch {
	case hasRunway && hasDeposit:
		return Request{}, fmt.Errorf("target runway days and target deposit are mutually exclusive: %w", ErrInvalidTarget)
	case !hasRunway && !hasDeposit:
		return Request{}, fmt.Errorf("one of target runway days or target deposit is required: %w", ErrInvalidTarget)
	case hasDeposit && hasPiece:
		return Request{}, fmt.Errorf("piece size requires a runway target: %w", ErrInvalidTarget)
	case hasDeposit:
		target = DepositTarget{Amount: o.TargetDeposit}
	case hasPiece:
		if o.PricePerTiBPerEpoch == nil {
			return Request{}, fmt.Errorf("piece size requires a price: %w", ErrInvalidTarget)
		}
		target = RunwayWithUploadTarget{
			Days:                *o.TargetRunwayDays,
			PieceSizeBytes:      o.PieceSizeBytes,
			PricePerTiBPerEpoch: o.PricePerTiBPerEpoch,
		}
	default:
		target = RunwayTarget{Days: *o.TargetRunwayDays}
	}

	req := Request{Target: target, Mode: mode}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// IsInvalidTarget reports whether err came from target resolution.
func IsInvalidTarget(err error) bool {
	return errors.Is(err, ErrInvalidTarget)
}
