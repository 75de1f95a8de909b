package funding

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"PayRunway/internal/account"
	pmath "PayRunway/internal/math"
	"PayRunway/internal/payments"
)

type Action string

const (
	ActionNone     Action = "none"
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

// Reason explains a plan's delta.
type Reason string

const (
	ReasonNone             = Reason(payments.ReasonNone)
	ReasonPieceUpload      = Reason(payments.ReasonPieceUpload)
	ReasonRequiredRunway   = Reason(payments.ReasonRequiredRunway)
	ReasonRunwayPlusUpload = Reason(payments.ReasonRunwayPlusUpload)
	ReasonTargetDeposit    = Reason("target-deposit")
	ReasonExcessFunds      = Reason("excess-funds")
)

// Insights summarise an account before or after a plan is applied.
type Insights struct {
	Runway        payments.RunwaySummary
	Deposited     *big.Int
	Available     *big.Int
	DailyBurn     *big.Int
	LockupUsed    *big.Int
	WalletBalance *big.Int
}

func insightsFor(p payments.Params, snap *account.Snapshot) Insights {
	runway := payments.CalculateStorageRunway(p, snap)
	return Insights{
		Runway:        runway,
		Deposited:     runway.Deposited,
		Available:     runway.Available,
		DailyBurn:     runway.DailyBurn,
		LockupUsed:    runway.LockupUsed,
		WalletBalance: pmath.Copy(snap.WalletTokenBalance),
	}
}

// PlanOptions carry caller policy that is not part of the target.
type PlanOptions struct {
	// DepositCeiling caps the deposited balance a plan may reach. Nil means
	// no cap.
	DepositCeiling *big.Int
}

// Plan is the outcome of a planning call. It is never mutated after
// BuildPlan returns.
type Plan struct {
	Network    string
	Address    common.Address
	TargetType TargetType
	Mode       Mode

	// Delta is positive for a deposit and negative for a withdrawal.
	Delta  *big.Int
	Action Action
	Reason Reason

	Current   Insights
	Projected Insights

	// WalletShortfall is how many more tokens the wallet needs to cover a
	// deposit. Zero when it can.
	WalletShortfall *big.Int
	CeilingExceeded bool
}

// NeedsFunds reports whether the plan cannot be executed as-is for lack of
// wallet funds or because of the deposit ceiling.
func (p *Plan) NeedsFunds() bool {
	return p.WalletShortfall.Sign() > 0 || p.CeilingExceeded
}

// BuildPlan computes the deposit change that meets req for snap. It performs
// no I/O.
func BuildPlan(p payments.Params, snap *account.Snapshot, req Request, opts PlanOptions) (*Plan, error) {
	if snap == nil {
		return nil, fmt.Errorf("build plan: nil snapshot: %w", pmath.ErrInvalidArgument)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}
	if opts.DepositCeiling != nil && opts.DepositCeiling.Sign() < 0 {
		return nil, fmt.Errorf("build plan: negative deposit ceiling: %w", pmath.ErrInvalidArgument)
	}

	// base is the snapshot the delta is applied to. For an upload target it
	// already carries the piece's usage.
	base := snap
	var (
		delta  *big.Int
		reason Reason
	)

	switch t := req.Target.(type) {
	case RunwayTarget:
		adj, err := payments.ComputeAdjustmentForExactDays(p, snap, t.Days)
		if err != nil {
			return nil, fmt.Errorf("build plan: %w", err)
		}
		delta = adj.Delta
		reason = reasonForDelta(delta, ReasonRequiredRunway)

	case DepositTarget:
		adj, err := payments.ComputeAdjustmentForExactDeposit(snap, t.Amount)
		if err != nil {
			return nil, fmt.Errorf("build plan: %w", err)
		}
		delta = adj.Delta
		reason = reasonForDelta(delta, ReasonTargetDeposit)

	case RunwayWithUploadTarget:
		piece, err := payments.AllowancesForPiece(p, t.PieceSizeBytes, t.PricePerTiBPerEpoch)
		if err != nil {
			return nil, fmt.Errorf("build plan: %w", err)
		}
		base = snap.WithAdditionalUsage(piece.RateAllowance, piece.LockupAllowance)

		if req.Mode == ModeMinimum {
			calc, err := payments.CalculateRequiredTopUp(p, snap, payments.TopUpRequirement{
				MinDays:             float64(t.Days),
				PieceSizeBytes:      t.PieceSizeBytes,
				PricePerTiBPerEpoch: t.PricePerTiBPerEpoch,
			})
			if err != nil {
				return nil, fmt.Errorf("build plan: %w", err)
			}
			delta = calc.RequiredTopUp
			reason = Reason(calc.Reason)
		} else {
			adj, err := payments.ComputeAdjustmentForExactDays(p, base, t.Days)
			if err != nil {
				return nil, fmt.Errorf("build plan: %w", err)
			}
			delta = adj.Delta
			reason = reasonForDelta(delta, ReasonRunwayPlusUpload)
		}

	default:
		return nil, fmt.Errorf("build plan: unsupported target %T: %w", req.Target, ErrInvalidTarget)
	}

	if req.Mode == ModeMinimum && delta.Sign() < 0 {
		delta = new(big.Int)
		reason = ReasonNone
	}

	plan := &Plan{
		Network:         snap.Network,
		Address:         snap.Address,
		TargetType:      req.Target.Type(),
		Mode:            req.Mode,
		Delta:           delta,
		Action:          actionFor(delta, req.Mode),
		Reason:          reason,
		Current:         insightsFor(p, snap),
		Projected:       insightsFor(p, base.WithDepositDelta(delta)),
		WalletShortfall: new(big.Int),
	}

	if plan.Action == ActionDeposit {
		plan.WalletShortfall = walletShortfall(snap, delta)
		if opts.DepositCeiling != nil {
			next := new(big.Int).Add(snap.Deposited(), delta)
			plan.CeilingExceeded = next.Cmp(opts.DepositCeiling) > 0
		}
	}

	return plan, nil
}

func actionFor(delta *big.Int, mode Mode) Action {
	switch {
	case delta.Sign() > 0:
		return ActionDeposit
	case delta.Sign() < 0 && mode == ModeExact:
		return ActionWithdraw
	default:
		return ActionNone
	}
}

func reasonForDelta(delta *big.Int, positive Reason) Reason {
	switch delta.Sign() {
	case 1:
		return positive
	case -1:
		return ReasonExcessFunds
	default:
		return ReasonNone
	}
}

func walletShortfall(snap *account.Snapshot, delta *big.Int) *big.Int {
	short := new(big.Int).Sub(delta, pmath.Copy(snap.WalletTokenBalance))
	return pmath.ClampZero(short)
}
