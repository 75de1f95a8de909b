package payments

import (
	"math"
	"math/big"

	"PayRunway/internal/account"
	pmath "PayRunway/internal/math"
)

type RunwayState string

const (
	RunwayUnknown RunwayState = "unknown"
	// RunwayNoSpend means nothing is being charged. Days is zero, not infinite.
	RunwayNoSpend RunwayState = "no-spend"
	RunwayActive  RunwayState = "active"
)

// RunwaySummary is how long the available balance lasts at the current burn.
type RunwaySummary struct {
	State      RunwayState
	Available  *big.Int
	RateUsed   *big.Int
	DailyBurn  *big.Int
	LockupUsed *big.Int
	Deposited  *big.Int

	// Days saturates at math.MaxInt64. Hours is the remainder, 0..23.
	Days  int64
	Hours int64
}

// CalculateStorageRunway derives the runway of snap.
//
//	dailyBurn = rateUsed × epochsPerDay
//	days      = floor(available / dailyBurn)
//	hours     = floor((available mod dailyBurn) × 24 / dailyBurn)
func CalculateStorageRunway(p Params, snap *account.Snapshot) RunwaySummary {
	if snap == nil {
		return RunwaySummary{
			State:      RunwayUnknown,
			Available:  new(big.Int),
			RateUsed:   new(big.Int),
			DailyBurn:  new(big.Int),
			LockupUsed: new(big.Int),
			Deposited:  new(big.Int),
		}
	}

	summary := RunwaySummary{
		State:      RunwayNoSpend,
		Available:  snap.Available(),
		RateUsed:   snap.RateUsed(),
		DailyBurn:  new(big.Int),
		LockupUsed: snap.LockupUsed(),
		Deposited:  snap.Deposited(),
	}
	if summary.RateUsed.Sign() == 0 {
		return summary
	}

	summary.State = RunwayActive
	summary.DailyBurn = dailyBurn(p, summary.RateUsed)

	days, rem := new(big.Int).QuoRem(summary.Available, summary.DailyBurn, new(big.Int))
	if days.IsInt64() {
		summary.Days = days.Int64()
	} else {
		summary.Days = math.MaxInt64
	}

	rem.Mul(rem, big.NewInt(24))
	summary.Hours = pmath.MustDivRound(rem, summary.DailyBurn, pmath.RoundFloor).Int64()

	return summary
}

// DaysFloat is the runway as fractional days, for display only.
func (r RunwaySummary) DaysFloat() float64 {
	if r.State != RunwayActive {
		return 0
	}
	v, ok := pmath.RatioToFloatSafe(r.Available, r.DailyBurn)
	if !ok {
		return float64(r.Days) + float64(r.Hours)/24
	}
	return v
}

func dailyBurn(p Params, rateUsed *big.Int) *big.Int {
	return new(big.Int).Mul(rateUsed, p.bigEpochsPerDay())
}
