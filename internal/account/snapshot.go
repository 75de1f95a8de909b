package account

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	pmath "PayRunway/internal/math"
)

// AllowanceState is what the storage service is authorized to commit on the
// account's behalf and what it has already committed.
// All amounts are token base units; MaxLockupPeriod is in epochs. A nil
// RateAllowance or LockupAllowance means no limit was read.
type AllowanceState struct {
	RateAllowance   *big.Int
	LockupAllowance *big.Int
	LockupUsed      *big.Int
	RateUsed        *big.Int
	MaxLockupPeriod int64
}

// Snapshot is a point-in-time view of an account. It is never mutated in
// place: the With* helpers return copies.
type Snapshot struct {
	Network            string
	Address            common.Address
	NativeGasBalance   *big.Int
	WalletTokenBalance *big.Int
	DepositedBalance   *big.Int
	Allowances         AllowanceState
	FetchedAt          time.Time
}

// Available returns the spendable (non-locked) deposit, never negative.
func (s *Snapshot) Available() *big.Int {
	available := new(big.Int).Sub(pmath.Copy(s.DepositedBalance), pmath.Copy(s.Allowances.LockupUsed))
	return pmath.ClampZero(available)
}

// RateUsed returns the committed per-epoch spend (zero when unset).
func (s *Snapshot) RateUsed() *big.Int {
	return pmath.Copy(s.Allowances.RateUsed)
}

// LockupUsed returns the committed lockup (zero when unset).
func (s *Snapshot) LockupUsed() *big.Int {
	return pmath.Copy(s.Allowances.LockupUsed)
}

// Deposited returns the deposited balance (zero when unset).
func (s *Snapshot) Deposited() *big.Int {
	return pmath.Copy(s.DepositedBalance)
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Network:            s.Network,
		Address:            s.Address,
		NativeGasBalance:   pmath.Copy(s.NativeGasBalance),
		WalletTokenBalance: pmath.Copy(s.WalletTokenBalance),
		DepositedBalance:   pmath.Copy(s.DepositedBalance),
		Allowances: AllowanceState{
			RateAllowance:   copyLimit(s.Allowances.RateAllowance),
			LockupAllowance: copyLimit(s.Allowances.LockupAllowance),
			LockupUsed:      pmath.Copy(s.Allowances.LockupUsed),
			RateUsed:        pmath.Copy(s.Allowances.RateUsed),
			MaxLockupPeriod: s.Allowances.MaxLockupPeriod,
		},
		FetchedAt: s.FetchedAt,
	}
}

// copyLimit keeps an unset allowance limit unset.
func copyLimit(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// WithDepositDelta returns a copy with delta applied to the deposited balance.
// A deposit also moves funds out of the wallet; a withdrawal moves them back.
func (s *Snapshot) WithDepositDelta(delta *big.Int) *Snapshot {
	next := s.Clone()
	next.DepositedBalance.Add(next.DepositedBalance, delta)
	next.WalletTokenBalance.Sub(next.WalletTokenBalance, delta)
	if next.WalletTokenBalance.Sign() < 0 {
		next.WalletTokenBalance.SetInt64(0)
	}
	return next
}

// WithAdditionalUsage returns a copy that also commits rate and lockup,
// as a pending write would once accepted.
func (s *Snapshot) WithAdditionalUsage(rate, lockup *big.Int) *Snapshot {
	next := s.Clone()
	next.Allowances.RateUsed.Add(next.Allowances.RateUsed, pmath.Copy(rate))
	next.Allowances.LockupUsed.Add(next.Allowances.LockupUsed, pmath.Copy(lockup))
	return next
}

// Validate rejects negative amounts. Nil amounts are treated as zero.
func (s *Snapshot) Validate() error {
	fields := map[string]*big.Int{
		"native_gas_balance":   s.NativeGasBalance,
		"wallet_token_balance": s.WalletTokenBalance,
		"deposited_balance":    s.DepositedBalance,
		"rate_allowance":       s.Allowances.RateAllowance,
		"lockup_allowance":     s.Allowances.LockupAllowance,
		"lockup_used":          s.Allowances.LockupUsed,
		"rate_used":            s.Allowances.RateUsed,
	}
	for name, v := range fields {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("snapshot %s: negative %s %s: %w", s.Address.Hex(), name, v, pmath.ErrInvalidArgument)
		}
	}
	if s.Allowances.MaxLockupPeriod < 0 {
		return fmt.Errorf("snapshot %s: negative max lockup period: %w", s.Address.Hex(), pmath.ErrInvalidArgument)
	}
	return nil
}
