package testutil

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"PayRunway/internal/account"
)

// TestAddress is the account every builder snapshot belongs to.
var TestAddress = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// SnapshotBuilder builds account snapshots for tests. Every amount defaults to zero.
type SnapshotBuilder struct {
	snap account.Snapshot
}

func NewSnapshot() *SnapshotBuilder {
	return &SnapshotBuilder{snap: account.Snapshot{
		Network:            "calibration",
		Address:            TestAddress,
		NativeGasBalance:   big.NewInt(1_000_000_000_000_000_000),
		WalletTokenBalance: new(big.Int),
		DepositedBalance:   new(big.Int),
		Allowances: account.AllowanceState{
			LockupUsed: new(big.Int),
			RateUsed:   new(big.Int),
		},
		FetchedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
}

func (b *SnapshotBuilder) Network(name string) *SnapshotBuilder {
	b.snap.Network = name
	return b
}

func (b *SnapshotBuilder) Address(addr common.Address) *SnapshotBuilder {
	b.snap.Address = addr
	return b
}

func (b *SnapshotBuilder) Deposited(v int64) *SnapshotBuilder {
	b.snap.DepositedBalance = big.NewInt(v)
	return b
}

func (b *SnapshotBuilder) DepositedBig(v *big.Int) *SnapshotBuilder {
	b.snap.DepositedBalance = new(big.Int).Set(v)
	return b
}

func (b *SnapshotBuilder) Wallet(v int64) *SnapshotBuilder {
	b.snap.WalletTokenBalance = big.NewInt(v)
	return b
}

func (b *SnapshotBuilder) WalletBig(v *big.Int) *SnapshotBuilder {
	b.snap.WalletTokenBalance = new(big.Int).Set(v)
	return b
}

func (b *SnapshotBuilder) LockupUsed(v int64) *SnapshotBuilder {
	b.snap.Allowances.LockupUsed = big.NewInt(v)
	return b
}

func (b *SnapshotBuilder) RateUsed(v int64) *SnapshotBuilder {
	b.snap.Allowances.RateUsed = big.NewInt(v)
	return b
}

// Allowances sets the operator rate and lockup limits.
func (b *SnapshotBuilder) Allowances(rate, lockup int64) *SnapshotBuilder {
	b.snap.Allowances.RateAllowance = big.NewInt(rate)
	b.snap.Allowances.LockupAllowance = big.NewInt(lockup)
	return b
}

// Build returns an independent copy, so a builder can be reused.
func (b *SnapshotBuilder) Build() *account.Snapshot {
	return b.snap.Clone()
}
