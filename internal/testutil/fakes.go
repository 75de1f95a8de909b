package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"PayRunway/internal/account"
	"PayRunway/internal/event"
)

// FakeChain is an in-memory account and payments contract. With
// ApplySubmits set, deposits and withdrawals land immediately; otherwise
// they stay "pending" and the deposited balance does not move.
type FakeChain struct {
	mu sync.Mutex

	Snapshot     *account.Snapshot
	Price        *big.Int
	ApplySubmits bool

	FetchErr  error
	PriceErr  error
	SubmitErr error

	Deposits    []*big.Int
	Withdrawals []*big.Int
	Allowances  [][2]*big.Int
	Fetches     int
	txCount     int
}

func NewFakeChain(snap *account.Snapshot, price *big.Int) *FakeChain {
	return &FakeChain{Snapshot: snap, Price: price, ApplySubmits: true}
}

func (f *FakeChain) FetchAccountSnapshot(ctx context.Context, address common.Address) (*account.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if f.Snapshot == nil {
		return nil, fmt.Errorf("fake chain: no account %s", address.Hex())
	}
	snap := f.Snapshot.Clone()
	snap.Address = address
	return snap, nil
}

func (f *FakeChain) FetchCurrentPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PriceErr != nil {
		return nil, f.PriceErr
	}
	return new(big.Int).Set(f.Price), nil
}

func (f *FakeChain) SubmitDeposit(ctx context.Context, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.Deposits = append(f.Deposits, new(big.Int).Set(amount))
	if f.ApplySubmits {
		f.Snapshot = f.Snapshot.WithDepositDelta(amount)
	}
	return f.nextTx(), nil
}

func (f *FakeChain) SubmitWithdraw(ctx context.Context, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.Withdrawals = append(f.Withdrawals, new(big.Int).Set(amount))
	if f.ApplySubmits {
		f.Snapshot = f.Snapshot.WithDepositDelta(new(big.Int).Neg(amount))
	}
	return f.nextTx(), nil
}

func (f *FakeChain) SetAllowances(ctx context.Context, rate, lockup *big.Int, maxLockupPeriod int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.Allowances = append(f.Allowances, [2]*big.Int{new(big.Int).Set(rate), new(big.Int).Set(lockup)})
	f.Snapshot.Allowances.RateAllowance = new(big.Int).Set(rate)
	f.Snapshot.Allowances.LockupAllowance = new(big.Int).Set(lockup)
	f.Snapshot.Allowances.MaxLockupPeriod = maxLockupPeriod
	return f.nextTx(), nil
}

func (f *FakeChain) nextTx() string {
	f.txCount++
	return fmt.Sprintf("0x%064x", f.txCount)
}

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []event.Event
	Err    error
}

func (p *RecordingPublisher) Publish(ctx context.Context, evt event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, evt)
	return nil
}

// RecordingRecorder keeps every recorded execution in memory.
type RecordingRecorder struct {
	mu      sync.Mutex
	Records []*event.FundingExecuted
	Err     error
}

func (r *RecordingRecorder) RecordExecution(ctx context.Context, evt *event.FundingExecuted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Records = append(r.Records, evt)
	return nil
}

// Recorded returns a copy of the records, safe to call while another
// goroutine is recording.
func (r *RecordingRecorder) Recorded() []*event.FundingExecuted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.FundingExecuted(nil), r.Records...)
}
