package funding

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"PayRunway/internal/account"
	"PayRunway/internal/event"
)

// AccountReader fetches a fresh account snapshot. Errors are returned as-is;
// the engine never retries.
type AccountReader interface {
	FetchAccountSnapshot(ctx context.Context, address common.Address) (*account.Snapshot, error)
}

// PriceReader returns the current storage price per TiB per epoch.
type PriceReader interface {
	FetchCurrentPrice(ctx context.Context) (*big.Int, error)
}

// FundsMover submits deposits and withdrawals and returns the transaction
// reference. A submitted transaction is never cancelled.
type FundsMover interface {
	SubmitDeposit(ctx context.Context, amount *big.Int) (string, error)
	SubmitWithdraw(ctx context.Context, amount *big.Int) (string, error)
}

// AllowanceSetter authorizes the storage service as a spending operator.
// Used once during onboarding; planning assumes allowances are already set.
type AllowanceSetter interface {
	SetAllowances(ctx context.Context, rate, lockup *big.Int, maxLockupPeriod int64) (string, error)
}

// EventPublisher fans execution events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, evt event.Event) error
}

// ExecutionRecorder keeps the execution history.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, evt *event.FundingExecuted) error
}
