package event

import (
	"time"

	"github.com/google/uuid"
)

// FundingExecuted is emitted after a deposit or withdrawal was submitted and
// the account re-read. Amounts are base-10 integer strings.
type FundingExecuted struct {
	ExecutionID    uuid.UUID `json:"execution_id"`
	NetworkName    string    `json:"network"`
	Address        string    `json:"address"`
	Action         string    `json:"action"`
	Mode           string    `json:"mode"`
	TargetType     string    `json:"target_type"`
	RequestedDelta string    `json:"requested_delta"`
	ObservedDelta  string    `json:"observed_delta"`
	TransactionRef string    `json:"transaction_ref"`
	NewDeposited   string    `json:"new_deposited"`
	RunwayDays     int64     `json:"runway_days"`
	Pending        bool      `json:"pending"`
	Warnings       []string  `json:"warnings,omitempty"`
	ExecutedAt     time.Time `json:"executed_at"`
}

func (f *FundingExecuted) IdempotencyKey() string {
	return f.ExecutionID.String()
}

func (f *FundingExecuted) EventType() EventType {
	return EventTypeFundingExecuted
}

func (f *FundingExecuted) Network() string {
	return f.NetworkName
}

func (f *FundingExecuted) OccurredAt() time.Time {
	return f.ExecutedAt
}

// FundingSkipped is emitted when a plan wanted to move funds but could not:
// the wallet was short or the deposit ceiling would be crossed.
type FundingSkipped struct {
	ExecutionID     uuid.UUID `json:"execution_id"`
	NetworkName     string    `json:"network"`
	Address         string    `json:"address"`
	Action          string    `json:"action"`
	RequestedDelta  string    `json:"requested_delta"`
	WalletShortfall string    `json:"wallet_shortfall,omitempty"`
	CeilingExceeded bool      `json:"ceiling_exceeded"`
	SkippedAt       time.Time `json:"skipped_at"`
}

func (f *FundingSkipped) IdempotencyKey() string {
	return f.ExecutionID.String()
}

func (f *FundingSkipped) EventType() EventType {
	return EventTypeFundingSkipped
}

func (f *FundingSkipped) Network() string {
	return f.NetworkName
}

func (f *FundingSkipped) OccurredAt() time.Time {
	return f.SkippedAt
}
