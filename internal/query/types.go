package query

import "time"

// Amounts in responses are base-10 integer strings of token base units.

// RunwayResponse is the current runway of an account.
type RunwayResponse struct {
	Network    string `json:"network"`
	Address    string `json:"address"`
	State      string `json:"state"`
	Days       int64  `json:"days"`
	Hours      int64  `json:"hours"`
	Deposited  string `json:"deposited"`
	Available  string `json:"available"`
	LockupUsed string `json:"lockup_used"`
	RateUsed   string `json:"rate_used"`
	DailyBurn  string `json:"daily_burn"`
	Wallet     string `json:"wallet"`
	// DepositedDisplay is the deposit in whole tokens, for humans.
	DepositedDisplay string    `json:"deposited_display"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// FundingRequest is the body of the funding-plan and funding endpoints.
// Exactly one of TargetRunwayDays and TargetDeposit must be set.
type FundingRequest struct {
	TargetRunwayDays *int64 `json:"target_runway_days,omitempty"`
	TargetDeposit    string `json:"target_deposit,omitempty"`
	PieceSize        string `json:"piece_size,omitempty"`
	Mode             string `json:"mode,omitempty"`
}

// InsightsResponse mirrors funding.Insights.
type InsightsResponse struct {
	RunwayDays  int64  `json:"runway_days"`
	RunwayHours int64  `json:"runway_hours"`
	RunwayState string `json:"runway_state"`
	Deposited   string `json:"deposited"`
	Available   string `json:"available"`
	DailyBurn   string `json:"daily_burn"`
	LockupUsed  string `json:"lockup_used"`
	Wallet      string `json:"wallet"`
}

// PlanResponse is a computed, not executed, funding plan.
type PlanResponse struct {
	Network         string           `json:"network"`
	Address         string           `json:"address"`
	TargetType      string           `json:"target_type"`
	Mode            string           `json:"mode"`
	Action          string           `json:"action"`
	Reason          string           `json:"reason"`
	Delta           string           `json:"delta"`
	DeltaDisplay    string           `json:"delta_display"`
	WalletShortfall string           `json:"wallet_shortfall"`
	CeilingExceeded bool             `json:"ceiling_exceeded"`
	Current         InsightsResponse `json:"current"`
	Projected       InsightsResponse `json:"projected"`
}

// ExecutionResponse reports an executed plan.
type ExecutionResponse struct {
	Plan           PlanResponse `json:"plan"`
	ExecutionID    string       `json:"execution_id"`
	Adjusted       bool         `json:"adjusted"`
	Action         string       `json:"action"`
	Delta          string       `json:"delta"`
	ObservedDelta  string       `json:"observed_delta"`
	TransactionRef string       `json:"transaction_ref,omitempty"`
	NewDeposited   string       `json:"new_deposited"`
	NewRunwayDays  int64        `json:"new_runway_days"`
	NewRunwayHours int64        `json:"new_runway_hours"`
	Pending        bool         `json:"pending"`
	Warnings       []string     `json:"warnings,omitempty"`
	// Replayed is set when the response was served from the idempotency cache.
	Replayed bool `json:"replayed,omitempty"`
}

// CapacityResponse is the storage a token amount buys.
type CapacityResponse struct {
	Amount              string  `json:"amount"`
	DurationDays        float64 `json:"duration_days,omitempty"`
	PricePerTiBPerEpoch string  `json:"price_per_tib_per_epoch"`
	CapacityTiB         float64 `json:"capacity_tib"`
	CapacityDisplay     string  `json:"capacity_display"`
}

// UploadCheckResponse says whether a piece of the given size fits.
type UploadCheckResponse struct {
	Network                 string  `json:"network"`
	Address                 string  `json:"address"`
	SizeBytes               string  `json:"size_bytes"`
	Affordable              bool    `json:"affordable"`
	InsufficientDeposit     string  `json:"insufficient_deposit"`
	RequiredRate            string  `json:"required_rate"`
	RequiredLockup          string  `json:"required_lockup"`
	RateAllowanceExceeded   bool    `json:"rate_allowance_exceeded"`
	LockupAllowanceExceeded bool    `json:"lockup_allowance_exceeded"`
	MaxDurationDays         float64 `json:"max_duration_days"`
	DurationLimitedBy       string  `json:"duration_limited_by"`
}

// MaxUploadResponse is the largest piece the remaining headroom accepts.
type MaxUploadResponse struct {
	Network        string  `json:"network"`
	Address        string  `json:"address"`
	MaxSizeBytes   string  `json:"max_size_bytes"`
	MaxSizeTiB     float64 `json:"max_size_tib"`
	MaxSizeDisplay string  `json:"max_size_display"`
	LimitingFactor string  `json:"limiting_factor"`
}

// AllowanceRequest is the body of the onboarding endpoint.
type AllowanceRequest struct {
	CapacityTiBPerMonth float64 `json:"capacity_tib_per_month"`
}

// AllowanceResponse reports the allowances submitted.
type AllowanceResponse struct {
	RateAllowance       string  `json:"rate_allowance"`
	LockupAllowance     string  `json:"lockup_allowance"`
	MaxLockupPeriod     int64   `json:"max_lockup_period"`
	CapacityTiBPerMonth float64 `json:"capacity_tib_per_month"`
	TransactionRef      string  `json:"transaction_ref"`
}

// ExecutionRecord is one row of the execution history.
type ExecutionRecord struct {
	ExecutionID    string    `json:"execution_id"`
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

// ExecutionHistoryResponse lists recent executions, newest first.
type ExecutionHistoryResponse struct {
	Network    string            `json:"network"`
	Address    string            `json:"address"`
	Executions []ExecutionRecord `json:"executions"`
}
