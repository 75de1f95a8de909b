package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"PayRunway/internal/account"
	"PayRunway/internal/event"
	"PayRunway/internal/funding"
	pmath "PayRunway/internal/math"
	"PayRunway/internal/observability"
	"PayRunway/internal/payments"
)

var (
	// ErrInvalidAddress is returned for a malformed account address.
	ErrInvalidAddress = fmt.Errorf("invalid address: %w", pmath.ErrInvalidArgument)

	// ErrForeignAccount is returned when execution is requested for an
	// account other than the one the service signs for.
	ErrForeignAccount = errors.New("account is not the signing account")

	// ErrReadOnly is returned for executions when no signing key is configured.
	ErrReadOnly = errors.New("execution is not configured, service is read-only")
)

// Chain is everything the service needs from the network.
type Chain interface {
	funding.AccountReader
	funding.PriceReader
	funding.FundsMover
	funding.AllowanceSetter
}

// History lists recorded executions.
type History interface {
	ListExecutions(ctx context.Context, network, address string, limit int) ([]*event.FundingExecuted, error)
}

// QueryService answers runway, planning and capacity questions against
// freshly read chain state. Chain state is never cached between calls.
type QueryService struct {
	params   payments.Params
	chain    Chain
	executor *funding.Executor
	history  History
	network  string
	owner    common.Address
	planOpts funding.PlanOptions
	replays  *ReplayCache
	metrics  *observability.Metrics
}

func NewQueryService(params payments.Params, network string, chain Chain, executor *funding.Executor, history History) *QueryService {
	return &QueryService{
		params:   params,
		network:  network,
		chain:    chain,
		executor: executor,
		history:  history,
	}
}

// WithOwner restricts execution to the signing account. A zero address
// leaves execution unrestricted.
func (qs *QueryService) WithOwner(owner common.Address) *QueryService {
	qs.owner = owner
	return qs
}

func (qs *QueryService) WithPlanOptions(opts funding.PlanOptions) *QueryService {
	qs.planOpts = opts
	return qs
}

// WithReplayCache enables idempotency keys on ExecuteFundingOnce.
func (qs *QueryService) WithReplayCache(c *ReplayCache) *QueryService {
	qs.replays = c
	return qs
}

func (qs *QueryService) WithMetrics(m *observability.Metrics) *QueryService {
	qs.metrics = m
	return qs
}

// Params returns the network parameters the service evaluates against.
func (qs *QueryService) Params() payments.Params {
	return qs.params
}

// ParseAddress validates a hex account address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q: %w", s, ErrInvalidAddress)
	}
	return common.HexToAddress(s), nil
}

// GetRunway returns the account's current runway.
func (qs *QueryService) GetRunway(ctx context.Context, addr common.Address) (*RunwayResponse, error) {
	snap, err := qs.chain.FetchAccountSnapshot(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	runway := payments.CalculateStorageRunway(qs.params, snap)
	if qs.metrics != nil && runway.State == payments.RunwayActive {
		qs.metrics.ObserveRunway(qs.network, addr.Hex(), runway.DaysFloat())
	}

	return &RunwayResponse{
		Network:          qs.network,
		Address:          addr.Hex(),
		State:            string(runway.State),
		Days:             runway.Days,
		Hours:            runway.Hours,
		Deposited:        runway.Deposited.String(),
		Available:        runway.Available.String(),
		LockupUsed:       runway.LockupUsed.String(),
		RateUsed:         runway.RateUsed.String(),
		DailyBurn:        runway.DailyBurn.String(),
		Wallet:           pmath.Copy(snap.WalletTokenBalance).String(),
		DepositedDisplay: pmath.FormatTokens(runway.Deposited),
		FetchedAt:        snap.FetchedAt,
	}, nil
}

// ToOptions converts a request body into planning options.
func (r FundingRequest) ToOptions() (funding.Options, error) {
	opts := funding.Options{TargetRunwayDays: r.TargetRunwayDays}

	mode, err := funding.ParseMode(r.Mode)
	if err != nil {
		return funding.Options{}, err
	}
	opts.Mode = mode

	if r.TargetDeposit != "" {
		if opts.TargetDeposit, err = pmath.ParseAmount(r.TargetDeposit); err != nil {
			return funding.Options{}, fmt.Errorf("target_deposit: %w", err)
		}
	}
	if r.PieceSize != "" {
		if opts.PieceSizeBytes, err = pmath.ParseSize(r.PieceSize); err != nil {
			return funding.Options{}, fmt.Errorf("piece_size: %w", err)
		}
	}
	return opts, nil
}

// PlanFunding computes the plan for opts without executing it. A piece
// without a price is priced at the current list price.
func (qs *QueryService) PlanFunding(ctx context.Context, addr common.Address, opts funding.Options) (*PlanResponse, error) {
	plan, err := qs.plan(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	resp := planResponse(plan)
	return &resp, nil
}

// ExecuteFunding plans and executes in one call.
func (qs *QueryService) ExecuteFunding(ctx context.Context, addr common.Address, opts funding.Options) (*ExecutionResponse, error) {
	if qs.executor == nil {
		return nil, ErrReadOnly
	}
	if qs.owner != (common.Address{}) && addr != qs.owner {
		return nil, fmt.Errorf("execute for %s: %w", addr.Hex(), ErrForeignAccount)
	}

	plan, err := qs.plan(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	result, err := qs.executor.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	return &ExecutionResponse{
		Plan:           planResponse(plan),
		ExecutionID:    result.ID.String(),
		Adjusted:       result.Adjusted,
		Action:         string(result.Action),
		Delta:          result.Delta.String(),
		ObservedDelta:  result.ObservedDelta.String(),
		TransactionRef: result.TransactionRef,
		NewDeposited:   result.NewDeposited.String(),
		NewRunwayDays:  result.NewRunway.Days,
		NewRunwayHours: result.NewRunway.Hours,
		Pending:        result.Pending,
		Warnings:       result.Warnings,
	}, nil
}

// ExecuteFundingOnce is ExecuteFunding keyed by a caller-chosen idempotency
// key. A repeated key returns the first response without executing again.
// An empty key or no replay cache executes unconditionally.
func (qs *QueryService) ExecuteFundingOnce(ctx context.Context, addr common.Address, opts funding.Options, key string) (*ExecutionResponse, error) {
	if key == "" || qs.replays == nil {
		return qs.ExecuteFunding(ctx, addr, opts)
	}
	composite := addr.Hex() + ":" + key

	cached, err := qs.replays.Begin(composite)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if qs.metrics != nil {
			qs.metrics.ExecutionReplays.WithLabelValues(qs.network).Inc()
		}
		return cached, nil
	}

	resp, err := qs.ExecuteFunding(ctx, addr, opts)
	if err != nil {
		qs.replays.Abort(composite)
		return nil, err
	}
	qs.replays.Complete(composite, resp)
	return resp, nil
}

// BuildPlan fetches fresh state and computes a plan. Exported for the keeper.
func (qs *QueryService) BuildPlan(ctx context.Context, addr common.Address, opts funding.Options) (*funding.Plan, error) {
	return qs.plan(ctx, addr, opts)
}

// Executor returns the configured executor, nil when read-only.
func (qs *QueryService) Executor() *funding.Executor {
	return qs.executor
}

func (qs *QueryService) plan(ctx context.Context, addr common.Address, opts funding.Options) (*funding.Plan, error) {
	needPrice := opts.PieceSizeBytes != nil && opts.PricePerTiBPerEpoch == nil
	snap, price, err := qs.fetch(ctx, addr, needPrice)
	if err != nil {
		return nil, err
	}
	if needPrice {
		opts.PricePerTiBPerEpoch = price
	}

	req, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	plan, err := funding.BuildPlan(qs.params, snap, req, qs.planOpts)
	if err != nil {
		return nil, err
	}

	if qs.metrics != nil {
		qs.metrics.PlansComputed.WithLabelValues(qs.network, string(plan.Mode), string(plan.Action), string(plan.Reason)).Inc()
		if plan.WalletShortfall.Sign() > 0 {
			qs.metrics.WalletShortfall.WithLabelValues(qs.network).Inc()
		}
	}
	return plan, nil
}

// GetCapacity returns the TiB amount keeps stored for days, or, with days
// zero, the TiB it sustains once the lockup window is reserved.
func (qs *QueryService) GetCapacity(ctx context.Context, amount *big.Int, days float64) (*CapacityResponse, error) {
	price, err := qs.chain.FetchCurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}

	var tib float64
	if days > 0 {
		tib, err = payments.CalculateCapacityForDuration(qs.params, amount, price, days)
	} else {
		tib, err = payments.CalculateStorageFromTokens(qs.params, amount, price)
	}
	if err != nil {
		return nil, err
	}

	return &CapacityResponse{
		Amount:              amount.String(),
		DurationDays:        days,
		PricePerTiBPerEpoch: price.String(),
		CapacityTiB:         tib,
		CapacityDisplay:     formatTiB(tib),
	}, nil
}

// CheckUpload reports whether a piece of sizeBytes fits the account now and
// how long the remaining headroom could keep it stored. Both answers charge
// the piece at the floor-priced rate.
func (qs *QueryService) CheckUpload(ctx context.Context, addr common.Address, sizeBytes *big.Int) (*UploadCheckResponse, error) {
	snap, price, err := qs.fetch(ctx, addr, true)
	if err != nil {
		return nil, err
	}

	check, err := payments.CheckUploadAffordability(qs.params, snap, sizeBytes, price)
	if err != nil {
		return nil, err
	}
	rate, lockup := headroom(qs.params, snap)
	duration, err := payments.CalculateMaxDurationForFileSize(qs.params, payments.MaxDurationInput{
		FileSizeBytes:       sizeBytes,
		RateAllowance:       rate,
		LockupAllowance:     lockup,
		PricePerTiBPerEpoch: price,
		ApplyFloor:          true,
	})
	if err != nil {
		return nil, err
	}

	return &UploadCheckResponse{
		Network:                 qs.network,
		Address:                 addr.Hex(),
		SizeBytes:               sizeBytes.String(),
		Affordable:              check.Affordable,
		InsufficientDeposit:     check.InsufficientDeposit.String(),
		RequiredRate:            check.RequiredRate.String(),
		RequiredLockup:          check.RequiredLockup.String(),
		RateAllowanceExceeded:   check.RateAllowanceExceeded,
		LockupAllowanceExceeded: check.LockupAllowanceExceeded,
		MaxDurationDays:         duration.MaxDurationDays,
		DurationLimitedBy:       string(duration.LimitingFactor),
	}, nil
}

// MaxUpload returns the largest piece the account's remaining headroom
// accepts at the current price.
func (qs *QueryService) MaxUpload(ctx context.Context, addr common.Address) (*MaxUploadResponse, error) {
	snap, price, err := qs.fetch(ctx, addr, true)
	if err != nil {
		return nil, err
	}

	rate, lockup := headroom(qs.params, snap)
	limit, err := payments.CalculateMaxUploadableFileSize(qs.params, payments.MaxUploadInput{
		RateAllowance:       rate,
		LockupAllowance:     lockup,
		PricePerTiBPerEpoch: price,
	})
	if err != nil {
		return nil, err
	}

	return &MaxUploadResponse{
		Network:        qs.network,
		Address:        addr.Hex(),
		MaxSizeBytes:   limit.MaxSizeBytes.String(),
		MaxSizeTiB:     limit.MaxSizeTiB,
		MaxSizeDisplay: pmath.FormatSize(limit.MaxSizeBytes),
		LimitingFactor: string(limit.LimitingFactor),
	}, nil
}

// SetAllowances authorizes the storage service for capacityTiB per month at
// the current price, never below the floor.
func (qs *QueryService) SetAllowances(ctx context.Context, capacityTiB float64) (*AllowanceResponse, error) {
	price, err := qs.chain.FetchCurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}
	pair, err := payments.CalculateStorageAllowances(qs.params, capacityTiB, price)
	if err != nil {
		return nil, err
	}
	pair = payments.ApplyFloorPricing(qs.params, pair)

	ref, err := qs.chain.SetAllowances(ctx, pair.RateAllowance, pair.LockupAllowance, qs.params.LockupEpochs())
	if err != nil {
		return nil, fmt.Errorf("set allowances: %w", err)
	}

	return &AllowanceResponse{
		RateAllowance:       pair.RateAllowance.String(),
		LockupAllowance:     pair.LockupAllowance.String(),
		MaxLockupPeriod:     qs.params.LockupEpochs(),
		CapacityTiBPerMonth: pair.CapacityTiBPerMonth,
		TransactionRef:      ref,
	}, nil
}

// ListExecutions returns the most recent executions for addr.
func (qs *QueryService) ListExecutions(ctx context.Context, addr common.Address, limit int) (*ExecutionHistoryResponse, error) {
	resp := &ExecutionHistoryResponse{
		Network:    qs.network,
		Address:    addr.Hex(),
		Executions: []ExecutionRecord{},
	}
	if qs.history == nil {
		return resp, nil
	}

	rows, err := qs.history.ListExecutions(ctx, qs.network, addr.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	for _, r := range rows {
		resp.Executions = append(resp.Executions, ExecutionRecord{
			ExecutionID:    r.ExecutionID.String(),
			Action:         r.Action,
			Mode:           r.Mode,
			TargetType:     r.TargetType,
			RequestedDelta: r.RequestedDelta,
			ObservedDelta:  r.ObservedDelta,
			TransactionRef: r.TransactionRef,
			NewDeposited:   r.NewDeposited,
			RunwayDays:     r.RunwayDays,
			Pending:        r.Pending,
			Warnings:       r.Warnings,
			ExecutedAt:     r.ExecutedAt,
		})
	}
	return resp, nil
}

// fetch reads the snapshot and, when asked, the price concurrently.
func (qs *QueryService) fetch(ctx context.Context, addr common.Address, withPrice bool) (*account.Snapshot, *big.Int, error) {
	var (
		snap  *account.Snapshot
		price *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if snap, err = qs.chain.FetchAccountSnapshot(gctx, addr); err != nil {
			return fmt.Errorf("fetch account: %w", err)
		}
		return nil
	})
	if withPrice {
		g.Go(func() error {
			var err error
			if price, err = qs.chain.FetchCurrentPrice(gctx); err != nil {
				return fmt.Errorf("fetch price: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return snap, price, nil
}

// headroom is the rate and lockup the account can still commit. Lockup is
// bounded by the available deposit as well as the allowance. An unset rate
// allowance is derived from the lockup headroom over the lockup window.
func headroom(p payments.Params, snap *account.Snapshot) (rate, lockup *big.Int) {
	lockup = snap.Available()
	if snap.Allowances.LockupAllowance != nil {
		left := pmath.ClampZero(new(big.Int).Sub(snap.Allowances.LockupAllowance, snap.LockupUsed()))
		lockup = pmath.Min(lockup, left)
	}
	if snap.Allowances.RateAllowance != nil {
		rate = pmath.ClampZero(new(big.Int).Sub(snap.Allowances.RateAllowance, snap.RateUsed()))
	} else {
		rate = new(big.Int).Div(lockup, big.NewInt(p.LockupEpochs()))
	}
	return rate, lockup
}

func planResponse(plan *funding.Plan) PlanResponse {
	return PlanResponse{
		Network:         plan.Network,
		Address:         plan.Address.Hex(),
		TargetType:      string(plan.TargetType),
		Mode:            string(plan.Mode),
		Action:          string(plan.Action),
		Reason:          string(plan.Reason),
		Delta:           plan.Delta.String(),
		DeltaDisplay:    pmath.FormatTokens(plan.Delta),
		WalletShortfall: plan.WalletShortfall.String(),
		CeilingExceeded: plan.CeilingExceeded,
		Current:         insightsResponse(plan.Current),
		Projected:       insightsResponse(plan.Projected),
	}
}

func insightsResponse(in funding.Insights) InsightsResponse {
	return InsightsResponse{
		RunwayDays:  in.Runway.Days,
		RunwayHours: in.Runway.Hours,
		RunwayState: string(in.Runway.State),
		Deposited:   in.Deposited.String(),
		Available:   in.Available.String(),
		DailyBurn:   in.DailyBurn.String(),
		LockupUsed:  in.LockupUsed.String(),
		Wallet:      in.WalletBalance.String(),
	}
}

func formatTiB(tib float64) string {
	s := fmt.Sprintf("%.4f", tib)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " TiB"
}

// Timed runs fn and records its latency and outcome under endpoint.
func (qs *QueryService) Timed(endpoint string, fn func() error) error {
	start := time.Now()
	err := fn()
	if qs.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
		qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
	return err
}
