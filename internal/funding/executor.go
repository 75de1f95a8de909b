package funding

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PayRunway/internal/event"
	pmath "PayRunway/internal/math"
	"PayRunway/internal/observability"
	"PayRunway/internal/payments"
)

// ExecutionResult is what happened when a plan was executed.
type ExecutionResult struct {
	ID       uuid.UUID
	Adjusted bool
	Action   Action

	// Delta is the requested change; ObservedDelta is what the re-read
	// snapshot shows. They differ while the transaction is pending.
	Delta          *big.Int
	ObservedDelta  *big.Int
	TransactionRef string

	NewDeposited *big.Int
	NewRunway    payments.RunwaySummary
	Pending      bool

	// Warnings are non-fatal: a failed recheck, publish or record, or the
	// reason a plan was not submitted.
	Warnings []string
}

// Executor submits a plan's deposit or withdrawal and reconciles it against
// a freshly read snapshot. It keeps no state between calls.
type Executor struct {
	params    payments.Params
	reader    AccountReader
	mover     FundsMover
	publisher EventPublisher
	recorder  ExecutionRecorder
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewExecutor(params payments.Params, reader AccountReader, mover FundsMover, logger zerolog.Logger) *Executor {
	return &Executor{
		params: params,
		reader: reader,
		mover:  mover,
		logger: logger,
		now:    time.Now,
	}
}

// WithPublisher sets the event publisher. Publish failures become warnings.
func (e *Executor) WithPublisher(p EventPublisher) *Executor {
	e.publisher = p
	return e
}

// WithRecorder sets the execution history recorder. Record failures become warnings.
func (e *Executor) WithRecorder(r ExecutionRecorder) *Executor {
	e.recorder = r
	return e
}

func (e *Executor) WithMetrics(m *observability.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithClock overrides time.Now.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Execute carries out plan. A plan with action none, a wallet shortfall or a
// crossed deposit ceiling is not submitted and returns Adjusted=false without
// error. Errors from the submit call are returned unchanged apart from context.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*ExecutionResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("execute: nil plan: %w", pmath.ErrInvalidArgument)
	}

	result := &ExecutionResult{
		ID:            uuid.New(),
		Action:        plan.Action,
		Delta:         pmath.Copy(plan.Delta),
		ObservedDelta: new(big.Int),
		NewDeposited:  pmath.Copy(plan.Current.Deposited),
		NewRunway:     plan.Current.Runway,
	}

	log := e.logger.With().
		Str("execution_id", result.ID.String()).
		Str("network", plan.Network).
		Str("address", plan.Address.Hex()).
		Str("action", string(plan.Action)).
		Str("delta", plan.Delta.String()).
		Logger()

	if plan.Action == ActionNone {
		log.Debug().Str("reason", string(plan.Reason)).Msg("nothing to execute")
		e.countExecution(plan, "noop")
		return result, nil
	}

	if plan.NeedsFunds() {
		e.skip(ctx, plan, result, log)
		return result, nil
	}

	start := e.now()
	var err error
	switch plan.Action {
	case ActionDeposit:
		result.TransactionRef, err = e.mover.SubmitDeposit(ctx, plan.Delta)
	case ActionWithdraw:
		result.TransactionRef, err = e.mover.SubmitWithdraw(ctx, new(big.Int).Neg(plan.Delta))
	default:
		return nil, fmt.Errorf("execute: unknown action %q: %w", plan.Action, pmath.ErrInvalidArgument)
	}
	if err != nil {
		log.Error().Err(err).Msg("submit failed")
		e.countExecution(plan, "failed")
		return nil, fmt.Errorf("submit %s of %s: %w", plan.Action, plan.Delta, err)
	}
	result.Adjusted = true

	log.Info().Str("tx", result.TransactionRef).Msg("funds submitted")

	e.reconcile(ctx, plan, result, log)

	if e.metrics != nil {
		e.metrics.ExecutionDuration.WithLabelValues(plan.Network, string(plan.Action)).
			Observe(e.now().Sub(start).Seconds())
	}

	executed := &event.FundingExecuted{
		ExecutionID:    result.ID,
		NetworkName:    plan.Network,
		Address:        plan.Address.Hex(),
		Action:         string(plan.Action),
		Mode:           string(plan.Mode),
		TargetType:     string(plan.TargetType),
		RequestedDelta: result.Delta.String(),
		ObservedDelta:  result.ObservedDelta.String(),
		TransactionRef: result.TransactionRef,
		NewDeposited:   result.NewDeposited.String(),
		RunwayDays:     result.NewRunway.Days,
		Pending:        result.Pending,
		Warnings:       append([]string(nil), result.Warnings...),
		ExecutedAt:     e.now().UTC(),
	}

	if e.recorder != nil {
		if err := e.recorder.RecordExecution(ctx, executed); err != nil {
			e.warn(plan, result, "record", fmt.Sprintf("execution history not recorded: %v", err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, executed); err != nil {
			e.warn(plan, result, "publish", fmt.Sprintf("execution event not published: %v", err))
		}
	}

	outcome := "confirmed"
	if result.Pending {
		outcome = "pending"
	}
	e.countExecution(plan, outcome)

	log.Info().
		Str("tx", result.TransactionRef).
		Str("new_deposited", result.NewDeposited.String()).
		Int64("runway_days", result.NewRunway.Days).
		Bool("pending", result.Pending).
		Msg("funding executed")

	return result, nil
}

// reconcile re-reads the account and compares the observed deposit change
// with the requested one. The plan's projection is never trusted.
func (e *Executor) reconcile(ctx context.Context, plan *Plan, result *ExecutionResult, log zerolog.Logger) {
	fresh, err := e.reader.FetchAccountSnapshot(ctx, plan.Address)
	if err != nil {
		result.Pending = true
		result.NewDeposited = pmath.Copy(plan.Projected.Deposited)
		result.NewRunway = plan.Projected.Runway
		e.warn(plan, result, "recheck", fmt.Sprintf("balance re-check failed, showing projected values: %v", err))
		log.Warn().Err(err).Msg("re-check after submit failed")
		return
	}

	result.NewDeposited = fresh.Deposited()
	result.NewRunway = payments.CalculateStorageRunway(e.params, fresh)
	result.ObservedDelta = new(big.Int).Sub(result.NewDeposited, plan.Current.Deposited)

	if result.ObservedDelta.Cmp(plan.Delta) != 0 {
		result.Pending = true
		if e.metrics != nil {
			e.metrics.PendingReconcile.WithLabelValues(plan.Network).Inc()
		}
		log.Warn().
			Str("observed_delta", result.ObservedDelta.String()).
			Msg("observed deposit change differs from request, transaction may be pending")
	}

	if e.metrics != nil && result.NewRunway.State == payments.RunwayActive {
		e.metrics.ObserveRunway(plan.Network, plan.Address.Hex(), result.NewRunway.DaysFloat())
	}
}

func (e *Executor) skip(ctx context.Context, plan *Plan, result *ExecutionResult, log zerolog.Logger) {
	if plan.WalletShortfall.Sign() > 0 {
		e.warn(plan, result, "wallet_shortfall", fmt.Sprintf(
			"wallet needs %s more tokens to deposit %s",
			pmath.FormatTokens(plan.WalletShortfall), pmath.FormatTokens(plan.Delta)))
		if e.metrics != nil {
			e.metrics.WalletShortfall.WithLabelValues(plan.Network).Inc()
		}
	}
	if plan.CeilingExceeded {
		e.warn(plan, result, "ceiling", fmt.Sprintf(
			"deposit of %s would exceed the configured deposit ceiling", pmath.FormatTokens(plan.Delta)))
	}
	log.Warn().Strs("warnings", result.Warnings).Msg("plan not executed")
	e.countExecution(plan, "skipped")

	if e.publisher == nil {
		return
	}
	skipped := &event.FundingSkipped{
		ExecutionID:     result.ID,
		NetworkName:     plan.Network,
		Address:         plan.Address.Hex(),
		Action:          string(plan.Action),
		RequestedDelta:  plan.Delta.String(),
		WalletShortfall: plan.WalletShortfall.String(),
		CeilingExceeded: plan.CeilingExceeded,
		SkippedAt:       e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, skipped); err != nil {
		e.warn(plan, result, "publish", fmt.Sprintf("skip event not published: %v", err))
	}
}

func (e *Executor) warn(plan *Plan, result *ExecutionResult, kind, msg string) {
	result.Warnings = append(result.Warnings, msg)
	if e.metrics != nil {
		e.metrics.ExecutionWarnings.WithLabelValues(plan.Network, kind).Inc()
	}
}

func (e *Executor) countExecution(plan *Plan, outcome string) {
	if e.metrics != nil {
		e.metrics.Executions.WithLabelValues(plan.Network, string(plan.Action), outcome).Inc()
	}
}
