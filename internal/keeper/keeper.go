package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"PayRunway/internal/funding"
	"PayRunway/internal/observability"
)

// Planner builds a plan from freshly fetched account state.
type Planner interface {
	BuildPlan(ctx context.Context, addr common.Address, opts funding.Options) (*funding.Plan, error)
}

// PlanExecutor carries out a plan.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *funding.Plan) (*funding.ExecutionResult, error)
}

// Job is the account the keeper keeps funded and the target it funds to.
type Job struct {
	Schedule string
	Address  common.Address
	Options  funding.Options
	// Timeout bounds a single run. Zero means one minute.
	Timeout time.Duration
}

// Keeper periodically plans and executes funding for one account.
type Keeper struct {
	cron     *cron.Cron
	job      Job
	planner  Planner
	executor PlanExecutor
	metrics  *observability.Metrics
	logger   zerolog.Logger
	ctx      context.Context
}

func New(job Job, planner Planner, executor PlanExecutor, logger zerolog.Logger) (*Keeper, error) {
	if _, err := job.Options.Resolve(); err != nil {
		return nil, fmt.Errorf("keeper job: %w", err)
	}
	if job.Timeout <= 0 {
		job.Timeout = time.Minute
	}
	cl := cronLogger{logger: logger}
	k := &Keeper{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:      job,
		planner:  planner,
		executor: executor,
		logger:   logger,
		ctx:      context.Background(),
	}
	if _, err := k.cron.AddFunc(job.Schedule, k.run); err != nil {
		return nil, fmt.Errorf("keeper schedule %q: %w", job.Schedule, err)
	}
	return k, nil
}

func (k *Keeper) WithMetrics(m *observability.Metrics) *Keeper {
	k.metrics = m
	return k
}

// Start runs the schedule until ctx is done, then waits for a running job.
func (k *Keeper) Start(ctx context.Context) error {
	k.ctx = ctx
	k.cron.Start()
	k.logger.Info().
		Str("schedule", k.job.Schedule).
		Str("address", k.job.Address.Hex()).
		Msg("keeper started")

	<-ctx.Done()
	<-k.cron.Stop().Done()
	k.logger.Info().Msg("keeper stopped")
	return nil
}

func (k *Keeper) run() {
	ctx, cancel := context.WithTimeout(k.ctx, k.job.Timeout)
	defer cancel()
	if _, err := k.RunOnce(ctx); err != nil {
		k.logger.Error().Err(err).Msg("keeper run failed")
	}
}

// RunOnce plans and, when the plan calls for it, executes. The result is nil
// when nothing was submitted.
func (k *Keeper) RunOnce(ctx context.Context) (*funding.ExecutionResult, error) {
	plan, err := k.planner.BuildPlan(ctx, k.job.Address, k.job.Options)
	if err != nil {
		k.count("error")
		return nil, fmt.Errorf("keeper plan: %w", err)
	}
	if plan.Action == funding.ActionNone {
		k.logger.Debug().
			Int64("runway_days", plan.Current.Runway.Days).
			Msg("keeper: account within target")
		k.count("noop")
		return nil, nil
	}
	if k.executor == nil {
		k.count("error")
		return nil, fmt.Errorf("keeper: %s of %s planned but no executor configured", plan.Action, plan.Delta)
	}

	result, err := k.executor.Execute(ctx, plan)
	if err != nil {
		k.count("error")
		return nil, fmt.Errorf("keeper execute: %w", err)
	}
	outcome := "ok"
	if !result.Adjusted {
		outcome = "skipped"
	}
	k.count(outcome)
	return result, nil
}

func (k *Keeper) count(outcome string) {
	if k.metrics != nil {
		k.metrics.KeeperRuns.WithLabelValues(outcome).Inc()
	}
}

// cronLogger routes cron's own logging into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
