package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PayRunway.
type Metrics struct {
	// --- Planning ---
	PlansComputed   *prometheus.CounterVec
	WalletShortfall *prometheus.CounterVec
	RunwayDays      *prometheus.GaugeVec

	// --- Execution ---
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	PendingReconcile  *prometheus.CounterVec
	ExecutionWarnings *prometheus.CounterVec
	ExecutionReplays  *prometheus.CounterVec

	// --- Chain ---
	ChainCalls        *prometheus.CounterVec
	ChainCallDuration *prometheus.HistogramVec

	// --- Keeper ---
	KeeperRuns *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg. Pass
// prometheus.DefaultRegisterer in the daemon and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	chainBuckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	return &Metrics{
		// Planning
		PlansComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_plans_computed_total",
			Help: "Funding plans computed",
		}, []string{"network", "mode", "action", "reason"}),

		WalletShortfall: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_wallet_shortfall_total",
			Help: "Plans whose deposit exceeded the wallet balance",
		}, []string{"network"}),

		RunwayDays: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payrunway_runway_days",
			Help: "Last observed runway in days",
		}, []string{"network", "address"}),

		// Execution
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_executions_total",
			Help: "Funding executions by action and outcome",
		}, []string{"network", "action", "outcome"}),

		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payrunway_execution_duration_seconds",
			Help:    "Submit to reconciled snapshot",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"network", "action"}),

		PendingReconcile: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_pending_reconciliations_total",
			Help: "Executions whose observed delta differed from the requested delta",
		}, []string{"network"}),

		ExecutionWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_execution_warnings_total",
			Help: "Non-fatal execution warnings",
		}, []string{"network", "kind"}),

		ExecutionReplays: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_execution_replays_total",
			Help: "Executions answered from the idempotency cache",
		}, []string{"network"}),

		// Chain
		ChainCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_chain_calls_total",
			Help: "Calls to the chain RPC endpoint",
		}, []string{"method", "status"}),

		ChainCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payrunway_chain_call_duration_seconds",
			Help:    "Chain RPC call latency",
			Buckets: chainBuckets,
		}, []string{"method"}),

		// Keeper
		KeeperRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_keeper_runs_total",
			Help: "Keeper job runs",
		}, []string{"outcome"}),

		// Query API
		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payrunway_query_duration_seconds",
			Help:    "Query latency",
			Buckets: chainBuckets,
		}, []string{"endpoint"}),

		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrunway_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// ObserveRunway records the runway gauge for an account.
func (m *Metrics) ObserveRunway(network, address string, days float64) {
	m.RunwayDays.WithLabelValues(network, address).Set(days)
}
