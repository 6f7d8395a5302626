package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts bridge transfers by protocol and status
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_total",
			Help: "Total number of bridge transfers",
		},
		[]string{"protocol", "status"},
	)

	// TransferAmount tracks the amount of tokens transferred
	TransferAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transfer_amount",
			Help:    "Amount of tokens transferred",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000, 10000, 100000},
		},
		[]string{"protocol"},
	)

	// MintsTotal counts mints executed per chain
	MintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_mints_total",
			Help: "Total number of mints executed",
		},
		[]string{"chain", "protocol"},
	)

	// BurnsTotal counts burns executed per chain
	BurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_burns_total",
			Help: "Total number of burns executed",
		},
		[]string{"chain", "protocol"},
	)

	// RateLimitRejections counts rate limit rejections by operation and reason
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rate_limit_rejections_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"op", "reason"},
	)

	// ReplayRejections counts inbound deliveries rejected as replays
	ReplayRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_replay_rejections_total",
			Help: "Total number of inbound messages rejected as replays",
		},
		[]string{"protocol", "chain"},
	)

	// OracleVotes counts supply update votes accepted per chain
	OracleVotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_oracle_votes_total",
			Help: "Total number of oracle supply votes accepted",
		},
		[]string{"chain"},
	)

	// OracleUpdatesApplied counts threshold-reached supply updates per chain
	OracleUpdatesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_oracle_updates_applied_total",
			Help: "Total number of supply updates applied",
		},
		[]string{"chain"},
	)

	// SupplyDrift tracks the last reconciliation drift from expected supply
	SupplyDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_supply_drift",
			Help: "Absolute drift between reported circulating supply and expected supply",
		},
	)

	// ChainSupply tracks the last attested circulating supply per chain
	ChainSupply = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_chain_supply",
			Help: "Last attested circulating supply by chain",
		},
		[]string{"chain"},
	)

	// ComponentPaused reports the paused flag per component (1 = paused)
	ComponentPaused = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_component_paused",
			Help: "Whether a component is paused (1) or active (0)",
		},
		[]string{"component"},
	)

	// ReconciliationsTotal counts oracle reconciliation runs by outcome
	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_reconciliations_total",
			Help: "Total number of supply reconciliation runs",
		},
		[]string{"outcome"},
	)

	// DispatchDuration tracks outbound network dispatch duration per protocol
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_dispatch_duration_seconds",
			Help:    "Outbound message dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	// ErrorsTotal counts errors by component and kind
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "kind"},
	)
)
