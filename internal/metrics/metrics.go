package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Screening
	ScreeningCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_candidates_total",
			Help: "Candidates that passed each screening stage",
		},
		[]string{"stage"},
	)
	ScreeningErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screening_errors_total",
			Help: "Candidates skipped because of broker errors or missing data",
		},
	)

	// State machine
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_total",
			Help: "Emitted signals by type",
		},
		[]string{"type"},
	)
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_state_transitions_total",
			Help: "Watch record state transitions",
		},
		[]string{"from", "to"},
	)

	// Orders and positions
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Orders sent to the broker",
		},
		[]string{"side", "result"},
	)
	EntriesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_rejected_total",
			Help: "Entry attempts rejected before an order was sent",
		},
		[]string{"reason"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "open_positions",
			Help: "Currently open positions",
		},
	)

	// Controller
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cycle_duration_seconds",
			Help:    "Duration of a phase loop invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// Broker API
	BrokerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_api_requests_total",
			Help: "Total number of broker API requests",
		},
		[]string{"method", "status"},
	)
	BrokerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "broker_api_request_duration_seconds",
			Help: "Duration of broker API requests in seconds",
		},
		[]string{"method"},
	)
)

var initOnce sync.Once

// InitMetrics регистрирует метрики в default registry
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ScreeningCandidates,
			ScreeningErrors,
			SignalsTotal,
			StateTransitions,
			OrdersTotal,
			EntriesRejected,
			ExitsTotal,
			OpenPositions,
			CycleDuration,
			BrokerRequestsTotal,
			BrokerRequestDuration,
		)
	})
}
