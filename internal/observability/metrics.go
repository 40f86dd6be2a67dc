// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal         *prometheus.CounterVec
	OperationLatency        *prometheus.HistogramVec
	StakedAmount            prometheus.Counter
	UnstakedAmount          prometheus.Counter
	VerificationTransitions *prometheus.CounterVec
	PoolBalance             prometheus.Gauge
	PoolTotalDeposited      prometheus.Gauge
	DistributionsTotal      prometheus.Counter

	// Event metrics
	EventsEmitted   *prometheus.CounterVec
	EventSinkErrors *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Mirror metrics
	AccountsSynced  *prometheus.CounterVec
	MirroredEvents  *prometheus.CounterVec
	HighestSlotSeen prometheus.Gauge
	RPCCallLatency  *prometheus.HistogramVec
	WSReconnects    prometheus.Counter

	// Health metrics
	LastSuccessfulDistribution prometheus.Gauge
	UptimeSeconds              prometheus.GaugeFunc
}

var startedAt = time.Now()

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "chainproof"
	}

	return &Metrics{
		// Ledger metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and result",
		}, []string{"operation", "result"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds, storage included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StakedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "staked_amount_total",
			Help:      "Total token amount moved into stake vaults",
		}),
		UnstakedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "unstaked_amount_total",
			Help:      "Total token amount returned from stake vaults",
		}),
		VerificationTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "verification_transitions_total",
			Help:      "Project verification transitions by direction",
		}, []string{"direction"}),
		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "pool_balance",
			Help:      "Reward pool custodial balance at the last pool operation",
		}),
		PoolTotalDeposited: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "pool_total_deposited",
			Help:      "Reward pool lifetime deposits",
		}),
		DistributionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "distributions_total",
			Help:      "Total number of reward distributions recorded",
		}),

		// Event metrics
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total number of events emitted by name",
		}, []string{"name"}),
		EventSinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "sink_errors_total",
			Help:      "Total number of failed event sink writes",
		}, []string{"sink"}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Mirror metrics
		AccountsSynced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "accounts_synced_total",
			Help:      "Total number of on-chain accounts imported by kind",
		}, []string{"kind"}),
		MirroredEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "events_total",
			Help:      "Total number of on-chain program events decoded by name",
		}, []string{"name"}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total websocket reconnect attempts",
		}),

		// Health metrics
		LastSuccessfulDistribution: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_distribution_timestamp",
			Help:      "Unix timestamp of the last recorded distribution",
		}),
		UptimeSeconds: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		}, func() float64 { return time.Since(startedAt).Seconds() }),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one ledger operation and its outcome.
// result is "ok", or the error name for rejected operations.
func RecordOperation(operation, result string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, result).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordStake adds to the staked amount counter.
func RecordStake(amount uint64) {
	DefaultMetrics.StakedAmount.Add(float64(amount))
}

// RecordUnstake adds to the unstaked amount counter.
func RecordUnstake(amount uint64) {
	DefaultMetrics.UnstakedAmount.Add(float64(amount))
}

// RecordVerification records a project crossing the verification threshold.
func RecordVerification(verified bool) {
	direction := "revoked"
	if verified {
		direction = "verified"
	}
	DefaultMetrics.VerificationTransitions.WithLabelValues(direction).Inc()
}

// UpdatePool updates the reward pool gauges.
func UpdatePool(balance, totalDeposited uint64) {
	DefaultMetrics.PoolBalance.Set(float64(balance))
	DefaultMetrics.PoolTotalDeposited.Set(float64(totalDeposited))
}

// RecordDistribution records a distribution at cycle timestamp ts.
func RecordDistribution(ts int64) {
	DefaultMetrics.DistributionsTotal.Inc()
	DefaultMetrics.LastSuccessfulDistribution.Set(float64(ts))
}

// RecordEventEmitted increments the emitted events counter.
func RecordEventEmitted(name string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(name).Inc()
}

// RecordEventSinkError records a failed write to an event sink.
func RecordEventSinkError(sink string) {
	DefaultMetrics.EventSinkErrors.WithLabelValues(sink).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, method string, status int, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	DefaultMetrics.HTTPLatency.WithLabelValues(route).Observe(seconds)
}

// RecordAccountSynced increments the synced accounts counter.
func RecordAccountSynced(kind string) {
	DefaultMetrics.AccountsSynced.WithLabelValues(kind).Inc()
}

// RecordMirroredEvent increments the mirrored events counter.
func RecordMirroredEvent(name string) {
	DefaultMetrics.MirroredEvents.WithLabelValues(name).Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSReconnect increments the websocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}
