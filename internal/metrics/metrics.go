package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the NFT trade watcher
type Metrics struct {
	// Poll engine metrics
	PollCyclesTotal       *prometheus.CounterVec
	PollErrorsTotal       *prometheus.CounterVec
	PollCycleDuration     *prometheus.HistogramVec
	CollectionsPolled     *prometheus.GaugeVec
	TransactionsRecorded  prometheus.Counter
	DuplicateTransactions prometheus.Counter

	// Alert metrics
	AlertsSentTotal   prometheus.Counter
	AlertsFailedTotal prometheus.Counter

	// Gateway metrics
	GatewayRequestsTotal  *prometheus.CounterVec
	GatewayRateLimitWaits prometheus.Counter

	// Conversation metrics
	ConversationsStarted   *prometheus.CounterVec
	ConversationsCompleted *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		PollCyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nft_watcher_poll_cycles_total",
				Help: "Total number of poll cycles run",
			},
			[]string{"tier"},
		),
		PollErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nft_watcher_poll_errors_total",
				Help: "Total number of per-collection poll failures",
			},
			[]string{"tier"},
		),
		PollCycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nft_watcher_poll_cycle_duration_seconds",
				Help:    "Time spent in one poll cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tier"},
		),
		CollectionsPolled: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nft_watcher_collections_polled",
				Help: "Collections covered by the most recent cycle of a tier",
			},
			[]string{"tier"},
		),
		TransactionsRecorded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nft_watcher_transactions_recorded_total",
				Help: "Total number of new transactions recorded",
			},
		),
		DuplicateTransactions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nft_watcher_duplicate_transactions_total",
				Help: "Transactions skipped because they were already recorded",
			},
		),
		AlertsSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nft_watcher_alerts_sent_total",
				Help: "Total number of alerts delivered",
			},
		),
		AlertsFailedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nft_watcher_alerts_failed_total",
				Help: "Total number of alert deliveries that failed",
			},
		),
		GatewayRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nft_watcher_gateway_requests_total",
				Help: "Total outbound marketplace API requests",
			},
			[]string{"status"},
		),
		GatewayRateLimitWaits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nft_watcher_gateway_rate_limit_waits_total",
				Help: "Requests that waited on the local rate limit window",
			},
		),
		ConversationsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nft_watcher_conversations_started_total",
				Help: "Conversation flows started",
			},
			[]string{"flow"},
		),
		ConversationsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nft_watcher_conversations_completed_total",
				Help: "Conversation flows reaching a terminal state",
			},
			[]string{"flow", "outcome"},
		),
	}
}

// ObservePollCycle records the completion of one poll cycle.
func (m *Metrics) ObservePollCycle(tier string, collections int, duration time.Duration) {
	m.PollCyclesTotal.WithLabelValues(tier).Inc()
	m.CollectionsPolled.WithLabelValues(tier).Set(float64(collections))
	m.PollCycleDuration.WithLabelValues(tier).Observe(duration.Seconds())
}
