package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Operation log metrics
	OpsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossipdb_ops_ingested_total",
			Help: "Total number of operations ingested, by outcome",
		},
		[]string{"outcome"}, // accepted, duplicate, invalid_signature, publisher_mismatch, backend_error
	)

	OpIngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gossipdb_op_ingest_duration_seconds",
			Help:    "Time taken to ingest a single operation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossipdb_cache_hits_total",
			Help: "Total cache hits by tier",
		},
		[]string{"tier"}, // hot, warm
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gossipdb_cache_misses_total",
			Help: "Total cache misses",
		},
	)

	// Sync engine metrics
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossipdb_broadcasts_total",
			Help: "Total operation broadcasts to peers by outcome",
		},
		[]string{"outcome"}, // sent, failed
	)

	AntiEntropyRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossipdb_anti_entropy_rounds_total",
			Help: "Total anti-entropy rounds by outcome",
		},
		[]string{"outcome"}, // completed, failed, timeout
	)

	AntiEntropyPulledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gossipdb_anti_entropy_ops_pulled_total",
			Help: "Total operations pulled during anti-entropy reconciliation",
		},
	)

	SyncRoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gossipdb_sync_round_duration_seconds",
			Help:    "Time taken for an anti-entropy round",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Resilience metrics
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gossipdb_circuit_breaker_state",
			Help: "Circuit breaker state per peer (0=closed, 1=half_open, 2=open)",
		},
		[]string{"peer_id"},
	)

	PeerReputation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gossipdb_peer_reputation",
			Help: "Reputation score per peer, 0-100",
		},
		[]string{"peer_id"},
	)

	ThrottledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gossipdb_throttled_total",
			Help: "Total sends dropped by the bandwidth governor",
		},
	)

	// Peer discovery metrics
	PeersKnownTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gossipdb_peers_known_total",
			Help: "Total number of peers currently in the peer table",
		},
	)

	PeerAnnouncementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossipdb_peer_announcements_total",
			Help: "Total peer announcements received by outcome",
		},
		[]string{"outcome"}, // accepted, duplicate, invalid_signature, node_id_mismatch
	)
)

func init() {
	prometheus.MustRegister(
		OpsIngestedTotal,
		OpIngestDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		BroadcastsTotal,
		AntiEntropyRoundsTotal,
		AntiEntropyPulledTotal,
		SyncRoundDuration,
		CircuitBreakerState,
		PeerReputation,
		ThrottledTotal,
		PeersKnownTotal,
		PeerAnnouncementsTotal,
	)
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
