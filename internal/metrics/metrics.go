// Package metrics registers the Prometheus instrumentation for a
// filemesh node: flood traffic, cache-coherence transitions, and
// transfer throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector a node registers against one registry.
type Metrics struct {
	MessagesForwarded  *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	DuplicatesDropped  *prometheus.CounterVec
	QueryLogSize       prometheus.Gauge
	CacheTransitions   *prometheus.CounterVec
	TestResponseLatency prometheus.Histogram
	TransferBytes      prometheus.Counter
}

// New registers a fresh set of collectors against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "messages_forwarded_total",
			Help:      "Routed messages forwarded, by kind.",
		}, []string{"kind"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "messages_dropped_total",
			Help:      "Routed messages dropped (no log entry, unknown kind, rate-limited), by reason.",
		}, []string{"reason"}),
		DuplicatesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "duplicate_messages_dropped_total",
			Help:      "Flood messages dropped by query-log duplicate suppression, by kind.",
		}, []string{"kind"}),
		QueryLogSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "filemesh",
			Name:      "query_log_entries",
			Help:      "Current number of live query-log entries.",
		}),
		CacheTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "cache_transitions_total",
			Help:      "Copy-entry validity transitions, by transition name.",
		}, []string{"transition"}),
		TestResponseLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "filemesh",
			Name:      "testresponse_latency_seconds",
			Help:      "Observed round-trip latency for the testresponse command.",
			Buckets:   prometheus.DefBuckets,
		}),
		TransferBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "transfer_bytes_total",
			Help:      "Total compressed shard bytes received across all transfer sessions.",
		}),
	}
}
