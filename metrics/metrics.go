// Package metrics mirrors the engine's stats keys (spec §6: stats:search:count,
// stats:search:latency, stats:cache:hitrate, stats:errors:{type}) into
// Prometheus counters/histograms, so callers can register them on their own
// /metrics handler without the engine owning an HTTP surface of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the engine emits.
type Metrics struct {
	SearchCount    *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec
	SearchErrors   *prometheus.CounterVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	IndexWrites    *prometheus.CounterVec
	IndexErrors    *prometheus.CounterVec
	IndexEpoch     prometheus.Gauge
	RepairQueue    prometheus.Gauge
	RebuildCount   prometheus.Counter
	MaintenanceDur *prometheus.HistogramVec
}

// New constructs and registers the engine's metrics under namespace, the
// same NewMetrics(namespace)-plus-promauto shape the teacher uses, trimmed
// to the families spec §6 actually names.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "propertysearch"
	}

	return &Metrics{
		SearchCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "count_total",
			Help:      "Total number of search() calls, by strategy.",
		}, []string{"strategy"}),

		SearchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "search() latency in seconds, by strategy.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),

		SearchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "total",
			Help:      "Errors by apperr.Kind, across all public operations.",
		}, []string{"kind"}),

		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Search-cache hits by tier (l1/l2).",
		}, []string{"tier"}),

		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Search-cache misses by tier (l1/l2).",
		}, []string{"tier"}),

		IndexWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "writes_total",
			Help:      "Maintainer writes by operation (on_property_created, ...).",
		}, []string{"operation"}),

		IndexErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "errors_total",
			Help:      "Maintainer failures by operation.",
		}, []string{"operation"}),

		IndexEpoch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "epoch",
			Help:      "Current index-version epoch.",
		}),

		RepairQueue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "repair_queue_length",
			Help:      "Number of property ids currently queued for repair.",
		}),

		RebuildCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "total",
			Help:      "Number of completed full-index rebuilds.",
		}),

		MaintenanceDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "step_duration_seconds",
			Help:      "Duration of each maintenance step (health/sweep/deep/...).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}
}

// ObserveCacheHit / ObserveCacheMiss count one cache hit or miss under
// tier. No hit-rate gauge is kept; stats:cache:hitrate is derived from
// these two counters.
func (m *Metrics) ObserveCacheHit(tier string)  { m.CacheHits.WithLabelValues(tier).Inc() }
func (m *Metrics) ObserveCacheMiss(tier string) { m.CacheMisses.WithLabelValues(tier).Inc() }
