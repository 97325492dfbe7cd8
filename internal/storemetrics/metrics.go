// Package storemetrics exposes Prometheus instrumentation for the event
// store's components (C1-C7), grounded in the teacher's per-subsystem
// metrics files (internal/db/metrics.go, internal/reorg/metrics.go).
package storemetrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intervalMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstore_interval_merges_total",
			Help: "Total number of interval merge operations by component",
		},
		[]string{"component"},
	)

	intervalMergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventstore_interval_merge_duration_seconds",
			Help:    "Duration of interval merge operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	reorgsHandled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventstore_reorgs_handled_total",
			Help: "Total number of deleteRealtimeData calls handled",
		},
	)

	reorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventstore_reorg_depth_blocks",
			Help:    "Depth of handled reorgs in blocks, measured from the chain tip at call time",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 1000},
		},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstore_read_cache_lookups_total",
			Help: "Total number of contract read cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss
	)

	replayPageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventstore_replay_page_duration_seconds",
			Help:    "Duration of a single getLogEvents page fetch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{},
	)

	factoryPageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventstore_factory_page_duration_seconds",
			Help:    "Duration of a single getFactoryChildAddresses page fetch",
			Buckets: prometheus.DefBuckets,
		},
	)

	serializationConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstore_serialization_conflicts_total",
			Help: "Total number of serializable-transaction retries by operation",
		},
		[]string{"op"},
	)

	componentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventstore_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstore_errors_total",
			Help: "Total number of errors by component and kind",
		},
		[]string{"component", "kind"},
	)

	goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventstore_goroutines",
			Help: "Number of active goroutines, sampled periodically",
		},
	)

	startTime = time.Now()

	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventstore_uptime_seconds",
			Help: "Time since the facade was opened",
		},
	)
)

// IntervalMergeObserve records a completed interval-merge operation for the
// given component (artifact-store, interval-ledger, factory-index).
func IntervalMergeObserve(component string, duration time.Duration) {
	intervalMerges.WithLabelValues(component).Inc()
	intervalMergeDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// ReorgHandled records a completed deleteRealtimeData call.
func ReorgHandled(depth uint64) {
	reorgsHandled.Inc()
	reorgDepth.Observe(float64(depth))
}

// CacheHit records a contract read cache hit.
func CacheHit() {
	cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss records a contract read cache miss.
func CacheMiss() {
	cacheLookups.WithLabelValues("miss").Inc()
}

// ReplayPageObserve records the latency of a single getLogEvents page.
func ReplayPageObserve(duration time.Duration) {
	replayPageDuration.WithLabelValues().Observe(duration.Seconds())
}

// FactoryPageObserve records the latency of a single getFactoryChildAddresses page.
func FactoryPageObserve(duration time.Duration) {
	factoryPageDuration.Observe(duration.Seconds())
}

// SerializationConflictInc records a retried serializable-transaction
// conflict for the named operation.
func SerializationConflictInc(op string) {
	serializationConflicts.WithLabelValues(op).Inc()
}

// ComponentHealthSet reports whether a component is currently healthy.
func ComponentHealthSet(component string, healthy bool) {
	v := float64(1)
	if !healthy {
		v = 0
	}
	componentHealth.WithLabelValues(component).Set(v)
}

// ErrorInc records an error observed by a component, tagged with its kind.
func ErrorInc(component, kind string) {
	errors.WithLabelValues(component, kind).Inc()
}

// UpdateSystemMetrics refreshes process-wide gauges. Callers may invoke
// this periodically (e.g. from the inspect CLI or a host application's
// own metrics loop); the facade itself does not schedule this.
func UpdateSystemMetrics() {
	uptime.Set(time.Since(startTime).Seconds())
	goroutines.Set(float64(runtime.NumGoroutine()))
}
