// Package metrics registers the Prometheus collectors used across the
// simulation core. Serving them over HTTP is left to the caller; this
// package only builds and registers the collector set.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the simulation core updates.
type Metrics struct {
	HealthReady prometheus.Gauge

	TickDuration     prometheus.Histogram
	TickBudgetUsed   prometheus.Gauge
	TicksTotal       prometheus.Counter
	TicksOverBudget  prometheus.Counter
	ActiveEntities   prometheus.Gauge
	ActiveInstances  prometheus.Gauge
	PlayersOnline    prometheus.Gauge

	WALPendingEntries     prometheus.Gauge
	WALWritesTotal        prometheus.Counter
	WALCorruptionsTotal   prometheus.Counter
	LastSnapshotTimestamp prometheus.Gauge
	SnapshotsTotal        prometheus.Counter

	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheInvalidations prometheus.Counter
	CacheSize          prometheus.Gauge

	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec
}

// New registers collectors against the default registerer. serviceName
// is not attached to any collector.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors against an injectable registerer,
// so tests can use a private prometheus.NewRegistry() instead of the
// global default.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HealthReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_health_ready",
			Help: "1 when the simulation core is accepting ticks, 0 otherwise",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cgs_tick_duration_seconds",
			Help:    "Wall-clock duration of a single game loop tick",
			Buckets: []float64{.001, .005, .01, .02, .03, .04, .05, .075, .1, .25},
		}),
		TickBudgetUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_tick_budget_utilization_ratio",
			Help: "Fraction of the per-tick time budget consumed by the most recent tick",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_ticks_total",
			Help: "Total number of game loop ticks executed",
		}),
		TicksOverBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_ticks_over_budget_total",
			Help: "Total number of ticks that exceeded their time budget",
		}),
		ActiveEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_active_entities",
			Help: "Current number of live entities across all map instances",
		}),
		ActiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_active_map_instances",
			Help: "Current number of map instances not in ShuttingDown state",
		}),
		PlayersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_players_online",
			Help: "Current number of connected player sessions",
		}),
		WALPendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_wal_pending_entries",
			Help: "Number of WAL entries written since the last snapshot",
		}),
		WALWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_wal_writes_total",
			Help: "Total number of WAL frames appended",
		}),
		WALCorruptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_wal_corruptions_total",
			Help: "Total number of WAL frames rejected for checksum mismatch during replay",
		}),
		LastSnapshotTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_last_snapshot_timestamp",
			Help: "Unix timestamp of the most recently completed snapshot",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_snapshots_total",
			Help: "Total number of snapshots written",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_dbproxy_cache_hits_total",
			Help: "Total number of dbproxy query cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_dbproxy_cache_misses_total",
			Help: "Total number of dbproxy query cache misses",
		}),
		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgs_dbproxy_cache_invalidations_total",
			Help: "Total number of cache entries removed by table-name invalidation",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgs_dbproxy_cache_size",
			Help: "Current number of entries held in the dbproxy query cache",
		}),
		DatabaseQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cgs_database_queries_total",
			Help: "Total number of queries routed through dbproxy",
		}, []string{"route", "status"}),
		DatabaseQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cgs_database_query_duration_seconds",
			Help:    "Duration of queries routed through dbproxy",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.HealthReady,
			m.TickDuration,
			m.TickBudgetUsed,
			m.TicksTotal,
			m.TicksOverBudget,
			m.ActiveEntities,
			m.ActiveInstances,
			m.PlayersOnline,
			m.WALPendingEntries,
			m.WALWritesTotal,
			m.WALCorruptionsTotal,
			m.LastSnapshotTimestamp,
			m.SnapshotsTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.CacheInvalidations,
			m.CacheSize,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
		)
	}

	return m
}

// RecordTick records the duration and budget utilization of one tick.
func (m *Metrics) RecordTick(d time.Duration, budget time.Duration) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(d.Seconds())
	if budget > 0 {
		m.TickBudgetUsed.Set(d.Seconds() / budget.Seconds())
	}
	if d > budget {
		m.TicksOverBudget.Inc()
	}
}

// RecordSnapshot records a completed snapshot at ts.
func (m *Metrics) RecordSnapshot(ts time.Time) {
	m.SnapshotsTotal.Inc()
	m.LastSnapshotTimestamp.Set(float64(ts.Unix()))
}

// RecordCacheHit/RecordCacheMiss update the dbproxy cache hit-rate counters.
func (m *Metrics) RecordCacheHit()  { m.CacheHitsTotal.Inc() }
func (m *Metrics) RecordCacheMiss() { m.CacheMissesTotal.Inc() }

// RecordQuery records a routed query's outcome and duration.
func (m *Metrics) RecordQuery(route, status string, d time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(route, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(route).Observe(d.Seconds())
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes the process-wide metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(serviceName)
	}
	return global
}

// Global returns the process-wide metrics instance, initializing it with
// a placeholder name if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New("cgs")
	}
	return global
}
