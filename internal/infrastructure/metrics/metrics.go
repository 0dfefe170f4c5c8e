package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Posting metrics
	EntriesPosted   *prometheus.CounterVec
	EntriesReversed prometheus.Counter
	PostingDuration prometheus.Histogram
	PostingErrors   *prometheus.CounterVec
	LockRetries     prometheus.Counter

	// Balance query metrics
	BalanceCacheHits   prometheus.Counter
	BalanceCacheMisses prometheus.Counter

	// Reconciliation metrics
	ReconciliationRuns          prometheus.Counter
	ReconciliationDiscrepancies prometheus.Gauge
	SnapshotRebuilds            prometheus.Counter

	// Database metrics
	DBConnections prometheus.Gauge
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		EntriesPosted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_entries_posted_total",
				Help: "Total number of ledger entries posted by type",
			},
			[]string{"type"},
		),
		EntriesReversed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_entries_reversed_total",
			Help: "Total number of entries reversed",
		}),
		PostingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_posting_duration_seconds",
			Help:    "Duration of posting operations including lock wait",
			Buckets: prometheus.DefBuckets,
		}),
		PostingErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_posting_errors_total",
				Help: "Total number of posting errors by type",
			},
			[]string{"error_type"},
		),
		LockRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_lock_retries_total",
			Help: "Total number of lock-contention retries",
		}),

		BalanceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_balance_cache_hits_total",
			Help: "Balance queries answered from the redis cache",
		}),
		BalanceCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_balance_cache_misses_total",
			Help: "Balance queries that fell through to storage",
		}),

		ReconciliationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_reconciliation_runs_total",
			Help: "Total number of tenant-wide reconciliation runs",
		}),
		ReconciliationDiscrepancies: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_reconciliation_discrepancies",
			Help: "Discrepancies found by the most recent reconciliation run",
		}),
		SnapshotRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_snapshot_rebuilds_total",
			Help: "Total number of operator snapshot rebuilds",
		}),

		DBConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_db_connections",
			Help: "Current number of database connections",
		}),
	}
}
