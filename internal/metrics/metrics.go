// Package metrics declares the prometheus collectors exported by relstore.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for store, transaction and result set activity.
var (
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relstore_operations_total",
		Help: "Cumulative number of store operations, by operation and result.",
	}, []string{"op", "result"})
	OperationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relstore_operation_seconds",
		Help:    "Latency of store operations.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op"})
	BusyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relstore_busy_total",
		Help: "Cumulative number of operations that failed on a busy or locked database.",
	})
	ActiveTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relstore_active_transactions",
		Help: "Number of transactions currently ACTIVE.",
	})
	OpenStores = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relstore_open_stores",
		Help: "Number of stores currently open.",
	})
	StatementCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relstore_statement_cache_hits_total",
		Help: "Cumulative number of prepared statement cache hits.",
	})
	StatementCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relstore_statement_cache_misses_total",
		Help: "Cumulative number of prepared statement cache misses.",
	})
)

// Collectors returns every relstore collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OperationsTotal,
		OperationSeconds,
		BusyTotal,
		ActiveTransactions,
		OpenStores,
		StatementCacheHitsTotal,
		StatementCacheMissesTotal,
	}
}

// Register registers every collector with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe records one completed operation.
func Observe(op string, started time.Time, err error) {
	result := Ok
	if err != nil {
		result = Fail
	}
	OperationsTotal.WithLabelValues(op, result).Inc()
	OperationSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
