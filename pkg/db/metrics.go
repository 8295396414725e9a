package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the Prometheus metrics a DB exposes, adapted from the
// teacher's HTTP-request metrics shape in pkg/api/metrics.go but scoped to
// storage-engine operations instead of HTTP handlers.
type Metrics struct {
	treesTotal          prometheus.Gauge
	queryDuration       *prometheus.HistogramVec
	mergeDuration       *prometheus.HistogramVec
	batchOperationsTotal *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		treesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "geotree_trees_total",
				Help: "Number of root trees in the current forest.",
			},
		),
		queryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geotree_query_duration_seconds",
				Help:    "Bounding-box query duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		mergeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geotree_merge_duration_seconds",
				Help:    "Merge (insert/delete batch) duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		batchOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geotree_batch_operations_total",
				Help: "Total number of batch insert/delete operations applied.",
			},
			[]string{"operation", "status"},
		),
	}
}

func (m *Metrics) recordQuery(d time.Duration, err error) {
	m.queryDuration.WithLabelValues(statusLabel(err)).Observe(d.Seconds())
}

func (m *Metrics) recordMerge(d time.Duration, err error) {
	m.mergeDuration.WithLabelValues(statusLabel(err)).Observe(d.Seconds())
}

func (m *Metrics) recordBatchOp(operation string, err error) {
	m.batchOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

func (m *Metrics) setTreesTotal(n int) {
	m.treesTotal.Set(float64(n))
}

func statusLabel(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}
