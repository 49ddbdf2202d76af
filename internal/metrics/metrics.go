// Package metrics holds the Prometheus collectors for imports, exports and
// batch dispatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/listvault/internal/domain"
)

var (
	// ImportRows counts classified rows by item status.
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listvault_import_rows_total",
			Help: "Import rows processed, by outcome",
		},
		[]string{"status"},
	)

	// ImportBatches counts finished batches by terminal status.
	ImportBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listvault_import_batches_total",
			Help: "Import batches finished, by status",
		},
		[]string{"status"},
	)

	// ImportBatchDuration observes wall time of ProcessBatch.
	ImportBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listvault_import_batch_duration_seconds",
			Help:    "Import batch processing time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
		},
		[]string{"status"},
	)

	// ExportRows counts rows streamed out, by format.
	ExportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listvault_export_rows_total",
			Help: "Rows written by exports, by format",
		},
		[]string{"format"},
	)

	// Dispatches counts batch dispatch attempts by result.
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listvault_batch_dispatch_total",
			Help: "Batch dispatch attempts, by result",
		},
		[]string{"result"},
	)
)

// ObserveBatch records a finished batch.
func ObserveBatch(status string, d time.Duration) {
	ImportBatches.WithLabelValues(status).Inc()
	ImportBatchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveRows adds a batch's row outcomes.
func ObserveRows(c domain.BatchCounters) {
	ImportRows.WithLabelValues(string(domain.ItemInserted)).Add(float64(c.Inserted))
	ImportRows.WithLabelValues(string(domain.ItemDuplicate)).Add(float64(c.Duplicate))
	ImportRows.WithLabelValues(string(domain.ItemSuppressed)).Add(float64(c.Suppressed))
	ImportRows.WithLabelValues(string(domain.ItemInvalid)).Add(float64(c.Invalid))
}

// AddExportRows records n exported rows.
func AddExportRows(format string, n int64) {
	ExportRows.WithLabelValues(format).Add(float64(n))
}

// RecordDispatch records one dispatch attempt.
func RecordDispatch(err error) {
	if err != nil {
		Dispatches.WithLabelValues("error").Inc()
		return
	}
	Dispatches.WithLabelValues("ok").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
