// Package metrics exposes Prometheus collectors for adapter operations.
// Collectors register with the default registry on import.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storage_adapter"

// Operation results used as label values.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultIntegrity = "integrity_failed"
	ResultNotFound  = "not_found"
)

var (
	// Operations counts adapter operations by operation and result.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Adapter operations by operation and result.",
	}, []string{"operation", "result"})

	// OperationDuration observes adapter operation latency by operation.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of adapter operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// BackendFetches counts backend reads made by lazy file handles.
	BackendFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_fetches_total",
		Help:      "Backend reads performed by lazy file handles.",
	}, []string{"result"})

	// BytesUploaded sums the sizes backends report for verified writes.
	BytesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Bytes accepted by backends, as reported on write.",
	})
)

// RecordOperation counts one adapter operation and observes its duration.
func RecordOperation(operation, result string, d time.Duration) {
	Operations.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordFetch counts one lazy handle fetch.
func RecordFetch(ok bool, d time.Duration) {
	result := ResultOK
	if !ok {
		result = ResultError
	}
	BackendFetches.WithLabelValues(result).Inc()
	OperationDuration.WithLabelValues("fetch").Observe(d.Seconds())
}

// RecordUploadedBytes adds n to the uploaded byte counter.
func RecordUploadedBytes(n int64) {
	if n > 0 {
		BytesUploaded.Add(float64(n))
	}
}
