package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for the prediction ledger.
type DatastoreMetrics struct {
	OperationTotal  *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewDatastoreMetrics creates and registers the ledger metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.OperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_operations_total",
			Help: "Total number of ledger operations partitioned by operation.",
		},
		[]string{"operation"},
	)
	m.OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_operation_errors_total",
			Help: "Total number of failed ledger operations partitioned by operation.",
		},
		[]string{"operation"},
	)
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationTotal.Describe(ch)
	m.OperationErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationTotal.Collect(ch)
	m.OperationErrors.Collect(ch)
}

// RecordOperation counts one ledger operation, failed or not.
func (m *DatastoreMetrics) RecordOperation(operation string, err error) {
	m.OperationTotal.WithLabelValues(operation).Inc()
	if err != nil {
		m.OperationErrors.WithLabelValues(operation).Inc()
	}
}

// ArchiveMetrics contains Prometheus metrics for the audio archive.
type ArchiveMetrics struct {
	StoreTotal     prometheus.Counter
	StoreErrors    prometheus.Counter
	StoredBytes    prometheus.Counter
	CollisionTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewArchiveMetrics creates and registers the archive metrics.
func NewArchiveMetrics(registry *prometheus.Registry) (*ArchiveMetrics, error) {
	m := &ArchiveMetrics{registry: registry}
	m.StoreTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_stores_total",
		Help: "Total number of clips written to the archive.",
	})
	m.StoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_store_errors_total",
		Help: "Total number of failed archive writes.",
	})
	m.StoredBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_stored_bytes_total",
		Help: "Total bytes written to the archive.",
	})
	m.CollisionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_name_collisions_total",
		Help: "Total number of stores that needed a collision suffix.",
	})
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register archive metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *ArchiveMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.StoreTotal.Describe(ch)
	m.StoreErrors.Describe(ch)
	m.StoredBytes.Describe(ch)
	m.CollisionTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ArchiveMetrics) Collect(ch chan<- prometheus.Metric) {
	m.StoreTotal.Collect(ch)
	m.StoreErrors.Collect(ch)
	m.StoredBytes.Collect(ch)
	m.CollisionTotal.Collect(ch)
}

// RecordStore counts one archive write.
func (m *ArchiveMetrics) RecordStore(bytes int, renamed bool, err error) {
	m.StoreTotal.Inc()
	if err != nil {
		m.StoreErrors.Inc()
		return
	}
	m.StoredBytes.Add(float64(bytes))
	if renamed {
		m.CollisionTotal.Inc()
	}
}
