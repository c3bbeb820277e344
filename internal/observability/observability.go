// Package observability wires the per-component Prometheus metrics into a
// single registry the HTTP layer can expose.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MadBale/Mewsage-project/internal/observability/metrics"
)

// Metrics holds all application metrics and their registry.
type Metrics struct {
	Catsound  *metrics.CatsoundMetrics
	Datastore *metrics.DatastoreMetrics
	Archive   *metrics.ArchiveMetrics

	registry *prometheus.Registry
}

// NewMetrics creates the registry with Go runtime, process and component
// collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catsound, err := metrics.NewCatsoundMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create catsound metrics: %w", err)
	}
	datastore, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}
	archive, err := metrics.NewArchiveMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive metrics: %w", err)
	}

	return &Metrics{
		Catsound:  catsound,
		Datastore: datastore,
		Archive:   archive,
		registry:  registry,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
