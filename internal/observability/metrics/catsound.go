// Package metrics provides the Prometheus metrics for the application.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatsoundMetrics contains all Prometheus metrics related to feature
// extraction and cascade inference.
type CatsoundMetrics struct {
	PredictionTotal    *prometheus.CounterVec
	PredictionErrors   *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	CascadeSkipTotal   prometheus.Counter
	ExtractionDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewCatsoundMetrics creates and registers the inference metrics.
func NewCatsoundMetrics(registry *prometheus.Registry) (*CatsoundMetrics, error) {
	m := &CatsoundMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register catsound metrics: %w", err)
	}
	return m, nil
}

func (m *CatsoundMetrics) initMetrics() {
	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catsound_predictions_total",
			Help: "Total number of model predictions partitioned by stage and winning label.",
		},
		[]string{"stage", "label"},
	)
	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catsound_prediction_errors_total",
			Help: "Total number of failed model predictions partitioned by stage.",
		},
		[]string{"stage"},
	)
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catsound_prediction_duration_seconds",
			Help:    "Time taken for a single model invocation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"},
	)
	m.CascadeSkipTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catsound_cascade_skips_total",
			Help: "Total number of cascade runs where the detector short-circuited the classifier.",
		},
	)
	m.ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catsound_extraction_duration_seconds",
			Help:    "Time taken to compute the mel spectrogram feature tensor.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *CatsoundMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionTotal.Describe(ch)
	m.PredictionErrors.Describe(ch)
	m.PredictionDuration.Describe(ch)
	m.CascadeSkipTotal.Describe(ch)
	m.ExtractionDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *CatsoundMetrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionTotal.Collect(ch)
	m.PredictionErrors.Collect(ch)
	m.PredictionDuration.Collect(ch)
	m.CascadeSkipTotal.Collect(ch)
	m.ExtractionDuration.Collect(ch)
}

// RecordPrediction increments the prediction counter for a stage.
func (m *CatsoundMetrics) RecordPrediction(stage, label string) {
	m.PredictionTotal.WithLabelValues(stage, label).Inc()
}

// RecordPredictionError increments the error counter for a stage.
func (m *CatsoundMetrics) RecordPredictionError(stage string) {
	m.PredictionErrors.WithLabelValues(stage).Inc()
}

// RecordPredictionDuration observes the wall time of one invocation.
func (m *CatsoundMetrics) RecordPredictionDuration(stage string, d time.Duration) {
	m.PredictionDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordCascadeSkip counts a detector short-circuit.
func (m *CatsoundMetrics) RecordCascadeSkip() {
	m.CascadeSkipTotal.Inc()
}

// RecordExtractionDuration observes the wall time of feature extraction.
func (m *CatsoundMetrics) RecordExtractionDuration(d time.Duration) {
	m.ExtractionDuration.Observe(d.Seconds())
}
