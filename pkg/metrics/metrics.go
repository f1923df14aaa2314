// Package metrics provides Prometheus metrics for dataset generation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clover"

var (
	// GenerationsTotal tracks generation runs by outcome
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "Total number of dataset generation runs by status",
		},
		[]string{"dataset", "status"},
	)

	// GenerationDuration tracks how long a generation run takes
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Duration of dataset generation runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"dataset"},
	)

	// RowsLoaded tracks raw rows read per entity
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "rows_total",
			Help:      "Total number of raw rows loaded per entity",
		},
		[]string{"dataset", "entity"},
	)

	// RowsDropped tracks rows removed by reconciliation
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "rows_dropped_total",
			Help:      "Total number of rows dropped by reconciliation per entity",
		},
		[]string{"dataset", "entity"},
	)

	// ArraysWritten tracks arrays written to canonical files
	ArraysWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "arrays_total",
			Help:      "Total number of arrays written to canonical files",
		},
		[]string{"dataset"},
	)

	// RawExtractsGenerated tracks upstream raw extract builds
	RawExtractsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raw",
			Name:      "extracts_generated_total",
			Help:      "Total number of raw extracts generated by status",
		},
		[]string{"survey", "status"},
	)
)

// RecordGeneration records the outcome of one generation run
func RecordGeneration(dataset, status string, duration time.Duration) {
	GenerationsTotal.WithLabelValues(dataset, status).Inc()
	GenerationDuration.WithLabelValues(dataset).Observe(duration.Seconds())
}

// RecordRows adds per-entity row counts to counter
func RecordRows(counter *prometheus.CounterVec, dataset string, counts map[string]int) {
	for entity, count := range counts {
		counter.WithLabelValues(dataset, entity).Add(float64(count))
	}
}
