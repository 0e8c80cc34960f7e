// Package metrics registers the prometheus instruments for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idamart_runs_total",
		Help: "Pipeline runs by terminal status.",
	}, []string{"status"})

	// RecordsNormalized counts observation records appended to staging.
	RecordsNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idamart_records_normalized_total",
		Help: "Observation records normalized into staging.",
	})

	// FactRows tracks the size of the fact relation after the last rebuild.
	FactRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "idamart_fact_rows",
		Help: "Fact rows produced by the last successful rebuild.",
	})

	// RunDuration observes end-to-end pipeline run durations.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "idamart_run_duration_seconds",
		Help:    "End-to-end pipeline run duration.",
		Buckets: prometheus.DefBuckets,
	})
)
