package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadgen_jobs_created_total",
			Help: "Total number of extraction jobs created",
		},
	)

	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_jobs_finished_total",
			Help: "Total number of extraction jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	jobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadgen_jobs_active",
			Help: "Number of extraction jobs currently running",
		},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadgen_job_duration_seconds",
			Help:    "Wall time from job creation to terminal status",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	recordsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadgen_records_extracted_total",
			Help: "Total number of validated records delivered in reports",
		},
	)

	jobsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadgen_jobs_reaped_total",
			Help: "Total number of jobs removed by the retention sweep",
		},
	)
)
