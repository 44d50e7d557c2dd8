package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadgen_window_jobs",
			Help: "Archived jobs in the monitoring window by outcome",
		},
		[]string{"outcome"},
	)

	windowFailureRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadgen_window_failure_rate",
			Help: "Share of finished jobs in the monitoring window that ended in error",
		},
	)

	windowNoResultsRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadgen_window_no_results_rate",
			Help: "Share of finished jobs in the monitoring window that found no businesses",
		},
	)

	windowAvgLeads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadgen_window_avg_leads",
			Help: "Average leads per completed job in the monitoring window",
		},
	)

	alertsFiring = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadgen_alert_firing",
			Help: "1 while the alert's threshold is breached, else 0",
		},
		[]string{"type"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_alert_notifications_total",
			Help: "Webhook notifications by result",
		},
		[]string{"result"},
	)
)

// alertTypes lists every alert so cleared ones can be reset to 0.
var alertTypes = []AlertType{AlertJobFailureRate, AlertNoResultsSpike, AlertLowYield}

// publish exports the snapshot as gauges beside the jobs metrics.
func publish(snap *MetricsSnapshot) {
	windowJobs.WithLabelValues("complete").Set(float64(snap.JobsComplete))
	windowJobs.WithLabelValues("failed").Set(float64(snap.JobsFailed))
	windowJobs.WithLabelValues("no_results").Set(float64(snap.JobsNoResults))
	windowJobs.WithLabelValues("unfinished").Set(float64(snap.JobsTotal - snap.Finished()))
	windowFailureRate.Set(snap.FailRate)
	windowNoResultsRate.Set(snap.NoResultsRate)
	windowAvgLeads.Set(snap.AvgLeads)
}
