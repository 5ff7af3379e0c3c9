package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_worker_jobs_total",
			Help: "Jobs that reached a terminal status, by status and kind.",
		},
		[]string{"status", "kind"},
	)

	busyRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_worker_busy_rejections_total",
			Help: "Submit calls rejected with 409 because a job was already active.",
		},
	)

	currentJobRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_worker_job_running",
			Help: "1 if a job currently occupies the single admission slot, else 0.",
		},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_worker_job_duration_seconds",
			Help:    "Wall-clock duration from Accepted to terminal status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	childProcessesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_worker_child_processes_total",
			Help: "Child processes spawned, by exit outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		jobsTotal,
		busyRejectionsTotal,
		currentJobRunning,
		jobDuration,
		childProcessesTotal,
	)
}

// MetricsHandler returns the Prometheus scrape handler for /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
