package coordinator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registeredNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_coordinator_registered_nodes",
			Help: "Number of worker nodes currently in the registry.",
		},
	)

	dispatchedTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_coordinator_dispatched_tasks_total",
			Help: "Tasks successfully submitted to a worker, by dispatch kind.",
		},
		[]string{"kind"},
	)

	dispatchSubmitFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_coordinator_dispatch_submit_failures_total",
			Help: "Submit calls that did not return 200, by dispatch kind.",
		},
		[]string{"kind"},
	)

	activeTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_coordinator_active_tasks",
			Help: "Tasks still tracked by the monitor loop as of its latest pass; concurrent sessions each overwrite it with their own count.",
		},
	)

	taskOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_coordinator_task_outcomes_total",
			Help: "Tasks that left the active map, by outcome.",
		},
		[]string{"outcome"},
	)

	dispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_coordinator_dispatch_session_seconds",
			Help:    "Wall-clock duration of a dispatch session from submit to all-tasks-terminal.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		registeredNodes,
		dispatchedTasksTotal,
		dispatchSubmitFailuresTotal,
		activeTasks,
		taskOutcomesTotal,
		dispatchLatency,
	)
}

// MetricsHandler returns the Prometheus scrape handler for /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
