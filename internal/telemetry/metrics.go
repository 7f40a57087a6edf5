package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlashub",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by method and status.",
	},
	[]string{"method", "status"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "atlashub",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method"},
)

var CRUDQueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlashub",
		Subsystem: "crud",
		Name:      "queries_total",
		Help:      "Total number of compiled CRUD statements by operation.",
	},
	[]string{"operation"},
)

var BackupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlashub",
		Subsystem: "backups",
		Name:      "total",
		Help:      "Total number of backup runs by type and outcome.",
	},
	[]string{"type", "status"},
)

var CronDispatchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "atlashub",
		Subsystem: "cron",
		Name:      "dispatches_total",
		Help:      "Total number of cron dispatches by outcome.",
	},
	[]string{"outcome"},
)

var CronRunningJobs = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "atlashub",
		Subsystem: "cron",
		Name:      "running_jobs",
		Help:      "Number of cron dispatches currently executing.",
	},
)

var TenantPoolsOpen = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "atlashub",
		Subsystem: "tenantdb",
		Name:      "pools_open",
		Help:      "Number of tenant projects with open connection pools.",
	},
)

// NewMetricsRegistry creates a registry with runtime collectors and all
// platform metrics registered.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CRUDQueriesTotal,
		BackupsTotal,
		CronDispatchesTotal,
		CronRunningJobs,
		TenantPoolsOpen,
	)
	return reg
}
