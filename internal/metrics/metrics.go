package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AcquisitionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffd_acquisition_attempts_total",
			Help: "Total number of source fetch attempts per provider",
		},
		[]string{"provider", "source"},
	)

	AcquisitionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffd_acquisition_failures_total",
			Help: "Total number of failed acquisition cycles per provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	AcquisitionFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffd_acquisition_fallback_total",
			Help: "Acquisition cycles that landed on a fallback tier (cache, static, empty)",
		},
		[]string{"provider", "tier"},
	)

	AcquisitionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tariffd_acquisition_duration_seconds",
			Help:    "Acquisition cycle duration in seconds per provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CurrentRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_current_rate",
			Help: "Currently resolved per-unit rate per subscription",
		},
		[]string{"subscription"},
	)

	RateAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_rate_available",
			Help: "Whether a usable rate is currently resolved (1) or not (0)",
		},
		[]string{"subscription"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffd_requests_total",
			Help: "Total number of API requests per subscription",
		},
		[]string{"subscription"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffd_request_errors_total",
			Help: "Total number of API request errors per subscription, path and status",
		},
		[]string{"subscription", "path", "status"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tariffd_request_duration_seconds",
			Help:    "API request duration in seconds per subscription and path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subscription", "path"},
	)

	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_db_pool_total_conns",
			Help: "Total number of connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_db_pool_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_db_pool_acquired_conns",
			Help: "Currently acquired (in-use) connections per driver",
		},
		[]string{"driver"},
	)
)

func UpdateDBPoolMetrics(driver string, total, idle, acquired float64) {
	DBPoolTotalConns.WithLabelValues(driver).Set(total)
	DBPoolIdleConns.WithLabelValues(driver).Set(idle)
	DBPoolAcquiredConns.WithLabelValues(driver).Set(acquired)
}

// PublishRate records the latest resolved rate for a subscription.
// Gauges are float-valued; the decimal string remains the source of
// truth in the API.
func PublishRate(subscription string, rate float64, available bool) {
	avail := 0.0
	if available {
		avail = 1.0
		CurrentRate.WithLabelValues(subscription).Set(rate)
	}
	RateAvailable.WithLabelValues(subscription).Set(avail)
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffd_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffd_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
