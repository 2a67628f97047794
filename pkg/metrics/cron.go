package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeLocked marks a job run skipped because another cron worker held its lock.
const OutcomeLocked = "locked"

var cronOutcomes = []string{OutcomeSuccess, OutcomeFailure, OutcomeLocked}

// CronJobMetrics tracks the wishlist maintenance jobs (price watch,
// reminders, share retention, notification cleanup) run by the cron worker.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "wishlist_cron_job_duration_seconds",
		Help: "Duration of wishlist cron job runs in seconds.",
		// A full price watch over every wishlist can take minutes.
		Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_cron_job_runs_total",
		Help: "Wishlist cron job runs by outcome.",
	}, []string{"job", "outcome"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wishlist_cron_job_last_success_timestamp_seconds",
		Help: "Unix time the wishlist cron job last finished without error.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, lastSuccess)
	return &CronJobMetrics{
		duration:    duration,
		runs:        runs,
		lastSuccess: lastSuccess,
	}
}

// Track creates the series for a job so it reports zero before its first run.
func (c *CronJobMetrics) Track(job string) {
	if c == nil || c.runs == nil {
		return
	}
	for _, outcome := range cronOutcomes {
		c.runs.WithLabelValues(normalizeLabel(job), outcome).Add(0)
	}
}

// ObserveRun records one run of the named job that finished at the given time.
// Locked runs never started, so they carry no duration.
func (c *CronJobMetrics) ObserveRun(job, outcome string, finished time.Time, duration time.Duration) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.runs.WithLabelValues(job, outcome).Inc()
	if outcome == OutcomeLocked {
		return
	}
	c.duration.WithLabelValues(job).Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		c.lastSuccess.WithLabelValues(job).Set(float64(finished.Unix()))
	}
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
