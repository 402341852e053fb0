// ============================================================================
// SAVTrack Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Expose the engine's operational state to Prometheus
//
// Metric groups:
//
//   1. Counters - cumulative, only increase:
//      - savtrack_transitions_total: recorded stage transitions
//      - savtrack_jobs_created_total: jobs created through the engine
//      - savtrack_sessions_started_total: work sessions started
//      - savtrack_sessions_stopped_total: work sessions stopped
//
//   2. Histogram:
//      - savtrack_session_duration_seconds: final working duration of
//        stopped sessions
//
//   3. Gauges - instantaneous values, refreshed by the stats loop:
//      - savtrack_timers_active: sessions currently being timed
//      - savtrack_jobs_total and one gauge per stats bucket
//      - savtrack_jobs_urgent, savtrack_jobs_overdue
//      - savtrack_completion_rate_percent
//
// Exposed over /metrics via promhttp; scrape target configured in the
// metrics section of the config file.
//
// ============================================================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atelierops/savtrack/pkg/types"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	transitions     prometheus.Counter
	jobsCreated     prometheus.Counter
	sessionsStarted prometheus.Counter
	sessionsStopped prometheus.Counter

	sessionDuration prometheus.Histogram

	timersActive     prometheus.Gauge
	jobsTotal        prometheus.Gauge
	jobsNew          prometheus.Gauge
	jobsInProgress   prometheus.Gauge
	jobsWaitingParts prometheus.Gauge
	jobsCompleted    prometheus.Gauge
	jobsOther        prometheus.Gauge
	jobsUrgent       prometheus.Gauge
	jobsOverdue      prometheus.Gauge
	completionRate   prometheus.Gauge
}

// NewCollector creates and registers all instruments.
func NewCollector() *Collector {
	c := &Collector{
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "savtrack_transitions_total",
			Help: "Total number of recorded stage transitions",
		}),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "savtrack_jobs_created_total",
			Help: "Total number of jobs created through the engine",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "savtrack_sessions_started_total",
			Help: "Total number of work sessions started",
		}),
		sessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "savtrack_sessions_stopped_total",
			Help: "Total number of work sessions stopped",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "savtrack_session_duration_seconds",
			Help: "Final working duration of stopped sessions in seconds",
			// Bench work runs minutes to hours, not milliseconds.
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		}),
		timersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_timers_active",
			Help: "Number of sessions currently being timed",
		}),
		jobsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_total",
			Help: "Current number of jobs in the store",
		}),
		jobsNew: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_new",
			Help: "Jobs classified in the new bucket",
		}),
		jobsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_in_progress",
			Help: "Jobs classified in the in-progress bucket",
		}),
		jobsWaitingParts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_waiting_parts",
			Help: "Jobs classified in the waiting-parts bucket",
		}),
		jobsCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_completed",
			Help: "Jobs classified in the completed bucket",
		}),
		jobsOther: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_other",
			Help: "Jobs classified in the other bucket",
		}),
		jobsUrgent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_urgent",
			Help: "Jobs flagged urgent",
		}),
		jobsOverdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_jobs_overdue",
			Help: "Jobs past their due date and not completed",
		}),
		completionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savtrack_completion_rate_percent",
			Help: "Completed jobs as a percentage of all jobs",
		}),
	}

	prometheus.MustRegister(
		c.transitions,
		c.jobsCreated,
		c.sessionsStarted,
		c.sessionsStopped,
		c.sessionDuration,
		c.timersActive,
		c.jobsTotal,
		c.jobsNew,
		c.jobsInProgress,
		c.jobsWaitingParts,
		c.jobsCompleted,
		c.jobsOther,
		c.jobsUrgent,
		c.jobsOverdue,
		c.completionRate,
	)

	return c
}

// RecordTransition records one stage transition.
func (c *Collector) RecordTransition() {
	c.transitions.Inc()
}

// RecordJobCreated records one job creation.
func (c *Collector) RecordJobCreated() {
	c.jobsCreated.Inc()
}

// RecordSessionStarted records one session start.
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
}

// RecordSessionStopped records one session stop and its final duration.
func (c *Collector) RecordSessionStopped(durationSeconds float64) {
	c.sessionsStopped.Inc()
	c.sessionDuration.Observe(durationSeconds)
}

// SetActiveTimers refreshes the active-timer gauge.
func (c *Collector) SetActiveTimers(n int) {
	c.timersActive.Set(float64(n))
}

// SetStats refreshes every stats-derived gauge from a fresh snapshot.
func (c *Collector) SetStats(snap types.StatsSnapshot) {
	c.jobsTotal.Set(float64(snap.TotalJobs))
	c.jobsNew.Set(float64(snap.NewCount))
	c.jobsInProgress.Set(float64(snap.InProgressCount))
	c.jobsWaitingParts.Set(float64(snap.WaitingPartsCount))
	c.jobsCompleted.Set(float64(snap.CompletedCount))
	c.jobsOther.Set(float64(snap.OtherCount))
	c.jobsUrgent.Set(float64(snap.UrgentCount))
	c.jobsOverdue.Set(float64(snap.OverdueCount))
	c.completionRate.Set(snap.CompletionRate)
}
