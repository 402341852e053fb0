// Package types defines the core domain models shared across the
// savtrack engine: repair jobs, workflow stages, work sessions, audit
// entries and derived statistics.
package types

import (
	"time"
)

// JobID uniquely identifies a repair job.
type JobID string

// StageID uniquely identifies a workflow stage.
type StageID string

// SessionID uniquely identifies a work session.
type SessionID string

// StageCategory is the canonical operational bucket a stage belongs to.
// Stages are configured externally; assigning a category at configuration
// time avoids guessing from localized display names. CategoryUnset means
// the aggregator falls back to keyword classification.
type StageCategory int

const (
	CategoryUnset StageCategory = iota
	CategoryNew
	CategoryInProgress
	CategoryWaitingParts
	CategoryCompleted
	CategoryOther
)

// String returns the bucket name used in stats output and metrics labels.
func (c StageCategory) String() string {
	switch c {
	case CategoryNew:
		return "new"
	case CategoryInProgress:
		return "in_progress"
	case CategoryWaitingParts:
		return "waiting_parts"
	case CategoryCompleted:
		return "completed"
	case CategoryOther:
		return "other"
	default:
		return "unset"
	}
}

// Stage is one named step in the externally configured workflow pipeline.
// Order is display sequencing only, not a workflow guard.
type Stage struct {
	ID       StageID       `json:"id"`
	Name     string        `json:"name"`
	Color    string        `json:"color,omitempty"`
	Order    int           `json:"order"`
	Category StageCategory `json:"category,omitempty"`
}

// Job is a repair work item tracked through the workflow. Jobs are owned
// by the external job store; the engine reads and derives from them, and
// mutates only the stage field through an explicit transition.
type Job struct {
	ID        JobID     `json:"id"`
	Number    string    `json:"number"` // human-facing, e.g. REP-20260901-0042
	StageID   StageID   `json:"stage_id"`
	Urgent    bool      `json:"urgent"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`

	// ActualMinutes is the recorded hands-on duration, nil until known.
	ActualMinutes *int `json:"actual_minutes,omitempty"`
	Paid          bool `json:"paid"`
}

// WorkSession is a timed record of active hands-on work against one job.
// At most one session per job is active at a time. A session moves
// created -> running <-> paused -> stopped and is immutable once stopped.
type WorkSession struct {
	ID        SessionID `json:"id"`
	JobID     JobID     `json:"job_id"`
	StartTime time.Time `json:"start_time"`

	// PausedMs is the cumulative time spent paused, in milliseconds.
	PausedMs int64 `json:"paused_ms"`

	// TotalMs is the elapsed working duration in milliseconds, recomputed
	// about once per second while the session runs and frozen on pause/stop.
	TotalMs int64 `json:"total_ms"`

	IsPaused bool       `json:"is_paused"`
	IsActive bool       `json:"is_active"`
	EndTime  *time.Time `json:"end_time,omitempty"`
}

// AuditAction tags the kind of tracked action an audit entry records.
type AuditAction string

const (
	ActionStatusChange   AuditAction = "status_change"
	ActionSessionStarted AuditAction = "session_started"
	ActionSessionStopped AuditAction = "session_stopped"
	ActionJobCreated     AuditAction = "job_created"
)

// AuditEntry is an immutable record of a stage transition or other
// tracked action. Entries are append-only and outlive session state.
type AuditEntry struct {
	JobID       JobID             `json:"job_id"`
	Action      AuditAction       `json:"action"`
	Description string            `json:"description"`
	Actor       string            `json:"actor"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TimeStatus describes how far a due date lies from a reference instant.
// The day/hour/minute components decompose the absolute delta.
type TimeStatus struct {
	DaysRemaining    int  `json:"days_remaining"`
	HoursRemaining   int  `json:"hours_remaining"`
	MinutesRemaining int  `json:"minutes_remaining"`
	IsOverdue        bool `json:"is_overdue"`
}

// StatsSnapshot is a freshly computed set of aggregate counters over the
// current job population. Never persisted; always derived on demand.
type StatsSnapshot struct {
	TotalJobs int `json:"total_jobs"`

	NewCount          int `json:"new_count"`
	InProgressCount   int `json:"in_progress_count"`
	WaitingPartsCount int `json:"waiting_parts_count"`
	CompletedCount    int `json:"completed_count"`
	OtherCount        int `json:"other_count"`

	UrgentCount  int `json:"urgent_count"`
	OverdueCount int `json:"overdue_count"`

	// AverageMinutes averages Job.ActualMinutes over jobs that have one;
	// 0 when none do.
	AverageMinutes float64 `json:"average_minutes"`

	// CompletionRate is completed/total in percent; 0 for an empty set.
	CompletionRate float64 `json:"completion_rate"`
}
