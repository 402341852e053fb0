// ============================================================================
// SAVTrack Engine - Core Coordinator
// ============================================================================
//
// Package: internal/engine
// File: engine.go
// Purpose: Coordinate the engine's modules around the external job store
//
// Architecture:
//   The engine wires together:
//   - Timer Registry: elapsed-time accounting per job
//   - Lifecycle Machine: stage transitions and their audit trail
//   - Stats Aggregator: on-demand operational counters
//   - Metrics Collector: Prometheus instruments
//   - Snapshot Manager: host-side persistence of session state
//
// Background loops (2 goroutines):
//   1. Stats Loop - periodically recomputes the stats snapshot and
//      refreshes the Prometheus gauges
//   2. Snapshot Loop - periodically persists the session table so timers
//      survive a restart (restored paused, never running)
//
// Shutdown:
//   Stop closes stopCh, waits for both loops, writes a final session
//   snapshot, and cancels every remaining ticker. Safe to call once.
//
// ============================================================================

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierops/savtrack/internal/jobnumber"
	"github.com/atelierops/savtrack/internal/lifecycle"
	"github.com/atelierops/savtrack/internal/metrics"
	"github.com/atelierops/savtrack/internal/snapshot"
	"github.com/atelierops/savtrack/internal/stats"
	"github.com/atelierops/savtrack/internal/storage/jobstore"
	"github.com/atelierops/savtrack/internal/timer"
	"github.com/atelierops/savtrack/pkg/types"
)

var log = slog.Default()

// numberRetries bounds regeneration attempts when a job number collides.
const numberRetries = 5

// ErrNumberExhausted is returned when every generated job number collided.
var ErrNumberExhausted = errors.New("engine: could not generate a unique job number")

// Store is the full job-store surface the engine consumes.
type Store interface {
	lifecycle.Store
	ListJobs(ctx context.Context) ([]types.Job, error)
	CreateJob(ctx context.Context, job types.Job) error
	UpdateActualMinutes(ctx context.Context, id types.JobID, minutes int) error
}

// Config holds the engine's tuning knobs.
type Config struct {
	TimerTickInterval time.Duration // per-session recomputation, default 1s
	StatsInterval     time.Duration // gauge refresh, default 15s
	SnapshotInterval  time.Duration // session persistence, default 30s
	SnapshotPath      string
}

// Engine is the core coordinator. Construct with New, then Start.
type Engine struct {
	store     Store
	registry  *timer.Registry
	machine   *lifecycle.Machine
	audit     lifecycle.AuditSink
	collector *metrics.Collector
	snapshots *snapshot.Manager
	numbers   *jobnumber.Generator
	config    Config

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	loopWg  sync.WaitGroup
}

// New builds an engine over the given store, audit sink, and collector.
func New(config Config, store Store, audit lifecycle.AuditSink, collector *metrics.Collector) *Engine {
	if config.StatsInterval <= 0 {
		config.StatsInterval = 15 * time.Second
	}
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = 30 * time.Second
	}

	return &Engine{
		store:     store,
		registry:  timer.NewRegistry(config.TimerTickInterval),
		machine:   lifecycle.NewMachine(store, audit),
		audit:     audit,
		collector: collector,
		snapshots: snapshot.NewManager(config.SnapshotPath),
		numbers:   jobnumber.NewGenerator(),
		config:    config,
	}
}

// Start restores persisted sessions and launches the background loops.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.snapshots.Load()
	if err != nil {
		return fmt.Errorf("load session snapshot: %w", err)
	}
	if len(snap.Sessions) > 0 {
		e.registry.Restore(snap.Sessions)
		log.Info("Sessions restored", "count", len(snap.Sessions))
	}

	e.stopCh = make(chan struct{})
	e.loopWg.Add(2)
	go e.statsLoop()
	go e.snapshotLoop()

	log.Info("Engine started",
		"stats_interval", e.config.StatsInterval,
		"snapshot_interval", e.config.SnapshotInterval)
	return nil
}

// Stop shuts the loops down, persists a final session snapshot, and
// cancels every remaining session ticker. Calling Stop twice is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped || e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()

	e.loopWg.Wait()

	if err := e.writeSnapshot(); err != nil {
		log.Error("Final session snapshot failed", "error", err)
	}
	e.registry.Close()

	log.Info("Engine stopped")
}

// ----------------------------------------------------------------------------
// Jobs
// ----------------------------------------------------------------------------

// CreateJobParams carries the caller-supplied fields of a new job.
type CreateJobParams struct {
	StageID types.StageID // empty selects the first configured stage
	Urgent  bool
	DueAt   time.Time
	Actor   string
}

// CreateJob creates a job with a generated id and job number. A colliding
// number is regenerated up to numberRetries times before giving up.
func (e *Engine) CreateJob(ctx context.Context, params CreateJobParams) (*types.Job, error) {
	stageID := params.StageID
	if stageID == "" {
		stages, err := e.store.ListStages(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stages: %w", err)
		}
		if len(stages) == 0 {
			return nil, errors.New("engine: no stages configured")
		}
		stageID = stages[0].ID
	}

	job := types.Job{
		ID:        types.JobID(uuid.NewString()),
		StageID:   stageID,
		Urgent:    params.Urgent,
		DueAt:     params.DueAt,
		CreatedAt: time.Now(),
	}

	var err error
	for attempt := 0; attempt < numberRetries; attempt++ {
		job.Number = e.numbers.Generate()
		err = e.store.CreateJob(ctx, job)
		if err == nil {
			break
		}
		if !errors.Is(err, jobstore.ErrDuplicateNumber) {
			return nil, fmt.Errorf("create job: %w", err)
		}
		log.Warn("Job number collision, regenerating", "number", job.Number)
	}
	if err != nil {
		return nil, ErrNumberExhausted
	}

	e.collector.RecordJobCreated()
	e.appendAudit(types.AuditEntry{
		JobID:       job.ID,
		Action:      types.ActionJobCreated,
		Description: fmt.Sprintf("Job %s created", job.Number),
		Actor:       params.Actor,
		Timestamp:   time.Now(),
	})

	return &job, nil
}

// GetJob passes through to the store.
func (e *Engine) GetJob(ctx context.Context, id types.JobID) (*types.Job, error) {
	return e.store.GetJob(ctx, id)
}

// ListJobs passes through to the store.
func (e *Engine) ListJobs(ctx context.Context) ([]types.Job, error) {
	return e.store.ListJobs(ctx)
}

// ListStages passes through to the store.
func (e *Engine) ListStages(ctx context.Context) ([]types.Stage, error) {
	return e.store.ListStages(ctx)
}

// Transition moves a job to another stage through the lifecycle machine.
func (e *Engine) Transition(ctx context.Context, jobID types.JobID, toStageID types.StageID, actor string) (*types.AuditEntry, error) {
	entry, err := e.machine.Transition(ctx, jobID, toStageID, actor)
	if err != nil {
		return entry, err
	}
	e.collector.RecordTransition()
	return entry, nil
}

// ----------------------------------------------------------------------------
// Timers
// ----------------------------------------------------------------------------

// StartTimer starts (or resumes) timing work on a job.
func (e *Engine) StartTimer(jobID types.JobID, actor string) *types.WorkSession {
	ws := e.registry.Start(jobID)
	e.collector.RecordSessionStarted()
	e.collector.SetActiveTimers(len(e.registry.ListActive()))

	e.appendAudit(types.AuditEntry{
		JobID:       jobID,
		Action:      types.ActionSessionStarted,
		Description: "Work session started",
		Actor:       actor,
		Timestamp:   time.Now(),
	})
	return ws
}

// PauseTimer freezes a job's running session.
func (e *Engine) PauseTimer(jobID types.JobID) *types.WorkSession {
	return e.registry.Pause(jobID)
}

// ResumeTimer continues a paused session.
func (e *Engine) ResumeTimer(jobID types.JobID) *types.WorkSession {
	return e.registry.Resume(jobID)
}

// StopTimer finalizes a job's session. The final duration is recorded on
// the job as actual minutes; a job deleted mid-session is a benign race
// and only skips that recording.
func (e *Engine) StopTimer(ctx context.Context, jobID types.JobID, actor string) *types.WorkSession {
	before := e.registry.Get(jobID)
	ws := e.registry.Stop(jobID)
	if ws == nil || before == nil || !before.IsActive {
		return ws
	}

	seconds := float64(ws.TotalMs) / 1000
	e.collector.RecordSessionStopped(seconds)
	e.collector.SetActiveTimers(len(e.registry.ListActive()))

	minutes := int(ws.TotalMs / 60000)
	if err := e.store.UpdateActualMinutes(ctx, jobID, minutes); err != nil {
		if !errors.Is(err, jobstore.ErrJobNotFound) {
			log.Error("Failed to record actual duration", "jobID", jobID, "error", err)
		}
	}

	e.appendAudit(types.AuditEntry{
		JobID:       jobID,
		Action:      types.ActionSessionStopped,
		Description: fmt.Sprintf("Work session stopped after %s", timer.FormatDuration(ws.TotalMs)),
		Actor:       actor,
		Timestamp:   time.Now(),
	})
	return ws
}

// GetTimer returns a job's current session, or nil.
func (e *Engine) GetTimer(jobID types.JobID) *types.WorkSession {
	return e.registry.Get(jobID)
}

// ListActiveTimers returns every session still being timed.
func (e *Engine) ListActiveTimers() []types.WorkSession {
	return e.registry.ListActive()
}

// ----------------------------------------------------------------------------
// Stats
// ----------------------------------------------------------------------------

// Stats computes a fresh snapshot over the current job population.
func (e *Engine) Stats(ctx context.Context) (types.StatsSnapshot, error) {
	jobs, err := e.store.ListJobs(ctx)
	if err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("list jobs: %w", err)
	}
	stages, err := e.store.ListStages(ctx)
	if err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("list stages: %w", err)
	}
	return stats.Compute(jobs, stages, time.Now()), nil
}

// ----------------------------------------------------------------------------
// Background loops
// ----------------------------------------------------------------------------

// statsLoop periodically recomputes the stats snapshot and refreshes the
// Prometheus gauges.
func (e *Engine) statsLoop() {
	defer e.loopWg.Done()
	ticker := time.NewTicker(e.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			log.Info("Stats loop stopped")
			return

		case <-ticker.C:
			snap, err := e.Stats(context.Background())
			if err != nil {
				log.Error("Stats refresh failed", "error", err)
				continue
			}
			e.collector.SetStats(snap)
			e.collector.SetActiveTimers(len(e.registry.ListActive()))
		}
	}
}

// snapshotLoop periodically persists the session table.
func (e *Engine) snapshotLoop() {
	defer e.loopWg.Done()
	ticker := time.NewTicker(e.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			log.Info("Snapshot loop stopped")
			return

		case <-ticker.C:
			if err := e.writeSnapshot(); err != nil {
				log.Error("Session snapshot failed", "error", err)
			}
		}
	}
}

func (e *Engine) writeSnapshot() error {
	return e.snapshots.Write(snapshot.SessionSnapshot{
		Sessions: e.registry.Export(),
	})
}

// appendAudit writes a best-effort audit entry. Audit failures outside a
// transition are logged, not propagated: the action itself succeeded.
func (e *Engine) appendAudit(entry types.AuditEntry) {
	if err := e.audit.Append(entry); err != nil {
		log.Error("Failed to append audit entry",
			"jobID", entry.JobID, "action", entry.Action, "error", err)
	}
}
