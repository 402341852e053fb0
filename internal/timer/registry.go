// ============================================================================
// SAVTrack Timer Registry - Work Session Accounting
// ============================================================================
//
// Package: internal/timer
// File: registry.go
// Purpose: Authoritative elapsed-time accounting for concurrently worked jobs
//
// How it works:
//   The registry owns one WorkSession per job id. Each active session has a
//   dedicated ticker goroutine that recomputes the session's elapsed duration
//   about once per second while the session runs. All registry operations
//   mutate session state under a single registry-wide mutex, which preserves
//   the "at most one writer at a time per job" guarantee at the expected
//   contention (one operator per bench).
//
// Session State Machine:
//   (none)
//      ↓ Start()
//   Running
//      ↓ Pause() / ↑ Resume()
//   Paused
//      ↓ Stop()
//   Stopped (immutable; retained for last-value queries)
//
// Duration Arithmetic:
//   Elapsed time is the sum of an explicit list of closed run segments plus
//   the open segment, if any. Pause closes the open segment and freezes the
//   total; Resume opens a new segment and accumulates the pause gap into
//   PausedMs. Summing segments keeps the total exact across any number of
//   pause/resume cycles.
//
// Unknown Job IDs:
//   Operations on unknown ids degrade to no-ops or nil, never errors. A
//   vanished job is a benign race for callers.
//
// Resource Management:
//   Start allocates one ticker goroutine; Stop cancels it exactly once via
//   the session's stop channel. Stop on an already-stopped or unknown
//   session is a safe no-op. Close cancels every remaining ticker without
//   finalizing sessions (shutdown path).
//
// ============================================================================

package timer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierops/savtrack/pkg/types"
)

// DefaultTickInterval is how often an active session's total is recomputed.
const DefaultTickInterval = time.Second

// segment is one closed run interval of a session.
type segment struct {
	Start time.Time
	End   time.Time
}

// session is the registry's internal per-job state. The embedded
// WorkSession is the externally visible value; segments and runStart hold
// the arithmetic state it is derived from.
type session struct {
	ws       types.WorkSession
	segments []segment
	runStart time.Time // start of the open segment; zero while paused/stopped
	pausedAt time.Time // when the current pause began
	stopCh   chan struct{}
}

// Registry owns the job-id -> session map and the per-session tick
// cancellation handles. Construct one per engine instance; there is no
// process-wide shared state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[types.JobID]*session
	interval time.Duration

	now func() time.Time // test hook
}

// NewRegistry creates a registry. A non-positive interval selects
// DefaultTickInterval.
func NewRegistry(interval time.Duration) *Registry {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Registry{
		sessions: make(map[types.JobID]*session),
		interval: interval,
		now:      time.Now,
	}
}

// Start begins (or resumes) timing work on a job and returns the session.
//
// Behaviour:
//   - no session, or last session stopped: a fresh session starts now
//   - session running: returned unchanged (idempotent while active)
//   - session paused: equivalent to Resume
func (r *Registry) Start(jobID types.JobID) *types.WorkSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[jobID]; ok && s.ws.IsActive {
		if s.ws.IsPaused {
			r.resumeLocked(s)
		}
		return snapshotLocked(s, r.now())
	}

	now := r.now()
	s := &session{
		ws: types.WorkSession{
			ID:        types.SessionID(uuid.NewString()),
			JobID:     jobID,
			StartTime: now,
			IsActive:  true,
		},
		runStart: now,
		stopCh:   make(chan struct{}),
	}
	r.sessions[jobID] = s

	go r.tickLoop(jobID, s.stopCh)

	return snapshotLocked(s, now)
}

// Pause freezes the session's total at its current value. No-op (returning
// current state) if the session is absent, stopped, or already paused.
func (r *Registry) Pause(jobID types.JobID) *types.WorkSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[jobID]
	if !ok {
		return nil
	}
	if !s.ws.IsActive || s.ws.IsPaused {
		return snapshotLocked(s, r.now())
	}

	now := r.now()
	s.segments = append(s.segments, segment{Start: s.runStart, End: now})
	s.runStart = time.Time{}
	s.pausedAt = now
	s.ws.IsPaused = true
	s.ws.TotalMs = closedMsLocked(s)

	return snapshotLocked(s, now)
}

// Resume continues a paused session; the frozen total becomes the baseline
// and a new run segment opens. No-op if absent, stopped, or already running.
func (r *Registry) Resume(jobID types.JobID) *types.WorkSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[jobID]
	if !ok {
		return nil
	}
	if !s.ws.IsActive || !s.ws.IsPaused {
		return snapshotLocked(s, r.now())
	}

	r.resumeLocked(s)
	return snapshotLocked(s, r.now())
}

// resumeLocked clears the pause, accounting the gap into PausedMs.
// Caller holds r.mu.
func (r *Registry) resumeLocked(s *session) {
	now := r.now()
	s.ws.PausedMs += now.Sub(s.pausedAt).Milliseconds()
	s.pausedAt = time.Time{}
	s.runStart = now
	s.ws.IsPaused = false
}

// Stop finalizes the session and cancels its ticker. Returns the final
// session, or nil if none ever existed. Stopping an already-stopped
// session returns it unchanged.
func (r *Registry) Stop(jobID types.JobID) *types.WorkSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[jobID]
	if !ok {
		return nil
	}
	if !s.ws.IsActive {
		return snapshotLocked(s, r.now())
	}

	now := r.now()
	if s.ws.IsPaused {
		s.ws.PausedMs += now.Sub(s.pausedAt).Milliseconds()
		s.pausedAt = time.Time{}
	} else {
		s.segments = append(s.segments, segment{Start: s.runStart, End: now})
		s.runStart = time.Time{}
	}
	s.ws.TotalMs = closedMsLocked(s)
	s.ws.IsPaused = false
	s.ws.IsActive = false
	end := now
	s.ws.EndTime = &end

	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}

	return snapshotLocked(s, now)
}

// Get returns the current session for a job (active, paused, or
// last-stopped), or nil. The total of a running session is computed at
// call time, so repeated Gets observe a non-decreasing value.
func (r *Registry) Get(jobID types.JobID) *types.WorkSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[jobID]
	if !ok {
		return nil
	}
	return snapshotLocked(s, r.now())
}

// ListActive returns all sessions that have not been stopped.
func (r *Registry) ListActive() []types.WorkSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var active []types.WorkSession
	for _, s := range r.sessions {
		if s.ws.IsActive {
			active = append(active, *snapshotLocked(s, now))
		}
	}
	return active
}

// Export returns a copy of every session keyed by job id, for host-side
// persistence. Session state is otherwise ephemeral working memory.
func (r *Registry) Export() map[types.JobID]types.WorkSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	out := make(map[types.JobID]types.WorkSession, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = *snapshotLocked(s, now)
	}
	return out
}

// Restore replaces the registry's sessions with a previously exported set.
// Sessions that were running at export time come back paused: resuming
// wall-clock time across a restart would fabricate elapsed work. No
// tickers are started; the host resumes sessions explicitly.
func (r *Registry) Restore(sessions map[types.JobID]types.WorkSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, ws := range sessions {
		if old, ok := r.sessions[id]; ok && old.stopCh != nil {
			close(old.stopCh)
			old.stopCh = nil
		}

		s := &session{ws: ws}
		if ws.IsActive {
			s.ws.IsPaused = true
			s.pausedAt = now
		}
		if ws.TotalMs > 0 {
			// One synthetic segment carries the recorded total.
			s.segments = []segment{{
				Start: ws.StartTime,
				End:   ws.StartTime.Add(time.Duration(ws.TotalMs) * time.Millisecond),
			}}
		}
		r.sessions[id] = s
	}
}

// Evict drops a stopped session from the registry. Active sessions are
// never evicted; returns whether anything was removed.
func (r *Registry) Evict(jobID types.JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[jobID]
	if !ok || s.ws.IsActive {
		return false
	}
	delete(r.sessions, jobID)
	return true
}

// Close cancels every remaining ticker without finalizing sessions.
// Intended for engine shutdown after a final export.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.stopCh != nil {
			close(s.stopCh)
			s.stopCh = nil
		}
	}
}

// tickLoop recomputes one session's total about once per interval while it
// runs. The loop exits when the session's stop channel closes.
func (r *Registry) tickLoop(jobID types.JobID, stopCh <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return

		case <-ticker.C:
			r.mu.Lock()
			if s, ok := r.sessions[jobID]; ok && s.ws.IsActive && !s.ws.IsPaused {
				s.ws.TotalMs = elapsedMsLocked(s, r.now())
			}
			r.mu.Unlock()
		}
	}
}

// closedMsLocked sums the closed segments. Caller holds r.mu.
func closedMsLocked(s *session) int64 {
	var total int64
	for _, seg := range s.segments {
		total += seg.End.Sub(seg.Start).Milliseconds()
	}
	return total
}

// elapsedMsLocked is closed segments plus the open one. Caller holds r.mu.
func elapsedMsLocked(s *session, now time.Time) int64 {
	total := closedMsLocked(s)
	if !s.runStart.IsZero() {
		total += now.Sub(s.runStart).Milliseconds()
	}
	return total
}

// snapshotLocked copies the visible session value, computing the live total
// for a running session. Caller holds r.mu (read or write).
func snapshotLocked(s *session, now time.Time) *types.WorkSession {
	ws := s.ws
	if ws.IsActive && !ws.IsPaused {
		ws.TotalMs = elapsedMsLocked(s, now)
	}
	return &ws
}
