// ============================================================================
// SAVTrack Lifecycle State Machine
// ============================================================================
//
// Package: internal/lifecycle
// File: lifecycle.go
// Purpose: Record and audit the workflow stage a repair job occupies
//
// Transition Model:
//   Stages form a flat, externally configured set; any stage may move to
//   any other stage (free-form Kanban: operators drag cards wherever the
//   work actually went). The machine validates nothing about the edge, it
//   guarantees the bookkeeping instead:
//
//   1. The field mutation is delegated to the external job store, which
//      owns persistence.
//   2. Only on success is an audit entry appended (at-most-once logging,
//      never log-without-effect).
//
// Failure Semantics:
//   - unknown job: store lookup error propagated, nothing written
//   - store rejects the update: error propagated, no audit entry,
//     job remains in its prior stage
//   - audit append fails after a successful update: the entry and the
//     error are both returned, so the caller knows the mutation stuck
//     but the trail has a hole
//
// ============================================================================

package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/atelierops/savtrack/pkg/types"
)

// Store is the slice of the external job store the machine consumes.
type Store interface {
	GetJob(ctx context.Context, id types.JobID) (*types.Job, error)
	UpdateJobStage(ctx context.Context, id types.JobID, stageID types.StageID) error
	ListStages(ctx context.Context) ([]types.Stage, error)
}

// AuditSink receives immutable audit entries, append-only.
type AuditSink interface {
	Append(entry types.AuditEntry) error
}

// Machine moves jobs between stages and writes the audit trail.
type Machine struct {
	store Store
	audit AuditSink

	now func() time.Time // test hook
}

// NewMachine builds a state machine over the given store and audit sink.
func NewMachine(store Store, audit AuditSink) *Machine {
	return &Machine{
		store: store,
		audit: audit,
		now:   time.Now,
	}
}

// Transition moves a job to the destination stage and appends a
// status_change audit entry naming the destination, the actor, and the
// moment of the change.
func (m *Machine) Transition(ctx context.Context, jobID types.JobID, toStageID types.StageID, actor string) (*types.AuditEntry, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	fromStageID := job.StageID

	if err := m.store.UpdateJobStage(ctx, jobID, toStageID); err != nil {
		// Store rejected the mutation: no audit entry may be written.
		return nil, fmt.Errorf("update stage of job %s: %w", jobID, err)
	}

	entry := types.AuditEntry{
		JobID:       jobID,
		Action:      types.ActionStatusChange,
		Description: fmt.Sprintf("Status changed to %q", m.stageName(ctx, toStageID)),
		Actor:       actor,
		Timestamp:   m.now(),
		Metadata: map[string]string{
			"from_stage": string(fromStageID),
			"to_stage":   string(toStageID),
		},
	}

	if err := m.audit.Append(entry); err != nil {
		return &entry, fmt.Errorf("append audit entry for job %s: %w", jobID, err)
	}
	return &entry, nil
}

// stageName resolves a stage id to its display name, falling back to the
// raw id when the stage set cannot be read or no longer contains it.
func (m *Machine) stageName(ctx context.Context, id types.StageID) string {
	stages, err := m.store.ListStages(ctx)
	if err != nil {
		return string(id)
	}
	for _, st := range stages {
		if st.ID == id {
			return st.Name
		}
	}
	return string(id)
}
