// ============================================================================
// SAVTrack Stats Aggregator
// ============================================================================
//
// Package: internal/stats
// File: stats.go
// Purpose: Derive operational counters from the live job population
//
// Design:
//   Compute is a pure O(n) pass over the job collection. No stored state,
//   no incremental patching: callers recompute on every relevant event,
//   trading recomputation cost for correctness simplicity at the expected
//   collection sizes (tens to low thousands of jobs).
//
// Stage Classification:
//   Each job's stage is bucketed into one of five operational categories:
//   new / in progress / waiting parts / completed / other. A stage with an
//   explicit Category configured wins outright. Stages without one fall
//   back to case-insensitive keyword matching over English and French
//   labels, tolerant of renamed and localized stage names. Unknown or
//   removed stage ids land in the "other" bucket. The partition is total
//   and disjoint: bucket counts always sum to the job total.
//
// Overdue:
//   A job counts as overdue only while its due date has passed AND it is
//   not in the completed bucket.
//
// ============================================================================

package stats

import (
	"strings"
	"time"

	"github.com/atelierops/savtrack/internal/overdue"
	"github.com/atelierops/savtrack/pkg/types"
)

// Keyword lists for stages configured without an explicit category.
// Matched as substrings against the lowercased stage name; the accented
// variants cover labels typed with and without diacritics.
var (
	completedKeywords  = []string{"complet", "terminé", "termine", "done", "finish", "livré", "livre"}
	inProgressKeywords = []string{"progress", "cours", "repar", "répar"}
	waitingKeywords    = []string{"waiting", "attente", "parts", "pièce", "piece", "command"}
	newKeywords        = []string{"new", "nouveau", "nouvelle", "reçu", "recu"}
)

// Classify resolves a stage to its operational bucket. A configured
// Category takes precedence; otherwise the name is matched against the
// keyword lists, most specific bucket first.
func Classify(stage types.Stage) types.StageCategory {
	if stage.Category != types.CategoryUnset {
		return stage.Category
	}

	name := strings.ToLower(stage.Name)
	switch {
	case matchesAny(name, completedKeywords):
		return types.CategoryCompleted
	case matchesAny(name, inProgressKeywords):
		return types.CategoryInProgress
	case matchesAny(name, waitingKeywords):
		return types.CategoryWaitingParts
	case matchesAny(name, newKeywords):
		return types.CategoryNew
	default:
		return types.CategoryOther
	}
}

func matchesAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Compute produces a fresh StatsSnapshot for the given job collection and
// stage set at the reference instant. Pure: no side effects, never fails.
func Compute(jobs []types.Job, stages []types.Stage, now time.Time) types.StatsSnapshot {
	byID := make(map[types.StageID]types.Stage, len(stages))
	for _, st := range stages {
		byID[st.ID] = st
	}

	snap := types.StatsSnapshot{TotalJobs: len(jobs)}

	var durationSum, durationCount int
	for _, job := range jobs {
		// Unknown stage ids classify as "other" via the zero Stage.
		category := Classify(byID[job.StageID])

		switch category {
		case types.CategoryNew:
			snap.NewCount++
		case types.CategoryInProgress:
			snap.InProgressCount++
		case types.CategoryWaitingParts:
			snap.WaitingPartsCount++
		case types.CategoryCompleted:
			snap.CompletedCount++
		default:
			snap.OtherCount++
		}

		if job.Urgent {
			snap.UrgentCount++
		}

		// Jobs without a due date can never be overdue.
		if !job.DueAt.IsZero() && category != types.CategoryCompleted &&
			overdue.Evaluate(job.DueAt, now).IsOverdue {
			snap.OverdueCount++
		}

		if job.ActualMinutes != nil {
			durationSum += *job.ActualMinutes
			durationCount++
		}
	}

	if durationCount > 0 {
		snap.AverageMinutes = float64(durationSum) / float64(durationCount)
	}
	if snap.TotalJobs > 0 {
		snap.CompletionRate = float64(snap.CompletedCount) / float64(snap.TotalJobs) * 100
	}

	return snap
}
