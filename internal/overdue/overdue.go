// Package overdue computes how a job's due date relates to a reference
// instant. Pure and total: never fails, deterministic for its two inputs.
package overdue

import (
	"time"

	"github.com/atelierops/savtrack/pkg/types"
)

const (
	msPerMinute int64 = 60 * 1000
	msPerHour   int64 = 60 * msPerMinute
	msPerDay    int64 = 24 * msPerHour
)

// Evaluate decomposes the absolute distance between now and the due date
// into day/hour/minute components using integer floor division.
// IsOverdue is true when the due date lies strictly in the past.
func Evaluate(due, now time.Time) types.TimeStatus {
	deltaMs := due.Sub(now).Milliseconds()
	isOverdue := deltaMs < 0
	if deltaMs < 0 {
		deltaMs = -deltaMs
	}

	return types.TimeStatus{
		DaysRemaining:    int(deltaMs / msPerDay),
		HoursRemaining:   int((deltaMs % msPerDay) / msPerHour),
		MinutesRemaining: int((deltaMs % msPerHour) / msPerMinute),
		IsOverdue:        isOverdue,
	}
}
