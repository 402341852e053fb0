package timer

// ============================================================================
// Duration Clock
// Responsibility: Render an elapsed millisecond count as HH:MM:SS
// ============================================================================

import "fmt"

// FormatDuration converts elapsed milliseconds to a HH:MM:SS string.
// Negative inputs clamp to zero; hours widen past two digits as needed.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	totalSeconds := ms / 1000
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
