package auditlog

// ============================================================================
// Audit Record Definitions
// Responsibility: Record framing, checksums, and error types for the log
// ============================================================================

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/atelierops/savtrack/pkg/types"
)

// Predefined errors
var (
	// ErrCorruptedLog indicates the log file cannot be parsed
	ErrCorruptedLog = errors.New("auditlog: file is corrupted")

	// ErrChecksumMismatch indicates a record failed checksum verification
	ErrChecksumMismatch = errors.New("auditlog: checksum mismatch")

	// ErrClosed indicates the log is closed and rejects further appends
	ErrClosed = errors.New("auditlog: already closed")
)

// Record is one framed line of the audit log: the immutable entry plus a
// monotonically increasing sequence number and a CRC32 over the fields
// that must never drift.
type Record struct {
	Seq      uint64           `json:"seq"`
	Entry    types.AuditEntry `json:"entry"`
	Checksum uint32           `json:"checksum"`
}

// RecordHandler is called for each record during Replay.
type RecordHandler func(rec Record) error

// checksum computes the CRC32-IEEE over the record's stable fields.
// The free-text description is included: audit text must not be editable
// after the fact without detection.
func checksum(entry types.AuditEntry, seq uint64) uint32 {
	data := fmt.Sprintf("%d|%s|%s|%s|%s",
		seq, entry.Action, entry.JobID, entry.Actor, entry.Description)
	return crc32.ChecksumIEEE([]byte(data))
}

// verify recomputes a record's checksum and compares.
func verify(rec Record) bool {
	return rec.Checksum == checksum(rec.Entry, rec.Seq)
}
