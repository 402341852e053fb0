package snapshot

// ============================================================================
// Responsibility:
// 1. Serialize the timer registry's session table to a JSON snapshot file
// 2. Atomic writes (temp file + rename) so a crash never leaves a torn file
// 3. Validate schema version compatibility on load
// 4. Give the host the persistence affordance for otherwise-ephemeral
//    session state
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/atelierops/savtrack/pkg/types"
)

// Predefined errors
var (
	ErrCorruptedSnapshot   = errors.New("snapshot: file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot: schema version is incompatible")
)

const schemaVersion = 1

// SessionSnapshot is the persisted form of the registry's session table.
type SessionSnapshot struct {
	Sessions  map[types.JobID]types.WorkSession `json:"sessions"`
	SchemaVer int                               `json:"schema_version"`
}

// Manager persists and restores session snapshots at a fixed path.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a snapshot manager for the given file path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write atomically replaces the snapshot file with the given session set.
func (m *Manager) Write(snap SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap.SchemaVer = schemaVersion

	jsonBytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file is a first start and returns an
// empty snapshot, not an error.
func (m *Manager) Load() (SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap SessionSnapshot

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			snap.Sessions = make(map[types.JobID]types.WorkSession)
			snap.SchemaVer = schemaVersion
			return snap, nil
		}
		return snap, fmt.Errorf("read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &snap); err != nil {
		return snap, ErrCorruptedSnapshot
	}
	if snap.SchemaVer != schemaVersion {
		return snap, fmt.Errorf("%w: got %d, want %d",
			ErrIncompatibleVersion, snap.SchemaVer, schemaVersion)
	}
	if snap.Sessions == nil {
		snap.Sessions = make(map[types.JobID]types.WorkSession)
	}
	return snap, nil
}
