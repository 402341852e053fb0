package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierops/savtrack/pkg/types"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	m := NewManager(path)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	snap := SessionSnapshot{
		Sessions: map[types.JobID]types.WorkSession{
			"job-1": {
				ID:        "sess-1",
				JobID:     "job-1",
				StartTime: start,
				TotalMs:   90000,
				IsActive:  true,
				IsPaused:  true,
			},
		},
	}
	require.NoError(t, m.Write(snap))

	loaded, err := m.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)

	got := loaded.Sessions["job-1"]
	assert.Equal(t, types.SessionID("sess-1"), got.ID)
	assert.EqualValues(t, 90000, got.TotalMs)
	assert.True(t, got.IsActive)
	assert.True(t, got.StartTime.Equal(start))
}

func TestLoadMissingFileIsFirstStart(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "never-written.json"))

	snap, err := m.Load()
	require.NoError(t, err)
	assert.NotNil(t, snap.Sessions)
	assert.Empty(t, snap.Sessions)
}

func TestLoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewManager(path).Load()
	assert.ErrorIs(t, err, ErrCorruptedSnapshot)
}

func TestLoadRejectsIncompatibleVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"sessions":{},"schema_version":99}`), 0644))

	_, err := NewManager(path).Load()
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "sessions.json"))

	require.NoError(t, m.Write(SessionSnapshot{
		Sessions: map[types.JobID]types.WorkSession{},
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sessions.json", entries[0].Name())
}
