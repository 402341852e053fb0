package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "savtrack", cmd.Use, "Root command should be 'savtrack'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 3, "Should have 3 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["import"], "Should have 'import' command")
	assert.True(t, commandNames["stats"], "Should have 'stats' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildImportCommand(t *testing.T) {
	cmd := buildImportCommand()

	assert.NotNil(t, cmd, "buildImportCommand should return a non-nil command")
	assert.Equal(t, "import", cmd.Use, "Command should be 'import'")

	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")

	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildStatsCommand(t *testing.T) {
	cmd := buildStatsCommand()

	assert.NotNil(t, cmd, "buildStatsCommand should return a non-nil command")
	assert.Equal(t, "stats", cmd.Use, "Command should be 'stats'")
	assert.Contains(t, cmd.Short, "statistics", "Short description should mention 'statistics'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
store:
  path: "./data/jobs.db"

audit:
  path: "./data/audit.log"

snapshot:
  path: "./data/sessions.json"
  interval_seconds: 30

engine:
  stats_interval_seconds: 15
  timer_tick_ms: 1000

server:
  port: 8080

metrics:
  enabled: true
  port: 9090
`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err, "Failed to write test config file")

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "loadConfig should not return an error")
	require.NotNil(t, cfg, "Config should not be nil")

	assert.Equal(t, "./data/jobs.db", cfg.Store.Path, "Store path should be set")
	assert.Equal(t, "./data/audit.log", cfg.Audit.Path, "Audit path should be set")
	assert.Equal(t, "./data/sessions.json", cfg.Snapshot.Path, "Snapshot path should be set")
	assert.Equal(t, 30, cfg.Snapshot.IntervalSeconds, "Snapshot interval should be 30")
	assert.Equal(t, 15, cfg.Engine.StatsIntervalSeconds, "Stats interval should be 15")
	assert.Equal(t, 1000, cfg.Engine.TimerTickMs, "Timer tick should be 1000ms")
	assert.Equal(t, 8080, cfg.Server.Port, "Server port should be 8080")
	assert.True(t, cfg.Metrics.Enabled, "Metrics should be enabled")
	assert.Equal(t, 9090, cfg.Metrics.Port, "Metrics port should be 9090")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err, "loadConfig should return an error for nonexistent file")
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file", "Error should mention file reading failure")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  port: "not a number"
  invalid yaml structure
    broken indentation
`

	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err, "Failed to write invalid YAML file")

	cfg, err := loadConfig(configPath)

	assert.Error(t, err, "loadConfig should return an error for invalid YAML")
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML", "Error should mention YAML parsing failure")
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	require.NoError(t, err, "Failed to write empty file")

	cfg, err := loadConfig(configPath)
	assert.NoError(t, err, "Empty YAML file should parse without error")
	assert.NotNil(t, cfg, "Config should not be nil for empty file")
	assert.Equal(t, 0, cfg.Server.Port, "Empty config should have zero values")
}

func TestLoadConfig_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.yaml")

	partialConfig := `
server:
  port: 8081
`

	err := os.WriteFile(configPath, []byte(partialConfig), 0644)
	require.NoError(t, err, "Failed to write partial config")

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "Partial config should parse successfully")
	assert.Equal(t, 8081, cfg.Server.Port, "Server port should be set")
	assert.Empty(t, cfg.Store.Path, "Unset fields should have zero values")
}

func TestImportJobs_InvalidFile(t *testing.T) {
	err := importJobs("/nonexistent/jobs.json")

	assert.Error(t, err, "importJobs should return error for nonexistent file")
	assert.Contains(t, err.Error(), "failed to read job file", "Error should mention file reading failure")
}

func TestImportJobs_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	jobFile := filepath.Join(tmpDir, "invalid.json")

	invalidJSON := `{"invalid json structure`

	err := os.WriteFile(jobFile, []byte(invalidJSON), 0644)
	require.NoError(t, err, "Failed to write invalid JSON")

	err = importJobs(jobFile)

	assert.Error(t, err, "importJobs should return error for invalid JSON")
	assert.Contains(t, err.Error(), "failed to parse job file", "Error should mention JSON parsing failure")
}

func TestDefaultStagesCoverEveryBucket(t *testing.T) {
	seen := make(map[string]bool)
	for _, stage := range defaultStages {
		seen[stage.Category.String()] = true
	}

	assert.True(t, seen["new"], "Default stages should include a new stage")
	assert.True(t, seen["in_progress"], "Default stages should include an in-progress stage")
	assert.True(t, seen["waiting_parts"], "Default stages should include a waiting-parts stage")
	assert.True(t, seen["completed"], "Default stages should include a completed stage")
}
