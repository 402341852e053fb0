// ============================================================================
// SAVTrack CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   savtrack                       # Root command
//   ├── run                        # Start the tracking service
//   │   └── --config, -c          # Specify config file
//   ├── import                     # Bulk-create jobs from JSON
//   │   └── --file, -f            # Specify job JSON file
//   ├── stats                      # Show workshop statistics
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Configuration items include:
//   - store: SQLite database path
//   - audit: append-only audit log path
//   - snapshot: session snapshot path and interval
//   - server: HTTP API port
//   - metrics: Prometheus monitoring configuration
//
// run Command:
//   Starts the complete tracking service:
//   1. Load config file
//   2. Open the job store and audit log, seed default stages
//   3. Create and start the Engine (session recovery included)
//   4. Start the HTTP API and, if enabled, the metrics server
//   5. Listen for system signals (SIGINT, SIGTERM)
//   6. Gracefully shutdown: final session snapshot, flush audit log
//
//   Examples:
//     ./savtrack run
//     ./savtrack run -c custom-config.yaml
//
// import Command:
//   Batch create jobs from a JSON file
//   JSON format:
//   [
//     {
//       "stage_id": "stage-new",
//       "urgent": true,
//       "due_at": "2026-09-15T18:00:00Z"
//     }
//   ]
//
//   Examples:
//     ./savtrack import -f jobs.json
//
// stats Command:
//   Display current workshop statistics from the job store:
//   bucket counts, urgent and overdue jobs, completion rate.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atelierops/savtrack/internal/engine"
	"github.com/atelierops/savtrack/internal/metrics"
	"github.com/atelierops/savtrack/internal/server"
	"github.com/atelierops/savtrack/internal/stats"
	"github.com/atelierops/savtrack/internal/storage/auditlog"
	"github.com/atelierops/savtrack/internal/storage/jobstore"
	"github.com/atelierops/savtrack/pkg/types"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Audit struct {
		Path string `yaml:"path"`
	} `yaml:"audit"`

	Snapshot struct {
		Path            string `yaml:"path"`
		IntervalSeconds int    `yaml:"interval_seconds"`
	} `yaml:"snapshot"`

	Engine struct {
		StatsIntervalSeconds int `yaml:"stats_interval_seconds"`
		TimerTickMs          int `yaml:"timer_tick_ms"`
	} `yaml:"engine"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// defaultStages is the stage set seeded into an empty store.
var defaultStages = []types.Stage{
	{ID: "stage-new", Name: "Nouveau", Color: "#2196f3", Order: 0, Category: types.CategoryNew},
	{ID: "stage-diagnostic", Name: "Diagnostic", Color: "#9c27b0", Order: 1, Category: types.CategoryInProgress},
	{ID: "stage-repair", Name: "En cours de réparation", Color: "#ff9800", Order: 2, Category: types.CategoryInProgress},
	{ID: "stage-parts", Name: "En attente de pièces", Color: "#795548", Order: 3, Category: types.CategoryWaitingParts},
	{ID: "stage-done", Name: "Terminé", Color: "#4caf50", Order: 4, Category: types.CategoryCompleted},
	{ID: "stage-returned", Name: "Rendu au client", Color: "#607d8b", Order: 5, Category: types.CategoryCompleted},
}

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "savtrack",
		Short: "SAVTrack: repair work-session and lifecycle tracking",
		Long: `SAVTrack is a workshop tracking service with:
- Per-job work-session timers with pause/resume
- Audited lifecycle stage transitions
- Live statistics and overdue evaluation
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildImportCommand())
	rootCmd.AddCommand(buildStatsCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the SAVTrack service",
		Long:  "Start the engine, the HTTP API, and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService()
		},
	}
	return cmd
}

func runService() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Printf("Starting SAVTrack with config: %s\n", configFile)

	e, store, audit, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	defer audit.Close()

	// Start Metrics
	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Printf("Starting metrics server on %s\n", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	// Start Engine
	if err := e.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Start HTTP API
	api := &server.Server{Engine: e}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.Router(),
	}
	go func() {
		log.Printf("HTTP API listening on %s\n", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("\nReceived shutdown signal, stopping gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v\n", err)
	}

	e.Stop()
	if err := audit.Flush(); err != nil {
		log.Printf("Audit flush error: %v\n", err)
	}

	log.Println("System stopped. Goodbye!")
	return nil
}

// buildEngine opens the store and audit log and assembles the engine.
// Caller owns closing the returned store and audit log.
func buildEngine(cfg *Config) (*engine.Engine, *jobstore.Store, *auditlog.Log, error) {
	for _, path := range []string{cfg.Store.Path, cfg.Audit.Path, cfg.Snapshot.Path} {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
			}
		}
	}

	store, err := jobstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open job store: %w", err)
	}

	if err := store.SeedStages(context.Background(), defaultStages); err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("failed to seed stages: %w", err)
	}

	audit, err := auditlog.Open(cfg.Audit.Path)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	e := engine.New(engine.Config{
		TimerTickInterval: time.Duration(cfg.Engine.TimerTickMs) * time.Millisecond,
		StatsInterval:     time.Duration(cfg.Engine.StatsIntervalSeconds) * time.Second,
		SnapshotInterval:  time.Duration(cfg.Snapshot.IntervalSeconds) * time.Second,
		SnapshotPath:      cfg.Snapshot.Path,
	}, store, audit, metrics.NewCollector())

	return e, store, audit, nil
}

func buildImportCommand() *cobra.Command {
	var jobFile string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import jobs from a JSON file",
		Long:  "Read job definitions from a JSON file and create them in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile == "" {
				return fmt.Errorf("job file is required (use --file or -f)")
			}
			return importJobs(jobFile)
		},
	}

	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "JSON file containing job definitions")
	cmd.MarkFlagRequired("file")

	return cmd
}

func importJobs(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read job file: %w", err)
	}

	var jobsInput []struct {
		StageID string `json:"stage_id"`
		Urgent  bool   `json:"urgent"`
		DueAt   string `json:"due_at"`
	}

	if err := json.Unmarshal(data, &jobsInput); err != nil {
		return fmt.Errorf("failed to parse job file: %w", err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	e, store, audit, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	defer audit.Close()

	ctx := context.Background()
	successCount := 0
	for i, j := range jobsInput {
		var dueAt time.Time
		if j.DueAt != "" {
			parsed, err := time.Parse(time.RFC3339, j.DueAt)
			if err != nil {
				log.Printf("Skipping entry %d: invalid due_at %q: %v\n", i, j.DueAt, err)
				continue
			}
			dueAt = parsed
		}

		job, err := e.CreateJob(ctx, engine.CreateJobParams{
			StageID: types.StageID(j.StageID),
			Urgent:  j.Urgent,
			DueAt:   dueAt,
			Actor:   "import",
		})
		if err != nil {
			log.Printf("Failed to create job from entry %d: %v\n", i, err)
			continue
		}
		log.Printf("Created job %s\n", job.Number)
		successCount++
	}

	log.Printf("Successfully imported %d/%d jobs from %s\n", successCount, len(jobsInput), filePath)
	return nil
}

func buildStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show workshop statistics",
		Long:  "Display job counts per stage bucket, urgency, overdue jobs, and completion rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStats()
		},
	}
	return cmd
}

func showStats() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := jobstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs, err := store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	stages, err := store.ListStages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stages: %w", err)
	}

	snap := stats.Compute(jobs, stages, time.Now())

	fmt.Println("\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║           SAVTrack Workshop Statistics                    ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("📋 Configuration:")
	fmt.Printf("  └─ Config File:  %s\n", configFile)
	fmt.Printf("  └─ Job Store:    %s\n", cfg.Store.Path)
	fmt.Printf("  └─ Audit Log:    %s\n", cfg.Audit.Path)
	fmt.Println()

	fmt.Println("📊 Job Statistics:")
	fmt.Printf("  ├─ Total Jobs:       %d\n", snap.TotalJobs)
	fmt.Printf("  ├─ 🆕 New:            %d\n", snap.NewCount)
	fmt.Printf("  ├─ 🔄 In Progress:    %d\n", snap.InProgressCount)
	fmt.Printf("  ├─ 📦 Waiting Parts:  %d\n", snap.WaitingPartsCount)
	fmt.Printf("  ├─ ✅ Completed:      %d\n", snap.CompletedCount)
	fmt.Printf("  └─ ❓ Other:          %d\n", snap.OtherCount)
	fmt.Println()

	fmt.Println("⚠️  Attention:")
	fmt.Printf("  ├─ Urgent:   %d\n", snap.UrgentCount)
	fmt.Printf("  └─ Overdue:  %d\n", snap.OverdueCount)
	fmt.Println()

	if snap.TotalJobs > 0 {
		fmt.Printf("📈 Completion Rate: %.1f%%\n", snap.CompletionRate)
		if snap.AverageMinutes > 0 {
			fmt.Printf("⏱️  Average Work Time: %.0f minutes\n", snap.AverageMinutes)
		}
		fmt.Println()
	}

	fmt.Println("📡 Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  └─ Status: ✅ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  └─ Status: ⚠️  Disabled")
	}
	fmt.Println()

	fmt.Println("═══════════════════════════════════════════════════════════")
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}
