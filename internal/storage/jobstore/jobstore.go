// ============================================================================
// SAVTrack Job Store - SQLite Implementation
// ============================================================================
//
// Package: internal/storage/jobstore
// File: jobstore.go
// Purpose: Reference implementation of the external job store the engine
// consumes: repair jobs and the configured stage set
//
// Notes:
//   The engine treats the store as an external collaborator and only ever
//   calls the query/command surface below. The job number carries a UNIQUE
//   constraint; duplicate inserts surface as ErrDuplicateNumber so the
//   caller can regenerate and retry.
//
// ============================================================================

package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelierops/savtrack/pkg/types"
)

// Predefined errors
var (
	ErrJobNotFound     = errors.New("jobstore: job not found")
	ErrStageNotFound   = errors.New("jobstore: stage not found")
	ErrDuplicateNumber = errors.New("jobstore: job number already exists")
)

// Store is a SQLite-backed job store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS stages (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			ord INTEGER NOT NULL DEFAULT 0,
			category INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			stage_id TEXT NOT NULL,
			urgent INTEGER NOT NULL DEFAULT 0,
			due_at INTEGER,
			created_at INTEGER NOT NULL,
			actual_minutes INTEGER,
			paid INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_stage ON jobs(stage_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// CreateJob inserts a new job. A colliding job number returns
// ErrDuplicateNumber.
func (s *Store) CreateJob(ctx context.Context, job types.Job) error {
	var dueAt any
	if !job.DueAt.IsZero() {
		dueAt = job.DueAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, number, stage_id, urgent, due_at, created_at, actual_minutes, paid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(job.ID),
		job.Number,
		string(job.StageID),
		boolToInt(job.Urgent),
		dueAt,
		job.CreatedAt.UnixMilli(),
		job.ActualMinutes,
		boolToInt(job.Paid),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: jobs.number") {
			return ErrDuplicateNumber
		}
		return err
	}
	return nil
}

// GetJob loads one job by id, or ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id types.JobID) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, number, stage_id, urgent, due_at, created_at, actual_minutes, paid
		 FROM jobs WHERE id = ?`, string(id))

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListJobs returns every job, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, stage_id, urgent, due_at, created_at, actual_minutes, paid
		 FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobStage moves a job to another stage. The destination stage must
// exist; unknown jobs return ErrJobNotFound.
func (s *Store) UpdateJobStage(ctx context.Context, id types.JobID, stageID types.StageID) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM stages WHERE id = ?`, string(stageID)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrStageNotFound
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET stage_id = ? WHERE id = ?`, string(stageID), string(id))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateActualMinutes records the hands-on duration of a job.
func (s *Store) UpdateActualMinutes(ctx context.Context, id types.JobID, minutes int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET actual_minutes = ? WHERE id = ?`, minutes, string(id))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListStages returns the configured stage set in display order.
func (s *Store) ListStages(ctx context.Context) ([]types.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color, ord, category FROM stages ORDER BY ord ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []types.Stage
	for rows.Next() {
		var st types.Stage
		var category int
		if err := rows.Scan(&st.ID, &st.Name, &st.Color, &st.Order, &category); err != nil {
			return nil, err
		}
		st.Category = types.StageCategory(category)
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// UpsertStage inserts or replaces one stage definition.
func (s *Store) UpsertStage(ctx context.Context, stage types.Stage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (id, name, color, ord, category) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, color=excluded.color,
		 ord=excluded.ord, category=excluded.category`,
		string(stage.ID), stage.Name, stage.Color, stage.Order, int(stage.Category))
	return err
}

// SeedStages installs stage definitions only when the stage table is empty.
func (s *Store) SeedStages(ctx context.Context, stages []types.Stage) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM stages`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, st := range stages {
		if err := s.UpsertStage(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*types.Job, error) {
	var (
		id, number, stageID string
		urgent, paid        int
		dueAt               sql.NullInt64
		createdMs           int64
		actualMinutes       sql.NullInt64
	)
	if err := row.Scan(&id, &number, &stageID, &urgent, &dueAt, &createdMs, &actualMinutes, &paid); err != nil {
		return nil, err
	}

	job := &types.Job{
		ID:        types.JobID(id),
		Number:    number,
		StageID:   types.StageID(stageID),
		Urgent:    urgent != 0,
		CreatedAt: time.UnixMilli(createdMs),
		Paid:      paid != 0,
	}
	if dueAt.Valid {
		job.DueAt = time.UnixMilli(dueAt.Int64)
	}
	if actualMinutes.Valid {
		m := int(actualMinutes.Int64)
		job.ActualMinutes = &m
	}
	return job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
