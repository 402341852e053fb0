// ============================================================================
// SAVTrack HTTP API
// ============================================================================
//
// Package: internal/server
// File: server.go
// Purpose: JSON/HTTP surface over the engine for workshop frontends
//
// Route map (v1):
//   POST /v1/jobs                    create a job
//   GET  /v1/jobs                    list jobs, newest first
//   GET  /v1/jobs/{id}               job detail
//   GET  /v1/jobs/{id}/due          due-date countdown
//   POST /v1/jobs/{id}/transition    move to another stage
//   POST /v1/jobs/{id}/timer/start   start or resume timing
//   POST /v1/jobs/{id}/timer/pause   pause timing
//   POST /v1/jobs/{id}/timer/resume  resume timing
//   POST /v1/jobs/{id}/timer/stop    finalize the session
//   GET  /v1/jobs/{id}/timer         current session
//   GET  /v1/timers/active           every live session
//   GET  /v1/stats                   aggregate counters
//   GET  /v1/stages                  configured stage set
//
// ============================================================================

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atelierops/savtrack/internal/engine"
	"github.com/atelierops/savtrack/internal/overdue"
	"github.com/atelierops/savtrack/internal/storage/jobstore"
	"github.com/atelierops/savtrack/internal/timer"
	"github.com/atelierops/savtrack/pkg/types"
)

// Server exposes the engine over HTTP.
type Server struct {
	Engine *engine.Engine
}

// Router assembles the chi router with the standard middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/due", s.handleDueStatus)
		r.Post("/jobs/{id}/transition", s.handleTransition)
		r.Route("/jobs/{id}/timer", func(r chi.Router) {
			r.Get("/", s.handleGetTimer)
			r.Post("/start", s.handleStartTimer)
			r.Post("/pause", s.handlePauseTimer)
			r.Post("/resume", s.handleResumeTimer)
			r.Post("/stop", s.handleStopTimer)
		})
		r.Get("/timers/active", s.handleActiveTimers)
		r.Get("/stats", s.handleStats)
		r.Get("/stages", s.handleStages)
	})

	return r
}

// ----------------------------------------------------------------------------
// Jobs
// ----------------------------------------------------------------------------

type createJobRequest struct {
	StageID string `json:"stage_id"`
	Urgent  bool   `json:"urgent"`
	DueAt   string `json:"due_at"` // RFC 3339, optional
	Actor   string `json:"actor"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	var dueAt time.Time
	if req.DueAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueAt)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid due_at: %w", err))
			return
		}
		dueAt = parsed
	}

	job, err := s.Engine.CreateJob(r.Context(), engine.CreateJobParams{
		StageID: types.StageID(req.StageID),
		Urgent:  req.Urgent,
		DueAt:   dueAt,
		Actor:   req.Actor,
	})
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Engine.ListJobs(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Engine.GetJob(r.Context(), jobID(r))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDueStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.Engine.GetJob(r.Context(), jobID(r))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if job.DueAt.IsZero() {
		writeJSON(w, http.StatusOK, map[string]any{"has_due_date": false})
		return
	}
	status := overdue.Evaluate(job.DueAt, time.Now())
	writeJSON(w, http.StatusOK, map[string]any{
		"has_due_date": true,
		"due_at":       job.DueAt,
		"status":       status,
	})
}

type transitionRequest struct {
	ToStageID string `json:"to_stage_id"`
	Actor     string `json:"actor"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.ToStageID == "" {
		writeErr(w, http.StatusBadRequest, errors.New("to_stage_id is required"))
		return
	}

	entry, err := s.Engine.Transition(r.Context(), jobID(r), types.StageID(req.ToStageID), req.Actor)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ----------------------------------------------------------------------------
// Timers
// ----------------------------------------------------------------------------

type actorRequest struct {
	Actor string `json:"actor"`
}

// decodeActor tolerates an empty body: the actor is optional on timer ops.
func decodeActor(r *http.Request) string {
	var req actorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req.Actor
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	ws := s.Engine.StartTimer(jobID(r), decodeActor(r))
	writeJSON(w, http.StatusOK, sessionResponse(ws))
}

func (s *Server) handlePauseTimer(w http.ResponseWriter, r *http.Request) {
	ws := s.Engine.PauseTimer(jobID(r))
	if ws == nil {
		writeErr(w, http.StatusNotFound, errors.New("no session for job"))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(ws))
}

func (s *Server) handleResumeTimer(w http.ResponseWriter, r *http.Request) {
	ws := s.Engine.ResumeTimer(jobID(r))
	if ws == nil {
		writeErr(w, http.StatusNotFound, errors.New("no session for job"))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(ws))
}

func (s *Server) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	ws := s.Engine.StopTimer(r.Context(), jobID(r), decodeActor(r))
	if ws == nil {
		writeErr(w, http.StatusNotFound, errors.New("no session for job"))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(ws))
}

func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	ws := s.Engine.GetTimer(jobID(r))
	if ws == nil {
		writeErr(w, http.StatusNotFound, errors.New("no session for job"))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(ws))
}

func (s *Server) handleActiveTimers(w http.ResponseWriter, r *http.Request) {
	sessions := s.Engine.ListActiveTimers()
	resp := make([]map[string]any, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, sessionResponse(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ----------------------------------------------------------------------------
// Stats and stages
// ----------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Stats(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.Engine.ListStages(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stages)
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func jobID(r *http.Request) types.JobID {
	return types.JobID(chi.URLParam(r, "id"))
}

// sessionResponse decorates a session with the HH:MM:SS rendering that
// workshop displays show.
func sessionResponse(ws *types.WorkSession) map[string]any {
	return map[string]any{
		"session":   ws,
		"formatted": timer.FormatDuration(ws.TotalMs),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobstore.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobstore.ErrStageNotFound):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNumberExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
