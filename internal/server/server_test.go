package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierops/savtrack/internal/engine"
	"github.com/atelierops/savtrack/internal/metrics"
	"github.com/atelierops/savtrack/internal/storage/jobstore"
	"github.com/atelierops/savtrack/pkg/types"
)

type nullSink struct{}

func (nullSink) Append(types.AuditEntry) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	store, err := jobstore.Open(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = store.SeedStages(context.Background(), []types.Stage{
		{ID: "stage-new", Name: "Nouveau", Color: "#2196f3", Order: 0},
		{ID: "stage-wip", Name: "En cours", Color: "#ff9800", Order: 1},
		{ID: "stage-done", Name: "Terminé", Color: "#4caf50", Order: 2, Category: types.CategoryCompleted},
	})
	require.NoError(t, err)

	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	e := engine.New(engine.Config{
		SnapshotPath:     filepath.Join(dir, "sessions.json"),
		StatsInterval:    time.Hour,
		SnapshotInterval: time.Hour,
	}, store, nullSink{}, metrics.NewCollector())

	return &Server{Engine: e}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func createJob(t *testing.T, h http.Handler, body map[string]any) types.Job {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/jobs", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job types.Job
	decodeBody(t, rec, &job)
	return job
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t).Router()
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateAndGetJob(t *testing.T) {
	h := newTestServer(t).Router()

	job := createJob(t, h, map[string]any{"urgent": true, "actor": "marie"})
	assert.Regexp(t, `^REP-\d{8}-\d{4}$`, job.Number)
	assert.True(t, job.Urgent)
	assert.Equal(t, types.StageID("stage-new"), job.StageID)

	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/"+string(job.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Job
	decodeBody(t, rec, &got)
	assert.Equal(t, job.Number, got.Number)
}

func TestGetJobNotFound(t *testing.T) {
	h := newTestServer(t).Router()
	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateJobRejectsBadDueDate(t *testing.T) {
	h := newTestServer(t).Router()
	rec := doJSON(t, h, http.MethodPost, "/v1/jobs", map[string]any{"due_at": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionEndpoint(t *testing.T) {
	h := newTestServer(t).Router()
	job := createJob(t, h, map[string]any{})

	rec := doJSON(t, h, http.MethodPost, "/v1/jobs/"+string(job.ID)+"/transition",
		map[string]any{"to_stage_id": "stage-done", "actor": "marc"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entry types.AuditEntry
	decodeBody(t, rec, &entry)
	assert.Equal(t, types.ActionStatusChange, entry.Action)
	assert.Contains(t, entry.Description, "Terminé")
	assert.Equal(t, "stage-new", entry.Metadata["from_stage"])
}

func TestTransitionUnknownStage(t *testing.T) {
	h := newTestServer(t).Router()
	job := createJob(t, h, map[string]any{})

	rec := doJSON(t, h, http.MethodPost, "/v1/jobs/"+string(job.ID)+"/transition",
		map[string]any{"to_stage_id": "stage-bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionMissingStageID(t *testing.T) {
	h := newTestServer(t).Router()
	job := createJob(t, h, map[string]any{})

	rec := doJSON(t, h, http.MethodPost, "/v1/jobs/"+string(job.ID)+"/transition", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimerEndpoints(t *testing.T) {
	h := newTestServer(t).Router()
	job := createJob(t, h, map[string]any{})
	base := "/v1/jobs/" + string(job.ID) + "/timer"

	rec := doJSON(t, h, http.MethodPost, base+"/start", map[string]any{"actor": "marie"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Session   types.WorkSession `json:"session"`
		Formatted string            `json:"formatted"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Session.IsActive)
	assert.Regexp(t, `^\d{2,}:\d{2}:\d{2}$`, resp.Formatted)

	rec = doJSON(t, h, http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Session.IsPaused)

	rec = doJSON(t, h, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Session.IsPaused)

	rec = doJSON(t, h, http.MethodGet, "/v1/timers/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []json.RawMessage
	decodeBody(t, rec, &active)
	assert.Len(t, active, 1)

	rec = doJSON(t, h, http.MethodPost, base+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Session.IsActive)
	require.NotNil(t, resp.Session.EndTime)
}

func TestTimerNotFoundForUntimedJob(t *testing.T) {
	h := newTestServer(t).Router()
	job := createJob(t, h, map[string]any{})

	for _, op := range []string{"pause", "resume", "stop"} {
		rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/jobs/%s/timer/%s", job.ID, op), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, op)
	}
	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/"+string(job.ID)+"/timer/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDueStatusEndpoint(t *testing.T) {
	h := newTestServer(t).Router()

	noDue := createJob(t, h, map[string]any{})
	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/"+string(noDue.ID)+"/due", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, false, resp["has_due_date"])

	late := createJob(t, h, map[string]any{
		"due_at": time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
	})
	rec = doJSON(t, h, http.MethodGet, "/v1/jobs/"+string(late.ID)+"/due", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lateResp struct {
		HasDueDate bool             `json:"has_due_date"`
		Status     types.TimeStatus `json:"status"`
	}
	decodeBody(t, rec, &lateResp)
	assert.True(t, lateResp.HasDueDate)
	assert.True(t, lateResp.Status.IsOverdue)
}

func TestStatsAndStagesEndpoints(t *testing.T) {
	h := newTestServer(t).Router()

	createJob(t, h, map[string]any{})
	done := createJob(t, h, map[string]any{})
	rec := doJSON(t, h, http.MethodPost, "/v1/jobs/"+string(done.ID)+"/transition",
		map[string]any{"to_stage_id": "stage-done"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap types.StatsSnapshot
	decodeBody(t, rec, &snap)
	assert.Equal(t, 2, snap.TotalJobs)
	assert.Equal(t, 1, snap.CompletedCount)
	assert.InDelta(t, 50.0, snap.CompletionRate, 0.001)

	rec = doJSON(t, h, http.MethodGet, "/v1/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stages []types.Stage
	decodeBody(t, rec, &stages)
	require.Len(t, stages, 3)
	assert.Equal(t, "Nouveau", stages[0].Name)
}

func TestListJobsNewestFirst(t *testing.T) {
	h := newTestServer(t).Router()

	first := createJob(t, h, map[string]any{})
	time.Sleep(5 * time.Millisecond)
	second := createJob(t, h, map[string]any{})

	rec := doJSON(t, h, http.MethodGet, "/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []types.Job
	decodeBody(t, rec, &jobs)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}
