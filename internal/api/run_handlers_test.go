package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/store"
)

func TestRunHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{
		runs: []store.Run{{
			ID:        uuid.New(),
			Status:    store.RunCompleted,
			StartedAt: time.Now().Add(-time.Hour),
			Region:    "IND",
			Target:    100,
			Totals:    store.Outcomes{Generated: 101, Rare: 3},
		}},
	}
	handler := NewRunHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=Completed&limit=1000&offset=5", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []map[string]any `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.InDelta(t, 101, body.Runs[0]["generated"], 0)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, store.RunCompleted, *repo.lastStatus)
	require.Equal(t, maxRunLimit, repo.lastLimit)
	require.Equal(t, 5, repo.lastOffset)
}

func TestRunHandlerListRunsRejectsBadFilters(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{}, zap.NewNop())
	for _, target := range []string{"/api/runs?status=paused", "/api/runs?limit=-1", "/api/runs?offset=x"} {
		rec := httptest.NewRecorder()
		handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRunHandlerListRunsRepoError(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{err: errors.New("boom")}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunHandlerGetRun(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	msg := "all workers exited before the target was reached"
	repo := &mockRunRepo{runs: []store.Run{{ID: runID, Status: store.RunCompleted, ErrorMessage: &msg}}}
	handler := NewRunHandler(repo, zap.NewNop())

	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+runID.String(), nil), runID.String())
	rec := httptest.NewRecorder()
	handler.GetRun(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, runID.String(), body.Run.ID)
	require.Equal(t, msg, *body.Run.Error)
}

func TestRunHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{err: store.ErrNotFound}, zap.NewNop())
	runID := uuid.New()
	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+runID.String(), nil), runID.String())
	rec := httptest.NewRecorder()
	handler.GetRun(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandlerGetRunInvalidID(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{}, zap.NewNop())
	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil), "nope")
	rec := httptest.NewRecorder()
	handler.GetRun(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type mockRunRepo struct {
	runs []store.Run
	err  error

	lastStatus *store.RunStatus
	lastLimit  int
	lastOffset int
}

func (m *mockRunRepo) UpsertRunStart(context.Context, store.Run) error {
	return m.err
}

func (m *mockRunRepo) CompleteRun(context.Context, uuid.UUID, time.Time, store.RunStatus, *string) error {
	return m.err
}

func (m *mockRunRepo) AddOutcomes(context.Context, uuid.UUID, store.Outcomes) error {
	return m.err
}

func (m *mockRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	if len(m.runs) > 0 {
		return m.runs[0], nil
	}
	return store.Run{}, m.err
}

func (m *mockRunRepo) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	m.lastStatus, m.lastLimit, m.lastOffset = status, limit, offset
	return m.runs, m.err
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
