package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/orchestrator"
	"github.com/JakeFAU/reverse411/internal/store"
)

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerReadyzWithoutRun(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerProgress(t *testing.T) {
	t.Parallel()

	snap := orchestrator.Snapshot{RunID: "run-1", Running: true, Total: 25, Completed: 12, Pending: 3, Written: 9}
	server := NewServer(fakeSnapshots{snap: snap}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got orchestrator.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, snap, got)
}

func TestServerMetrics(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "reverse411_lookups_in_flight")
}

func TestServerRunsRouteMountedOnlyWithLedger(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	path := "/v1/runs/" + id.String()

	rec := httptest.NewRecorder()
	NewServer(nil, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	repo := &mockLedgerRepo{run: store.Run{ID: id, Status: store.RunRunning}}
	rec = httptest.NewRecorder()
	NewServer(nil, NewRunHandler(repo, nil), nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), id.String())
}

func TestServerRecoversPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(panicSnapshots{}, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeSnapshots struct {
	snap orchestrator.Snapshot
}

func (f fakeSnapshots) Snapshot() orchestrator.Snapshot { return f.snap }

type panicSnapshots struct{}

func (panicSnapshots) Snapshot() orchestrator.Snapshot { panic("boom") }
