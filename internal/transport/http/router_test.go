package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/internal/infrastructure"
	"marketcore/internal/middleware"
	"marketcore/internal/services"
	"marketcore/internal/shared/testutil"
	"marketcore/internal/store"
)

// historyRuns serves runs straight from a store
type historyRuns struct{ history store.HistoryStore }

func (h historyRuns) Runs(ctx context.Context, f store.Filter) ([]store.Run, error) {
	return h.history.List(ctx, f)
}

func (h historyRuns) Run(ctx context.Context, id string) (store.Run, error) {
	return h.history.Get(ctx, id)
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, telemetry *infrastructure.OTelProviders) (http.Handler, *store.MemoryStore) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	history := store.NewMemoryStore()
	for i, valid := range []bool{false, true, true} {
		require.NoError(t, history.Record(context.Background(), store.Run{
			ID:        fmt.Sprintf("run-%d", i+1),
			Trigger:   []string{"manual", "watch", "watch"}[i],
			StartedAt: t0.Add(time.Duration(i) * time.Hour),
			Valid:     valid,
			Outcomes:  []store.OutcomeRecord{{Path: "a.csv", Status: "loaded"}},
		}))
	}
	r, err := NewRouter(RouterDeps{
		Health:    services.NewHealthService("test", history, logger),
		Runs:      historyRuns{history},
		Telemetry: telemetry,
		Logger:    logger,
	})
	require.NoError(t, err)
	return r, history
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	r, history := newTestRouter(t, nil)

	rec := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"alive"`)

	rec = get(t, r, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, history.Record(context.Background(), store.Run{ID: "bad", StartedAt: t0.Add(24 * time.Hour)}))
	rec = get(t, r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "did not validate")

	rec = get(t, r, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestRunsRoutes(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
		ids    []string
	}{
		{"all newest first", "/runs", http.StatusOK, []string{"run-3", "run-2", "run-1"}},
		{"by trigger", "/runs?trigger=manual", http.StatusOK, []string{"run-1"}},
		{"limit", "/runs?limit=1", http.StatusOK, []string{"run-3"}},
		{"since", "/runs?since=2024-03-01T10:00:00Z", http.StatusOK, []string{"run-3", "run-2"}},
		{"bad limit", "/runs?limit=0", http.StatusBadRequest, nil},
		{"bad since", "/runs?since=yesterday", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, r, tt.path)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.ids == nil {
				assert.Contains(t, rec.Body.String(), `"type":"/errors/validation"`)
				return
			}
			var body struct {
				Runs  []runSummary `json:"runs"`
				Count int          `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			ids := make([]string, len(body.Runs))
			for i, run := range body.Runs {
				ids[i] = run.ID
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, len(tt.ids), body.Count)
		})
	}
}

func TestGetRun(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := get(t, r, "/runs/run-2")
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-2", run.ID)
	assert.Len(t, run.Outcomes, 1)

	rec = get(t, r, "/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"/errors/not-found"`)
	assert.Contains(t, rec.Body.String(), `"trace_id"`)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := get(t, r, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/metrics").Code)

	cfg := infrastructure.DefaultOTelConfig()
	providers, err := infrastructure.InitializeOTel(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	r, _ = newTestRouter(t, providers)
	get(t, r, "/healthz")
	rec := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketcore_http_requests_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"trace_id":"req-42"`)
}

func TestServerStopsOnCancel(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), r, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerRunReportsListenErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = NewServer(ln.Addr().String(), http.NotFoundHandler(), nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to listen"))
}
