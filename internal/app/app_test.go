package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/internal/config"
	"marketcore/internal/errors"
	"marketcore/internal/shared/testutil"
	"marketcore/internal/store"
)

func TestNewWiresComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "history.db")}

	var logs bytes.Buffer
	a, err := New(cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.NotNil(t, a.Loader)
	assert.NotNil(t, a.Validator)
	assert.NotNil(t, a.Exporter)
	assert.IsType(t, &store.SQLiteStore{}, a.History)
	assert.NotNil(t, a.OTelProviders.PrometheusHTTP)

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 5)))
	res, err := a.DataService.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Contains(t, logs.String(), "Ingest complete")

	router, err := a.Router()
	require.NoError(t, err)
	for _, path := range []string{"/healthz", "/readyz", "/runs", "/runs/" + res.RunID, "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewWithTelemetryDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = false

	a, err := New(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.OTelProviders.PrometheusHTTP)
	assert.IsType(t, &store.MemoryStore{}, a.History)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Load.ConcurrencyLimit = -3

	_, err := New(cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrTypeConfig, errors.GetErrorType(err))
}
