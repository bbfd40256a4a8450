package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketcore/internal/config"
	"marketcore/internal/errors"
	"marketcore/internal/infrastructure"
	"marketcore/internal/loader"
	"marketcore/internal/shared/testutil"
	"marketcore/internal/store"
	"marketcore/internal/validation"
	"marketcore/pkg/contracts/domain"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// MockHistoryStore is a mock for store.HistoryStore
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Record(ctx context.Context, run store.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockHistoryStore) Get(ctx context.Context, id string) (store.Run, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Run), args.Error(1)
}

func (m *MockHistoryStore) List(ctx context.Context, filter store.Filter) ([]store.Run, error) {
	args := m.Called(ctx, filter)
	runs, _ := args.Get(0).([]store.Run)
	return runs, args.Error(1)
}

func (m *MockHistoryStore) Close() error {
	return m.Called().Error(0)
}

func newTestDataService(t *testing.T, history store.HistoryStore) (*DataService, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	telemetry := infrastructure.NoopProviders()

	cfg := config.Default()
	cfg.Load.ConcurrencyLimit = 4
	l, err := loader.NewService(cfg.Load, loader.WithLogger(logger), loader.WithTelemetry(telemetry))
	require.NoError(t, err)
	v, err := validation.NewValidator(cfg.Validation, validation.WithLogger(logger), validation.WithTelemetry(telemetry))
	require.NoError(t, err)

	ds, err := NewDataService(l, v, history, WithLogger(logger), WithTelemetry(telemetry))
	require.NoError(t, err)
	ids := 0
	ds.newID = func() string {
		ids++
		return fmt.Sprintf("run-%d", ids)
	}
	return ds, handler
}

func TestNewDataServiceRequiresComponents(t *testing.T) {
	_, err := NewDataService(nil, nil, nil)
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 5)))
	testutil.WriteFile(t, dir, "b.jsonl", testutil.JSONLines(testutil.DailyBars("BBB", day0, 3)))

	history := store.NewMemoryStore()
	ds, handler := newTestDataService(t, history)

	res, err := ds.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, res.Valid(), "issues: %v", res.Report.Issues())
	assert.Equal(t, 8, res.Batch.Aggregate.NumRows())
	assert.Equal(t, []int{0, 1}, res.Batch.Contributing)

	run, err := ds.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, dir, run.Target)
	assert.Equal(t, 2, run.Loaded)
	assert.Equal(t, 8, run.Rows)
	assert.True(t, run.Valid)

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "Ingest complete")
	assert.True(t, handler.ContainsAttr("result", "valid"))
	testutil.AssertNoErrors(t, handler)
}

func TestIngestPathsReportsConsistencyErrors(t *testing.T) {
	dir := t.TempDir()
	bars := testutil.DailyBars("AAA", day0, 4)
	bars[2].Volume = -5
	bad := testutil.WriteFile(t, dir, "bad.csv", testutil.CSV(bars))
	good := testutil.WriteFile(t, dir, "good.csv", testutil.CSV(testutil.DailyBars("BBB", day0, 2)))

	ds, _ := newTestDataService(t, store.NewMemoryStore())
	res, err := ds.IngestPaths(context.Background(), []string{bad, good})
	require.NoError(t, err)

	assert.False(t, res.Valid())
	errs := res.Report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, domain.CategoryConsistency, errs[0].Category)
	assert.Equal(t, []int{2}, errs[0].Rows)

	assert.Equal(t, 1, res.Run.Errors)
	assert.False(t, res.Run.Valid)
	assert.Equal(t, bad+","+good, res.Run.Target)
}

func TestIngestIsolatesFailedSources(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 3)))
	testutil.WriteFile(t, dir, "b.parquet", "PAR1\x00\x00\x00\x00\x13\x37garbagePAR1")
	testutil.WriteFile(t, dir, "c.csv", testutil.CSV(testutil.DailyBars("CCC", day0, 3)))

	ds, _ := newTestDataService(t, store.NewMemoryStore())
	res, err := ds.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)

	loaded, skipped, failed := res.Batch.Counts()
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, failed)
	assert.True(t, res.Valid())
	assert.Equal(t, "failed", res.Run.Outcomes[1].Status)
}

func TestIngestEmptyDirectory(t *testing.T) {
	ds, _ := newTestDataService(t, store.NewMemoryStore())
	res, err := ds.IngestDirectory(context.Background(), t.TempDir(), false)
	require.NoError(t, err)

	assert.True(t, res.Batch.Empty())
	assert.True(t, errors.IsAggregateEmpty(res.Batch.Err()))
	assert.Nil(t, res.Report)
	assert.False(t, res.Valid())
	assert.False(t, res.Run.Valid)
}

func TestIngestDirectoryBadRoot(t *testing.T) {
	history := store.NewMemoryStore()
	ds, _ := newTestDataService(t, history)

	res, err := ds.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), false)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, errors.ErrTypeConfig, errors.GetErrorType(err))

	runs, err := history.List(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestIngestCancelledIsRecorded(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 3)))

	history := store.NewMemoryStore()
	ds, _ := newTestDataService(t, history)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := ds.IngestPaths(ctx, []string{path})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Batch.Cancelled)

	run, err := history.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.True(t, run.Cancelled)
	assert.False(t, run.Valid)
}

func TestIngestSurvivesHistoryFailure(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 3)))

	history := new(MockHistoryStore)
	history.On("Record", mock.Anything, mock.AnythingOfType("store.Run")).
		Return(fmt.Errorf("disk full")).Once()

	ds, handler := newTestDataService(t, history)
	res, err := ds.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.True(t, res.Valid())

	history.AssertExpectations(t)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Failed to record run")
}

func TestRunsWithoutHistory(t *testing.T) {
	ds, _ := newTestDataService(t, nil)

	_, err := ds.Runs(context.Background(), store.Filter{})
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = ds.Run(context.Background(), "x")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestRunsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 3)))

	ds, _ := newTestDataService(t, store.NewMemoryStore())
	clock := day0
	ds.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for i := 0; i < 3; i++ {
		_, err := ds.IngestDirectory(context.Background(), dir, false)
		require.NoError(t, err)
	}

	runs, err := ds.Runs(context.Background(), store.Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
}
