package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/internal/shared/testutil"
	"marketcore/internal/store"
	"marketcore/pkg/contracts/domain"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// execute runs the command tree once with telemetry off
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, s := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--no-telemetry", "--log-level", "error"}, args...))
	err := root.Execute()
	require.NoError(t, s.teardown(context.Background()))
	return out.String(), err
}

func dataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 4)))
	testutil.WriteFile(t, dir, "b.jsonl", testutil.JSONLines(testutil.DailyBars("BBB", day0, 2)))
	return dir
}

func TestVersionSkipsSetup(t *testing.T) {
	out, err := execute(t, "--config", "/does/not/exist.yaml", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "marketcore dev")
}

func TestLoadCommand(t *testing.T) {
	dir := dataDir(t)
	testutil.WriteFile(t, dir, "c.csv", "")

	out, err := execute(t, "load", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "LOADED")
	assert.Contains(t, out, "SKIPPED")
	assert.Contains(t, out, "2 loaded, 1 skipped, 0 failed; aggregate 6 rows")
}

func TestLoadCommandJSON(t *testing.T) {
	dir := dataDir(t)
	out, err := execute(t, "load", "--json", filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.jsonl"))
	require.NoError(t, err)

	var batch domain.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch.Outcomes, 2)
	assert.Equal(t, domain.FormatCSV, batch.Outcomes[0].Format)
	assert.Equal(t, domain.FormatJSONLines, batch.Outcomes[1].Format)
	assert.Equal(t, []int{0, 1}, batch.Contributing)
}

func TestLoadCommandNothingLoaded(t *testing.T) {
	_, err := execute(t, "load", t.TempDir())
	assert.ErrorIs(t, err, domain.ErrAggregateEmpty)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", dataDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "VALID (full)")
	assert.NotContains(t, out, "INVALID")
}

func TestValidateCommandInvalid(t *testing.T) {
	dir := t.TempDir()
	bars := testutil.DailyBars("AAA", day0, 4)
	bars[1].Volume = -1
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(bars))

	out, err := execute(t, "validate", dir)
	assert.ErrorIs(t, err, ErrInvalidData)
	assert.Contains(t, out, "INVALID")
	assert.Contains(t, out, "CONSISTENCY")

	// schema-only runs skip the row checks
	_, err = execute(t, "validate", "--mode", "schemaOnly", dir)
	assert.NoError(t, err)
}

func TestValidateCommandJSON(t *testing.T) {
	out, err := execute(t, "validate", "--json", "--required", "symbol,close", dataDir(t))
	require.NoError(t, err)

	var got validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Valid)
	assert.Equal(t, domain.ModeFull, got.Mode)
	assert.NotEmpty(t, got.RunID)
	assert.Empty(t, got.Issues)
}

func TestValidateCommandRejectsBadFlags(t *testing.T) {
	dir := dataDir(t)
	_, err := execute(t, "validate", "--mode", "strict", dir)
	assert.Error(t, err)
	_, err = execute(t, "validate", "--format", "xml", dir)
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	dir := dataDir(t)
	target := filepath.Join(t.TempDir(), "merged.csv")

	out, err := execute(t, "export", dir, "--out", target, "--bom")
	require.NoError(t, err)
	assert.Contains(t, out, "WROTE")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	// the export loads back to the same rows
	out, err = execute(t, "load", target)
	require.NoError(t, err)
	assert.Contains(t, out, "aggregate 6 rows")
}

func TestExportCommandPartitioned(t *testing.T) {
	outDir := t.TempDir()
	out, err := execute(t, "export", dataDir(t), "--out", outDir, "--partition", "symbol", "--to", "jsonl")
	require.NoError(t, err)
	assert.Contains(t, out, "2 files by symbol")
	assert.FileExists(t, filepath.Join(outDir, "AAA.jsonl"))
	assert.FileExists(t, filepath.Join(outDir, "BBB.jsonl"))
}

func TestExportCommandRefusesInvalidData(t *testing.T) {
	dir := t.TempDir()
	bars := testutil.DailyBars("AAA", day0, 3)
	bars[0].Volume = -10
	testutil.WriteFile(t, dir, "a.csv", testutil.CSV(bars))
	target := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "export", dir, "--out", target)
	assert.ErrorIs(t, err, ErrInvalidData)
	assert.NoFileExists(t, target)

	_, err = execute(t, "export", dir, "--out", target, "--force")
	require.NoError(t, err)
	assert.FileExists(t, target)
}

func TestExportCommandRequiresOut(t *testing.T) {
	_, err := execute(t, "export", dataDir(t))
	assert.Error(t, err)

	_, err = execute(t, "export", dataDir(t), "--out", "x.csv", "--partition", "month")
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	dir := dataDir(t)

	_, err := execute(t, "--history-db", db, "validate", dir)
	require.NoError(t, err)
	_, err = execute(t, "--history-db", db, "validate", filepath.Join(dir, "a.csv"))
	require.NoError(t, err)

	out, err := execute(t, "--history-db", db, "history", "--json")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, 4, runs[0].Rows)
	assert.Equal(t, 6, runs[1].Rows)

	out, err = execute(t, "--history-db", db, "history", runs[1].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+runs[1].ID)
	assert.Contains(t, out, "b.jsonl")

	_, err = execute(t, "--history-db", db, "history", "no-such-run")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestHistoryCommandEmpty(t *testing.T) {
	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}

func TestResolveTarget(t *testing.T) {
	dir := dataDir(t)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	testutil.WriteFile(t, sub, "c.csv", testutil.CSV(testutil.DailyBars("CCC", day0, 1)))

	single, err := resolveTarget([]string{dir}, false)
	require.NoError(t, err)
	assert.Equal(t, dir, single.dir)

	many, err := resolveTarget([]string{dir, "missing.csv"}, true)
	require.NoError(t, err)
	assert.Empty(t, many.dir)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.jsonl"),
		filepath.Join(sub, "c.csv"),
		"missing.csv",
	}, many.paths)
}
