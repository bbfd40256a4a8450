package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"marketcore/internal/store/migrations"
)

// SQLiteStore persists runs in a SQLite database file
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection
func (s *SQLiteStore) Close() error { return s.db.Close() }

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *SQLiteStore) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

const runColumns = `id, trigger_name, target, started_at, finished_at, sources, loaded, skipped,
	failed, row_count, cancelled, valid, errors, warnings, outcomes, issues`

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record stores a run
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("marshalling outcomes: %w", err)
	}
	issues, err := json.Marshal(run.Issues)
	if err != nil {
		return fmt.Errorf("marshalling issues: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, run.Target,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Sources, run.Loaded, run.Skipped, run.Failed, run.Rows,
		run.Cancelled, run.Valid, run.Errors, run.Warnings,
		string(outcomes), string(issues),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// Get retrieves a run by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// List returns runs matching filter, newest first
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var (
		where []string
		args  []any
	)
	if filter.Trigger != "" {
		where = append(where, "trigger_name = ?")
		args = append(args, filter.Trigger)
	}
	if !filter.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run               Run
		started, finished string
		outcomes, issues  string
	)
	err := sc.Scan(&run.ID, &run.Trigger, &run.Target, &started, &finished,
		&run.Sources, &run.Loaded, &run.Skipped, &run.Failed, &run.Rows,
		&run.Cancelled, &run.Valid, &run.Errors, &run.Warnings, &outcomes, &issues)
	if err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("parsing finished_at: %w", err)
	}
	if err := json.Unmarshal([]byte(outcomes), &run.Outcomes); err != nil {
		return Run{}, fmt.Errorf("unmarshalling outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &run.Issues); err != nil {
		return Run{}, fmt.Errorf("unmarshalling issues: %w", err)
	}
	return run, nil
}
