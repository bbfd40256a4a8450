package store

import (
	"context"
	"fmt"
	"time"

	"marketcore/internal/config"
	marketerrors "marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

// ErrRunNotFound is returned by Get for an unknown run ID
var ErrRunNotFound = marketerrors.NewNotFoundError("run not found")

// maxStoredIssues bounds the issues kept per run; counts stay exact.
const maxStoredIssues = 100

// Run is the history entry of one ingest: what was loaded and whether the
// result validated.
type Run struct {
	ID         string                   `json:"id"`
	Trigger    string                   `json:"trigger"`
	Target     string                   `json:"target"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Sources    int                      `json:"sources"`
	Loaded     int                      `json:"loaded"`
	Skipped    int                      `json:"skipped"`
	Failed     int                      `json:"failed"`
	Rows       int                      `json:"rows"`
	Cancelled  bool                     `json:"cancelled"`
	Valid      bool                     `json:"valid"`
	Errors     int                      `json:"errors"`
	Warnings   int                      `json:"warnings"`
	Outcomes   []OutcomeRecord          `json:"outcomes"`
	Issues     []domain.ValidationIssue `json:"issues,omitempty"`
}

// Duration is the wall time of the run
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// OutcomeRecord is the stored form of a LoadOutcome
type OutcomeRecord struct {
	Path     string `json:"path"`
	Status   string `json:"status"`
	Detected string `json:"detected,omitempty"`
	Format   string `json:"format,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

// NewRun summarises a batch and its validation report. report may be nil
// when validation did not run.
func NewRun(id, trigger, target string, started, finished time.Time, batch domain.BatchResult, report *domain.ValidationReport) Run {
	loaded, skipped, failed := batch.Counts()
	run := Run{
		ID:         id,
		Trigger:    trigger,
		Target:     target,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Sources:    len(batch.Outcomes),
		Loaded:     loaded,
		Skipped:    skipped,
		Failed:     failed,
		Cancelled:  batch.Cancelled,
		Outcomes:   make([]OutcomeRecord, len(batch.Outcomes)),
	}
	if batch.Aggregate != nil {
		run.Rows = batch.Aggregate.NumRows()
	}
	for i, o := range batch.Outcomes {
		run.Outcomes[i] = OutcomeRecord{
			Path:     o.Source.Path,
			Status:   string(o.Status),
			Detected: string(o.Detected),
			Format:   string(o.Format),
			Reason:   o.Reason,
			Attempts: len(o.Attempts),
		}
	}
	if report != nil {
		run.Valid = report.IsValid() && !batch.Empty()
		issues := report.Issues()
		run.Errors = len(report.Errors())
		run.Warnings = len(report.Warnings())
		if len(issues) > maxStoredIssues {
			issues = issues[:maxStoredIssues]
		}
		run.Issues = issues
	}
	return run
}

// Filter narrows List results
type Filter struct {
	Trigger string
	Since   time.Time
	// Limit caps the result; zero means no limit.
	Limit int
}

func (f Filter) matches(r Run) bool {
	if f.Trigger != "" && r.Trigger != f.Trigger {
		return false
	}
	if !f.Since.IsZero() && r.StartedAt.Before(f.Since) {
		return false
	}
	return true
}

// HistoryStore persists ingest runs. List returns newest runs first.
type HistoryStore interface {
	Record(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, filter Filter) ([]Run, error)
	Close() error
}

// Open returns the store selected by cfg
func Open(cfg config.StoreConfig) (HistoryStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, marketerrors.NewStorageError("failed to open history database", err)
		}
		return s, nil
	}
	return nil, marketerrors.NewConfigError(fmt.Sprintf("unknown store driver %q", cfg.Driver), nil)
}
