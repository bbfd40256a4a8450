package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrAggregateEmpty marks a batch in which no source produced a table.
// Callers present it as "no data loaded", distinct from a single bad file.
var ErrAggregateEmpty = errors.New("no data loaded")

// LoadStatus tags the result of loading one source
type LoadStatus string

const (
	LoadStatusLoaded  LoadStatus = "loaded"
	LoadStatusSkipped LoadStatus = "skipped"
	LoadStatusFailed  LoadStatus = "failed"
)

// ReadAttempt records one reader tried against a source.
type ReadAttempt struct {
	Format   FormatKind    `json:"format"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Err      error         `json:"-"`
}

// Succeeded reports whether the attempt produced a table
func (a ReadAttempt) Succeeded() bool { return a.Err == nil }

// LoadOutcome is the result of loading one SourceDescriptor. Table is set
// only when Status is LoadStatusLoaded.
type LoadOutcome struct {
	Source   SourceDescriptor `json:"source"`
	Status   LoadStatus       `json:"status"`
	Detected FormatKind       `json:"detected"`
	Format   FormatKind       `json:"format,omitempty"`
	Table    *NormalizedTable `json:"-"`
	Reason   string           `json:"reason,omitempty"`
	Err      error            `json:"-"`
	Attempts []ReadAttempt    `json:"attempts,omitempty"`
}

// Loaded builds a successful outcome
func Loaded(src SourceDescriptor, detected, format FormatKind, table *NormalizedTable, attempts []ReadAttempt) LoadOutcome {
	return LoadOutcome{
		Source:   src,
		Status:   LoadStatusLoaded,
		Detected: detected,
		Format:   format,
		Table:    table,
		Attempts: attempts,
	}
}

// Skipped builds an outcome for a source that was deliberately not read
func Skipped(src SourceDescriptor, reason string) LoadOutcome {
	return LoadOutcome{
		Source:   src,
		Status:   LoadStatusSkipped,
		Detected: FormatUnknown,
		Reason:   reason,
	}
}

// Failed builds an outcome for a source no reader could load
func Failed(src SourceDescriptor, detected FormatKind, err error, attempts []ReadAttempt) LoadOutcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return LoadOutcome{
		Source:   src,
		Status:   LoadStatusFailed,
		Detected: detected,
		Reason:   reason,
		Err:      err,
		Attempts: attempts,
	}
}

// IsLoaded reports whether the outcome carries a table
func (o LoadOutcome) IsLoaded() bool {
	return o.Status == LoadStatusLoaded && o.Table != nil
}

// LoadWarning is a WARNING-level note produced while aggregating a batch.
type LoadWarning struct {
	Index   int    `json:"index"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// BatchResult is the output of a multi-source or directory load.
type BatchResult struct {
	// Outcomes follow input order (lexicographic order for directories).
	Outcomes []LoadOutcome `json:"outcomes"`
	// Aggregate concatenates the Loaded tables that share the first
	// Loaded table's signature. It is never nil.
	Aggregate *NormalizedTable `json:"-"`
	// Contributing lists the outcome indices merged into Aggregate.
	Contributing []int         `json:"contributing"`
	Warnings     []LoadWarning `json:"warnings,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
}

// Counts tallies outcomes by status
func (b BatchResult) Counts() (loaded, skipped, failed int) {
	for _, o := range b.Outcomes {
		switch o.Status {
		case LoadStatusLoaded:
			loaded++
		case LoadStatusSkipped:
			skipped++
		case LoadStatusFailed:
			failed++
		}
	}
	return loaded, skipped, failed
}

// Empty reports that no source was loaded, so the aggregate holds no data.
func (b BatchResult) Empty() bool {
	return len(b.Contributing) == 0
}

// Err returns an error wrapping ErrAggregateEmpty when nothing was loaded.
func (b BatchResult) Err() error {
	if !b.Empty() {
		return nil
	}
	return fmt.Errorf("%w: none of %d sources could be loaded", ErrAggregateEmpty, len(b.Outcomes))
}
