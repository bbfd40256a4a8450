package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketcore/pkg/contracts/domain"
)

// MemoryStore keeps runs in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Run)}
}

// Record stores a run. IDs must be unique.
func (s *MemoryStore) Record(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Get retrieves a run by ID
func (s *MemoryStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return cloneRun(run), nil
}

// List returns runs matching filter, newest first
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Run
	for _, run := range s.runs {
		if filter.matches(run) {
			result = append(result, cloneRun(run))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// cloneRun copies the slices so callers cannot modify stored runs
func cloneRun(r Run) Run {
	r.Outcomes = append([]OutcomeRecord(nil), r.Outcomes...)
	if r.Issues != nil {
		issues := make([]domain.ValidationIssue, len(r.Issues))
		for i, is := range r.Issues {
			is.Rows = append([]int(nil), is.Rows...)
			issues[i] = is
		}
		r.Issues = issues
	}
	return r
}
