package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

// LedgerStore provides an in-memory OutcomeLedger for development/testing.
type LedgerStore struct {
	mu       sync.RWMutex
	runs     map[string]crawler.RunRecord
	outcomes map[string][]crawler.DownloadOutcome
}

// NewLedgerStore constructs a LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		runs:     make(map[string]crawler.RunRecord),
		outcomes: make(map[string][]crawler.DownloadOutcome),
	}
}

// RecordRun stores or replaces a run summary.
func (s *LedgerStore) RecordRun(_ context.Context, run crawler.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// RecordOutcomes appends outcome rows for a run.
func (s *LedgerStore) RecordOutcomes(_ context.Context, runID string, outcomes []crawler.DownloadOutcome) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[runID] = append(s.outcomes[runID], outcomes...)
	return nil
}

// GetRun fetches a run by ID.
func (s *LedgerStore) GetRun(_ context.Context, runID string) (crawler.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.RunRecord{}, crawler.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *LedgerStore) ListRuns(_ context.Context, limit, offset int) ([]crawler.RunRecord, error) {
	s.mu.RLock()
	runs := make([]crawler.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset >= len(runs) {
		return []crawler.RunRecord{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListOutcomes returns the outcomes of a run sorted by key; a repeated key keeps
// the latest row.
func (s *LedgerStore) ListOutcomes(_ context.Context, runID string) ([]crawler.DownloadOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok && len(s.outcomes[runID]) == 0 {
		return nil, crawler.ErrRunNotFound
	}
	latest := make(map[string]crawler.DownloadOutcome, len(s.outcomes[runID]))
	for _, outcome := range s.outcomes[runID] {
		latest[outcome.Key] = outcome
	}
	out := make([]crawler.DownloadOutcome, 0, len(latest))
	for _, outcome := range latest {
		out = append(out, outcome)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
