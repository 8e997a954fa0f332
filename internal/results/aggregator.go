// Package results aggregates download outcomes reported by concurrent workers.
package results

import (
	"sort"
	"sync"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

// Aggregator is a concurrency-safe map of outcome key to outcome. A later outcome
// for the same key replaces the earlier one.
type Aggregator struct {
	mu       sync.RWMutex
	outcomes map[string]crawler.DownloadOutcome
}

// New returns an empty Aggregator. Each run gets its own.
func New() *Aggregator {
	return &Aggregator{outcomes: make(map[string]crawler.DownloadOutcome)}
}

// Record stores outcome under its key.
func (a *Aggregator) Record(outcome crawler.DownloadOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes[outcome.Key] = outcome
}

// Get returns the outcome stored under key.
func (a *Aggregator) Get(key string) (crawler.DownloadOutcome, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	outcome, ok := a.outcomes[key]
	return outcome, ok
}

// Len reports the number of distinct keys.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.outcomes)
}

// Snapshot copies every outcome, sorted by key.
func (a *Aggregator) Snapshot() []crawler.DownloadOutcome {
	a.mu.RLock()
	out := make([]crawler.DownloadOutcome, 0, len(a.outcomes))
	for _, outcome := range a.outcomes {
		out = append(out, outcome)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Counts returns the number of successful and failed outcomes.
func (a *Aggregator) Counts() (succeeded, failed int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, outcome := range a.outcomes {
		if outcome.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
