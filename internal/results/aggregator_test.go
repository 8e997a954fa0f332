package results

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

func TestAggregatorConcurrentRecord(t *testing.T) {
	t.Parallel()

	const writers, perWriter = 16, 50
	agg := New()
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				agg.Record(crawler.DownloadOutcome{
					Key:     fmt.Sprintf("paper_%02d_%03d.pdf", w, i),
					Success: i%2 == 0,
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, agg.Len())
	succeeded, failed := agg.Counts()
	assert.Equal(t, writers*perWriter/2, succeeded)
	assert.Equal(t, writers*perWriter/2, failed)
}

func TestAggregatorLastWriteWins(t *testing.T) {
	t.Parallel()

	agg := New()
	agg.Record(crawler.DownloadOutcome{Key: "Paper", Success: false, Reason: "no valid document found"})
	agg.Record(crawler.DownloadOutcome{Key: "Paper", Success: true})

	got, ok := agg.Get("Paper")
	require.True(t, ok)
	assert.True(t, got.Success)
	assert.Empty(t, got.Reason)
	assert.Equal(t, 1, agg.Len())
}

func TestAggregatorSnapshotSorted(t *testing.T) {
	t.Parallel()

	agg := New()
	for _, key := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		agg.Record(crawler.DownloadOutcome{Key: key, Success: true})
	}

	snapshot := agg.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for _, outcome := range snapshot {
		keys = append(keys, outcome.Key)
	}
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, keys)

	_, ok := agg.Get("missing")
	assert.False(t, ok)
}
