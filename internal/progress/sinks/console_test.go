package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/proceedings-harvester/internal/progress"
)

func TestConsoleSinkPrintsProgressLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePartitionStart, Partition: 2021},
		{RunID: runID, TS: now, Stage: progress.StageItemStart, Title: "Paper A"},
		{RunID: runID, TS: now, Stage: progress.StageDownloadDone, Title: "Paper A", URL: "https://x/a.pdf", Key: "Paper_A_1.pdf"},
		{RunID: runID, TS: now, Stage: progress.StageDownloadError, Title: "Paper A", URL: "https://x/b.pdf"},
		{RunID: runID, TS: now, Stage: progress.StageDownloadError, Title: "Paper D", URL: "https://x/d.pdf", Kind: "no_content"},
		{RunID: runID, TS: now, Stage: progress.StageItemDone, Title: "Paper A"},
		{RunID: runID, TS: now, Stage: progress.StageItemNoTargets, Title: "Paper B"},
		{RunID: runID, TS: now, Stage: progress.StageItemError, Title: "Paper C"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	want := "Scraping year: 2021\n" +
		"Processing: Paper A\n" +
		"Downloaded: Paper_A_1.pdf\n" +
		"Failed to download: Paper A\n" +
		"No content received for: Paper D\n" +
		"No valid document found for: Paper B\n" +
		"Failed to process: Paper C\n"
	require.Equal(t, want, buf.String())
}

func TestConsoleSinkHonorsContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Consume(ctx, []progress.Event{{Stage: progress.StageItemStart, Title: "Paper A"}})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, buf.String())
}
