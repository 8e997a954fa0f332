package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/progress"
)

// ConsoleSink prints one human-readable line per partition, item and download milestone.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink writes progress lines to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Consume prints the lines for every event that has a console rendering.
func (s *ConsoleSink) Consume(ctx context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := consoleLine(evt)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintln(s.w, line); err != nil {
			return fmt.Errorf("write progress line: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func consoleLine(evt progress.Event) (string, bool) {
	switch evt.Stage {
	case progress.StagePartitionStart:
		return fmt.Sprintf("Scraping year: %d", evt.Partition), true
	case progress.StagePartitionError:
		return fmt.Sprintf("Failed to scrape year: %d", evt.Partition), true
	case progress.StageItemStart:
		return "Processing: " + evt.Title, true
	case progress.StageItemNoTargets:
		return "No valid document found for: " + evt.Title, true
	case progress.StageItemError:
		return "Failed to process: " + evt.Title, true
	case progress.StageDownloadDone:
		return "Downloaded: " + evt.Key, true
	case progress.StageDownloadError:
		if evt.Kind == string(crawler.KindNoContent) {
			return "No content received for: " + evt.Title, true
		}
		return "Failed to download: " + evt.Title, true
	default:
		return "", false
	}
}
