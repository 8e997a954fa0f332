// Package report renders a finished run for people and scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JakeFAU/proceedings-harvester/internal/runner"
)

// PrintSummary writes the per-key summary followed by the totals and the completion line.
func PrintSummary(w io.Writer, rep runner.Report) error {
	ew := &errWriter{w: w}
	ew.printf("\nDownload Summary:\n")
	for _, outcome := range rep.Outcomes {
		status := "Success"
		if !outcome.Success {
			status = "Failed"
		}
		ew.printf("%s -> %s\n", outcome.Key, status)
	}
	ew.printf("\n%d succeeded, %d failed, %d items submitted", rep.Succeeded, rep.Failed, rep.ItemsSubmitted)
	if n := len(rep.PartitionErrors); n > 0 {
		ew.printf(", %d partitions failed", n)
	}
	ew.printf("\n")
	for _, perr := range rep.PartitionErrors {
		ew.printf("Failed to scrape year: %d (%s)\n", perr.Partition, perr.Reason)
	}
	if rep.State == runner.StateTimedOut {
		ew.printf("\nDrain timed out; partial results shown.\n")
	} else {
		ew.printf("\nAll downloads complete!\n")
	}
	return ew.err
}

// WriteJSON writes rep as indented JSON to path, replacing any existing file.
func WriteJSON(path string, rep runner.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report.*.json")
	if err != nil {
		return fmt.Errorf("create report temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
