// Package worker implements the pool loop that turns queued items into outcomes.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/metrics"
)

// ItemProcessor runs the full fetch, extract and download pipeline for one item.
type ItemProcessor interface {
	Process(ctx context.Context, item crawler.ItemReference) []crawler.DownloadOutcome
}

// Worker consumes queue items, processes them and records every outcome.
type Worker struct {
	id        int
	queue     crawler.Queue
	processor ItemProcessor
	recorder  crawler.OutcomeRecorder
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	id int,
	queue crawler.Queue,
	processor ItemProcessor,
	recorder crawler.OutcomeRecorder,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		processor: processor,
		recorder:  recorder,
		logger:    logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the queue is closed and drained or the
// context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				w.logger.Debug("worker stopping", zap.Error(err))
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item crawler.ItemReference) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := time.Now()
	w.logger.Debug("processing item", zap.String("title", item.Title), zap.String("url", item.URL))
	outcomes := w.processor.Process(ctx, item)
	failed := 0
	for _, outcome := range outcomes {
		if !outcome.Success {
			failed++
		}
		w.recorder.Record(outcome)
	}
	w.logger.Debug("item processed",
		zap.String("title", item.Title),
		zap.Int("outcomes", len(outcomes)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
}
