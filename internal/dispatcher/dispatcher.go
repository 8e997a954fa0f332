// Package dispatcher walks catalog partitions and feeds discovered items to the worker queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/progress"
)

// PartitionError records an index page that could not be crawled. Other partitions continue.
type PartitionError struct {
	Partition int    `json:"partition"`
	URL       string `json:"url"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

func newPartitionError(partition crawler.CatalogPartition, err error) PartitionError {
	return PartitionError{Partition: partition.ID, URL: partition.IndexURL, Reason: err.Error(), Err: err}
}

func (e PartitionError) Error() string {
	return fmt.Sprintf("partition %d (%s): %v", e.Partition, e.URL, e.Err)
}

func (e PartitionError) Unwrap() error {
	return e.Err
}

// Config controls Dispatcher behavior.
type Config struct {
	// ItemSelector picks item anchors on an index page; empty means crawler.DefaultItemSelector.
	ItemSelector string
	RunID        uuid.UUID
}

// Dispatcher enqueues every item of every partition without waiting for item completion.
type Dispatcher struct {
	docs    crawler.DocumentSource
	queue   crawler.Queue
	emitter progress.Emitter
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger

	submitted atomic.Int64
}

// New creates a Dispatcher. emitter and clock may be nil.
func New(
	docs crawler.DocumentSource,
	queue crawler.Queue,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	return &Dispatcher{
		docs:    docs,
		queue:   queue,
		emitter: emitter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Dispatch crawls partitions sequentially. An index fetch failure is recorded and the
// next partition is tried; a cancelled context or closed queue stops dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, partitions []crawler.CatalogPartition) []PartitionError {
	var failures []PartitionError
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			failures = append(failures, newPartitionError(partition, err))
			continue
		}
		count, err := d.dispatchPartition(ctx, partition)
		if err != nil {
			failures = append(failures, newPartitionError(partition, err))
			if errors.Is(err, crawler.ErrQueueClosed) {
				break
			}
			continue
		}
		d.logger.Info("partition dispatched", zap.Int("partition", partition.ID), zap.Int("items", count))
	}
	return failures
}

// Submitted reports how many items have been enqueued so far.
func (d *Dispatcher) Submitted() int {
	return int(d.submitted.Load())
}

func (d *Dispatcher) dispatchPartition(ctx context.Context, partition crawler.CatalogPartition) (int, error) {
	ctx, span := otel.Tracer("harvester/dispatcher").Start(ctx, "dispatch partition")
	defer span.End()
	span.SetAttributes(attribute.Int("partition", partition.ID), attribute.String("url", partition.IndexURL))

	start := d.now()
	d.emit(progress.Event{Stage: progress.StagePartitionStart, Partition: partition.ID, URL: partition.IndexURL})

	count, err := d.enqueueItems(ctx, partition)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("partition failed", zap.Int("partition", partition.ID), zap.String("url", partition.IndexURL), zap.Error(err))
		d.emit(progress.Event{
			Stage:     progress.StagePartitionError,
			Partition: partition.ID,
			URL:       partition.IndexURL,
			Items:     count,
			Dur:       d.since(start),
			Note:      err.Error(),
		})
		return count, err
	}
	d.emit(progress.Event{
		Stage:     progress.StagePartitionDone,
		Partition: partition.ID,
		URL:       partition.IndexURL,
		Items:     count,
		Dur:       d.since(start),
	})
	return count, nil
}

func (d *Dispatcher) enqueueItems(ctx context.Context, partition crawler.CatalogPartition) (int, error) {
	doc, err := d.docs.Fetch(ctx, partition.IndexURL)
	if err != nil {
		return 0, fmt.Errorf("fetch index: %w", err)
	}
	items := crawler.ExtractItems(doc, d.cfg.ItemSelector, partition.ID)
	if len(items) == 0 {
		d.logger.Warn("index page lists no items", zap.Int("partition", partition.ID), zap.String("url", partition.IndexURL))
	}
	for i, item := range items {
		if err := d.queue.Enqueue(ctx, item); err != nil {
			return i, fmt.Errorf("enqueue %q: %w", item.Title, err)
		}
		d.submitted.Add(1)
	}
	return len(items), nil
}

func (d *Dispatcher) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(d.cfg.RunID)
	evt.TS = d.now()
	d.emitter.Emit(evt)
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now()
}

func (d *Dispatcher) since(start time.Time) time.Duration {
	if dur := d.now().Sub(start); dur > 0 {
		return dur
	}
	return 0
}
