// Package runner owns the lifecycle of one harvest run: it starts the worker pool,
// dispatches partitions, closes intake and drains the pool within a timeout.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/dispatcher"
	"github.com/JakeFAU/proceedings-harvester/internal/metrics"
	"github.com/JakeFAU/proceedings-harvester/internal/progress"
	"github.com/JakeFAU/proceedings-harvester/internal/queue/memory"
	"github.com/JakeFAU/proceedings-harvester/internal/results"
	"github.com/JakeFAU/proceedings-harvester/internal/worker"
)

// ErrDrainTimeout reports that workers were still busy when the drain timeout expired.
var ErrDrainTimeout = errors.New("drain timed out")

// ErrAlreadyRunning is returned when Run is called while another run is active.
var ErrAlreadyRunning = errors.New("run already in progress")

const (
	defaultWorkers      = 30
	defaultDrainTimeout = 30 * time.Minute
	ledgerTimeout       = 30 * time.Second
)

// State is the lifecycle position of a run.
type State string

// Run states.
const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateDraining  State = "draining"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
)

// Config sizes the worker pool and bounds the drain.
type Config struct {
	Workers int
	// QueueDepth buffers discovered items ahead of the workers; 0 means 4 per worker.
	QueueDepth   int
	DrainTimeout time.Duration
	ItemSelector string
	Extensions   []string
	// Topic receives a notice per stored document when Publisher is set.
	Topic string
}

// Deps are the collaborators shared by every run.
type Deps struct {
	Docs       crawler.DocumentSource
	Downloader crawler.Downloader
	Retry      crawler.RetryPolicy
	Publisher  crawler.Publisher
	Ledger     crawler.OutcomeLedger
	Emitter    progress.Emitter
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
}

// Report summarizes a finished run.
type Report struct {
	RunID           string                     `json:"run_id"`
	State           State                      `json:"state"`
	StartedAt       time.Time                  `json:"started_at"`
	FinishedAt      time.Time                  `json:"finished_at"`
	ItemsSubmitted  int                        `json:"items_submitted"`
	Succeeded       int                        `json:"succeeded"`
	Failed          int                        `json:"failed"`
	PartitionErrors []dispatcher.PartitionError `json:"partition_errors,omitempty"`
	Outcomes        []crawler.DownloadOutcome  `json:"outcomes"`
}

// Status is a point-in-time view of the current or last run.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Submitted int       `json:"items_submitted"`
	Recorded  int       `json:"outcomes_recorded"`
}

// Runner executes harvest runs one at a time.
type Runner struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	state  atomic.Value
	active atomic.Bool

	mu         sync.RWMutex
	runID      uuid.UUID
	startedAt  time.Time
	dispatch   *dispatcher.Dispatcher
	aggregator *results.Aggregator
}

// New builds a Runner. Zero config values take defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Workers * 4
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	r := &Runner{deps: deps, cfg: cfg, logger: logger}
	r.state.Store(StateCreated)
	return r
}

// State returns the lifecycle state of the current or last run.
func (r *Runner) State() State {
	return r.state.Load().(State)
}

// Status reports progress of the current or last run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := Status{State: r.State(), StartedAt: r.startedAt}
	if r.runID != uuid.Nil {
		status.RunID = r.runID.String()
	}
	if r.dispatch != nil {
		status.Submitted = r.dispatch.Submitted()
	}
	if r.aggregator != nil {
		status.Recorded = r.aggregator.Len()
	}
	return status
}

// Outcomes returns the outcomes recorded so far by the current or last run.
func (r *Runner) Outcomes() []crawler.DownloadOutcome {
	r.mu.RLock()
	agg := r.aggregator
	r.mu.RUnlock()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

// Run crawls partitions and records every outcome into agg (a fresh Aggregator
// when nil). Item failures never fail the run; ErrDrainTimeout is returned along
// with the partial report when the pool does not drain in time.
func (r *Runner) Run(ctx context.Context, partitions []crawler.CatalogPartition, agg *results.Aggregator) (Report, error) {
	if !r.active.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer r.active.Store(false)

	runID, err := r.newRunID()
	if err != nil {
		return Report{}, err
	}
	if agg == nil {
		agg = results.New()
	}
	logger := r.logger.With(zap.String("run_id", runID.String()))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	queue := memory.NewQueue(r.cfg.QueueDepth)
	processor := crawler.NewProcessor(
		r.deps.Docs,
		r.deps.Downloader,
		r.deps.Retry,
		r.deps.Publisher,
		r.deps.Clock,
		r.deps.Emitter,
		crawler.ProcessorConfig{Extensions: r.cfg.Extensions, Topic: r.cfg.Topic, RunID: runID},
		logger.Named("processor"),
	)
	dispatch := dispatcher.New(
		r.deps.Docs,
		queue,
		r.deps.Emitter,
		r.deps.Clock,
		dispatcher.Config{ItemSelector: r.cfg.ItemSelector, RunID: runID},
		logger.Named("dispatcher"),
	)

	startedAt := r.now()
	r.mu.Lock()
	r.runID = runID
	r.startedAt = startedAt
	r.dispatch = dispatch
	r.aggregator = agg
	r.mu.Unlock()

	r.state.Store(StateRunning)
	r.emit(runID, progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("%d partitions", len(partitions))})
	logger.Info("run started", zap.Int("partitions", len(partitions)), zap.Int("workers", r.cfg.Workers))

	var wg sync.WaitGroup
	for i := 1; i <= r.cfg.Workers; i++ {
		w := worker.New(i, queue, processor, agg, logger.Named("worker"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(runCtx)
		}()
	}

	partitionErrors := dispatch.Dispatch(runCtx, partitions)

	r.state.Store(StateDraining)
	queue.Close()
	drainStart := time.Now()
	logger.Info("draining workers", zap.Int("items_submitted", dispatch.Submitted()), zap.Duration("timeout", r.cfg.DrainTimeout))

	final := StateCompleted
	if !waitTimeout(&wg, r.cfg.DrainTimeout) {
		final = StateTimedOut
		cancelRun()
		logger.Warn("drain timed out; reporting partial results", zap.Int("outcomes", agg.Len()))
	}
	metrics.ObserveDrain(string(final), time.Since(drainStart))
	r.state.Store(final)

	succeeded, failed := agg.Counts()
	report := Report{
		RunID:           runID.String(),
		State:           final,
		StartedAt:       startedAt,
		FinishedAt:      r.now(),
		ItemsSubmitted:  dispatch.Submitted(),
		Succeeded:       succeeded,
		Failed:          failed,
		PartitionErrors: partitionErrors,
		Outcomes:        agg.Snapshot(),
	}
	r.persist(ctx, report, logger)

	stage := progress.StageRunDone
	if final == StateTimedOut {
		stage = progress.StageRunTimeout
	}
	r.emit(runID, progress.Event{Stage: stage, Items: report.ItemsSubmitted, Dur: report.FinishedAt.Sub(startedAt)})
	logger.Info("run finished",
		zap.String("state", string(final)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("partition_errors", len(partitionErrors)),
	)

	if final == StateTimedOut {
		return report, ErrDrainTimeout
	}
	return report, nil
}

func (r *Runner) persist(ctx context.Context, report Report, logger *zap.Logger) {
	if r.deps.Ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	record := crawler.RunRecord{
		ID:         report.RunID,
		State:      string(report.State),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Items:      report.ItemsSubmitted,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
	}
	if err := r.deps.Ledger.RecordRun(ctx, record); err != nil {
		logger.Error("record run failed", zap.Error(err))
		return
	}
	if err := r.deps.Ledger.RecordOutcomes(ctx, report.RunID, report.Outcomes); err != nil {
		logger.Error("record outcomes failed", zap.Error(err))
	}
}

func (r *Runner) newRunID() (uuid.UUID, error) {
	if r.deps.IDs == nil {
		id, err := uuid.NewV7()
		if err != nil {
			return uuid.Nil, fmt.Errorf("generate run id: %w", err)
		}
		return id, nil
	}
	id, err := r.deps.IDs.NewRunID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (r *Runner) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = r.now()
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	r.deps.Emitter.Emit(evt)
}

func (r *Runner) now() time.Time {
	if r.deps.Clock == nil {
		return time.Now().UTC()
	}
	return r.deps.Clock.Now()
}

// waitTimeout reports whether wg finished before timeout.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
