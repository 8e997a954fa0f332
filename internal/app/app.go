// Package app initializes and holds the long-lived services of a harvest, acting
// as a dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/JakeFAU/proceedings-harvester/internal/api"
	"github.com/JakeFAU/proceedings-harvester/internal/clock/system"
	"github.com/JakeFAU/proceedings-harvester/internal/config"
	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/download"
	collyfetcher "github.com/JakeFAU/proceedings-harvester/internal/fetcher/colly"
	idgen "github.com/JakeFAU/proceedings-harvester/internal/id/uuid"
	"github.com/JakeFAU/proceedings-harvester/internal/logging"
	"github.com/JakeFAU/proceedings-harvester/internal/progress"
	"github.com/JakeFAU/proceedings-harvester/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/proceedings-harvester/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/proceedings-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/proceedings-harvester/internal/report"
	"github.com/JakeFAU/proceedings-harvester/internal/results"
	"github.com/JakeFAU/proceedings-harvester/internal/runner"
	"github.com/JakeFAU/proceedings-harvester/internal/storage/gcs"
	"github.com/JakeFAU/proceedings-harvester/internal/storage/local"
	"github.com/JakeFAU/proceedings-harvester/internal/storage/memory"
	"github.com/JakeFAU/proceedings-harvester/internal/storage/postgres"
	"github.com/JakeFAU/proceedings-harvester/internal/telemetry"
)

const closeTimeout = 15 * time.Second

// Ledger persists runs and serves them back to the status API.
type Ledger interface {
	crawler.OutcomeLedger
	api.LedgerReader
}

// Options overrides pieces of the container. Zero values build everything from config.
type Options struct {
	// Stdout receives console progress and the final summary (default os.Stdout).
	Stdout io.Writer
	// Logger replaces the logger built from the logging section.
	Logger *zap.Logger
	// Store replaces the configured storage backend.
	Store crawler.DocumentStore
	// Ledger replaces the Postgres or in-memory ledger.
	Ledger Ledger
	// Publisher replaces the Pub/Sub publisher.
	Publisher crawler.Publisher
	// SpanProcessors are attached to the tracer provider, e.g. an exporter.
	SpanProcessors []sdktrace.SpanProcessor
	// GoogleOptions are passed to the GCS and Pub/Sub clients.
	GoogleOptions []option.ClientOption
}

// App holds all the shared, long-lived services for one harvest.
type App struct {
	cfg    config.Config
	stdout io.Writer
	logger *zap.Logger

	store     crawler.DocumentStore
	ledger    Ledger
	publisher crawler.Publisher
	registry  *prometheus.Registry
	hub       *progress.Hub
	runner    *runner.Runner
	server    *api.Server

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the configured document store.
func (a *App) GetStore() crawler.DocumentStore {
	return a.store
}

// GetLedger exposes the run ledger.
func (a *App) GetLedger() Ledger {
	return a.ledger
}

// GetPublisher returns the download notice publisher, or nil when notices are off.
func (a *App) GetPublisher() crawler.Publisher {
	return a.publisher
}

// GetRunner returns the harvest runner.
func (a *App) GetRunner() *runner.Runner {
	return a.runner
}

// GetServer returns the status server, or nil when server.addr is empty.
func (a *App) GetServer() *api.Server {
	return a.server
}

// GetRegistry returns the registry holding the progress collectors.
func (a *App) GetRegistry() *prometheus.Registry {
	return a.registry
}

// New builds every service the configuration asks for. It fails fast; anything
// already opened is closed before the error is returned.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	a := &App{cfg: cfg, stdout: stdout, logger: logger}
	if err := a.init(ctx, opts); err != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		a.closeServices(closeCtx)
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	l := a.logger
	l.Info("initializing harvester services")
	checks := map[string]api.Check{}

	if err := a.initTracing(ctx, opts.SpanProcessors); err != nil {
		return err
	}

	store, err := a.initStore(ctx, opts, checks)
	if err != nil {
		return err
	}
	a.store = store

	ledger, err := a.initLedger(ctx, opts.Ledger, checks)
	if err != nil {
		return err
	}
	a.ledger = ledger

	publisher, err := a.initPublisher(ctx, opts)
	if err != nil {
		return err
	}
	a.publisher = publisher

	a.registry = prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(
		// Console lines are the user's view of the run, so Emit waits rather than drops.
		progress.Config{Blocking: true, Logger: l.Named("progress")},
		sinks.NewConsoleSink(a.stdout),
		sinks.NewLogSink(l.Named("progress")),
		promSink,
	)
	a.addCloser("progress hub", a.hub.Close)

	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.PageTimeout(),
	})
	retry := a.cfg.RetryPolicy()
	downloader := download.New(store, nil, download.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.DownloadTimeout(),
	})

	topic := ""
	if publisher != nil {
		topic = a.cfg.PubSub.TopicName
	}
	a.runner = runner.New(
		runner.Deps{
			Docs:       crawler.NewDocumentFetcher(pages, retry),
			Downloader: downloader,
			Retry:      retry,
			Publisher:  publisher,
			Ledger:     ledger,
			Emitter:    a.hub,
			Clock:      system.New(),
			IDs:        idgen.New(),
		},
		runner.Config{
			Workers:      a.cfg.Crawl.Workers,
			QueueDepth:   a.cfg.Crawl.QueueDepth,
			DrainTimeout: a.cfg.Crawl.DrainTimeout,
			ItemSelector: a.cfg.Crawl.ItemSelector,
			Extensions:   a.cfg.Crawl.Extensions,
			Topic:        topic,
		},
		l.Named("runner"),
	)

	if a.cfg.Server.Addr != "" {
		a.server = api.NewServer(a.runner, api.Options{
			Gatherer: a.registry,
			Ledger:   ledger,
			Checks:   checks,
			Logger:   l.Named("api"),
		})
		l.Info("status server enabled", zap.String("addr", a.cfg.Server.Addr))
	}

	l.Info("harvester services initialized",
		zap.String("storage", a.cfg.Storage.Backend),
		zap.Int("workers", a.cfg.Crawl.Workers),
		zap.Bool("notices", publisher != nil),
	)
	return nil
}

func (a *App) initTracing(ctx context.Context, processors []sdktrace.SpanProcessor) error {
	tpOpts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, sp := range processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
	}, tpOpts...)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.addCloser("tracer provider", tp.Shutdown)
	return nil
}

func (a *App) initStore(ctx context.Context, opts Options, checks map[string]api.Check) (crawler.DocumentStore, error) {
	if opts.Store != nil {
		a.logger.Info("using injected document store")
		return opts.Store, nil
	}
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := gstorage.NewClient(ctx, opts.GoogleOptions...)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.addCloser("gcs client", func(context.Context) error { return client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		checks["gcs"] = store.Ping
		a.logger.Info("using GCS document store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory document store; documents are discarded on exit")
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Crawl.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		a.logger.Info("using local document store", zap.String("dir", a.cfg.Crawl.OutputDir))
		return store, nil
	}
}

func (a *App) initLedger(ctx context.Context, injected Ledger, checks map[string]api.Check) (Ledger, error) {
	if injected != nil {
		return injected, nil
	}
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no db.dsn set; run history is kept in memory")
		return memory.NewLedgerStore(), nil
	}
	a.logger.Info("connecting to PostgreSQL")
	store, err := postgres.NewOutcomeStore(ctx, postgres.OutcomeStoreConfig{
		DSN:         a.cfg.DB.DSN,
		TablePrefix: a.cfg.DB.TablePrefix,
		MaxConns:    a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres ledger: %w", err)
	}
	a.addCloser("postgres pool", func(context.Context) error {
		store.Close()
		return nil
	})
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate postgres ledger: %w", err)
	}
	checks["postgres"] = store.Ping
	return store, nil
}

func (a *App) initPublisher(ctx context.Context, opts Options) (crawler.Publisher, error) {
	if opts.Publisher != nil {
		return opts.Publisher, nil
	}
	if a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	if a.cfg.Storage.Backend == config.BackendMemory {
		a.logger.Info("dry run; download notices are captured in memory", zap.String("topic", a.cfg.PubSub.TopicName))
		return memorypublisher.New(), nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID, opts.GoogleOptions...)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client)
	// Registered in reverse: topics stop before the client closes.
	a.addCloser("pubsub client", func(context.Context) error { return client.Close() })
	a.addCloser("pubsub topics", func(context.Context) error {
		publisher.Close()
		return nil
	})
	a.logger.Info("publishing download notices to Pub/Sub",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run harvests the configured partition range. The status server, when enabled,
// serves for the lifetime of the run. Progress is flushed before the summary is
// printed to Stdout, and the JSON report is written when report.path is set.
// A drain timeout returns runner.ErrDrainTimeout together with the partial report.
func (a *App) Run(ctx context.Context) (runner.Report, error) {
	partitions, err := a.cfg.Catalog().Partitions()
	if err != nil {
		return runner.Report{}, fmt.Errorf("build partitions: %w", err)
	}

	var (
		rep    runner.Report
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	if a.server != nil {
		g.Go(func() error {
			return a.server.ListenAndServe(serverCtx, a.cfg.Server.Addr)
		})
	}
	g.Go(func() error {
		defer stopServer()
		rep, runErr = a.runner.Run(gctx, partitions, results.New())
		return nil
	})
	serveErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, runner.ErrDrainTimeout) {
		return rep, fmt.Errorf("run harvest: %w", runErr)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := a.hub.Close(flushCtx); err != nil {
		a.logger.Warn("progress flush incomplete", zap.Error(err))
	}

	if err := report.PrintSummary(a.stdout, rep); err != nil {
		return rep, fmt.Errorf("print summary: %w", err)
	}
	if a.cfg.Report.Path != "" {
		if err := report.WriteJSON(a.cfg.Report.Path, rep); err != nil {
			return rep, fmt.Errorf("write report: %w", err)
		}
		a.logger.Info("report written", zap.String("path", a.cfg.Report.Path))
	}
	if serveErr != nil {
		return rep, serveErr
	}
	return rep, runErr
}

// Close gracefully shuts down all services in reverse order of creation and
// syncs the logger. It is safe to call after a failed Run.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down harvester services")
	a.closeServices(ctx)
	_ = a.logger.Sync()
}

func (a *App) closeServices(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
