package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/progress"
)

// DocumentSource fetches and parses a page.
type DocumentSource interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// ProcessorConfig controls Processor behavior.
type ProcessorConfig struct {
	// Extensions is the whitelist of document suffixes, e.g. ".pdf".
	Extensions []string
	// Topic receives a DownloadNotice per stored document when a Publisher is set.
	Topic string
	RunID uuid.UUID
}

// Processor runs fetch, extract and download for one catalog item.
type Processor struct {
	docs       DocumentSource
	downloader Downloader
	retry      RetryPolicy
	publisher  Publisher
	clock      Clock
	emitter    progress.Emitter
	cfg        ProcessorConfig
	logger     *zap.Logger
}

// NewProcessor constructs a Processor. retry, publisher and emitter may be nil.
func NewProcessor(
	docs DocumentSource,
	downloader Downloader,
	retry RetryPolicy,
	publisher Publisher,
	clock Clock,
	emitter progress.Emitter,
	cfg ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf"}
	}
	return &Processor{
		docs:       docs,
		downloader: downloader,
		retry:      retry,
		publisher:  publisher,
		clock:      clock,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process returns one outcome per download target, or a single failure outcome keyed
// by the raw title when the detail page cannot be fetched or lists no documents.
// A failed target never stops the remaining ones.
func (p *Processor) Process(ctx context.Context, item ItemReference) []DownloadOutcome {
	ctx, span := otel.Tracer("harvester/processor").Start(ctx, "process item")
	defer span.End()
	span.SetAttributes(
		attribute.Int("partition", item.Partition),
		attribute.String("title", item.Title),
		attribute.String("url", item.URL),
	)

	start := p.now()
	p.emit(progress.Event{Stage: progress.StageItemStart, Partition: item.Partition, Title: item.Title, URL: item.URL})

	doc, err := p.docs.Fetch(ctx, item.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detail page fetch failed")
		p.logger.Warn("detail page fetch failed", zap.String("title", item.Title), zap.String("url", item.URL), zap.Error(err))
		p.emit(progress.Event{
			Stage:     progress.StageItemError,
			Partition: item.Partition,
			Title:     item.Title,
			URL:       item.URL,
			Dur:       p.since(start),
			Note:      err.Error(),
		})
		return []DownloadOutcome{p.failure(item, item.URL, fmt.Errorf("fetch detail page: %w", err))}
	}

	targets := ExtractTargets(doc, p.cfg.Extensions)
	if len(targets) == 0 {
		p.logger.Info("no document links on detail page", zap.String("title", item.Title), zap.String("url", item.URL))
		p.emit(progress.Event{
			Stage:     progress.StageItemNoTargets,
			Partition: item.Partition,
			Title:     item.Title,
			URL:       item.URL,
			Dur:       p.since(start),
		})
		return []DownloadOutcome{p.failure(item, item.URL, ErrNoDownloadTargets)}
	}

	outcomes := make([]DownloadOutcome, 0, len(targets))
	failed := 0
	for _, target := range targets {
		outcome := p.downloadTarget(ctx, item, target)
		if !outcome.Success {
			failed++
		}
		outcomes = append(outcomes, outcome)
	}
	span.SetAttributes(attribute.Int("targets", len(targets)), attribute.Int("failed", failed))
	p.emit(progress.Event{
		Stage:     progress.StageItemDone,
		Partition: item.Partition,
		Title:     item.Title,
		URL:       item.URL,
		Dur:       p.since(start),
	})
	return outcomes
}

func (p *Processor) downloadTarget(ctx context.Context, item ItemReference, target DownloadTarget) DownloadOutcome {
	name := FileName(item.Title, target)
	start := p.now()
	obj, err := p.downloadWithRetry(ctx, target.URL, name)
	if err != nil {
		p.logger.Warn("download failed",
			zap.String("title", item.Title),
			zap.String("url", target.URL),
			zap.String("file", name),
			zap.Error(err),
		)
		p.emit(progress.Event{
			Stage:     progress.StageDownloadError,
			Partition: item.Partition,
			Title:     item.Title,
			URL:       target.URL,
			Site:      hostOf(target.URL),
			Dur:       p.since(start),
			Kind:      downloadErrorKind(err),
			Note:      err.Error(),
		})
		return p.failure(item, target.URL, err)
	}

	outcome := DownloadOutcome{
		Key:       name,
		Success:   true,
		Title:     item.Title,
		SourceURL: target.URL,
		URI:       obj.URI,
		Bytes:     obj.Bytes,
		SHA256:    obj.SHA256,
		Partition: item.Partition,
		At:        p.now(),
	}
	p.emit(progress.Event{
		Stage:     progress.StageDownloadDone,
		Partition: item.Partition,
		Title:     item.Title,
		URL:       target.URL,
		Key:       name,
		Site:      hostOf(target.URL),
		Bytes:     obj.Bytes,
		Dur:       p.since(start),
	})
	p.publish(ctx, outcome)
	return outcome
}

func (p *Processor) downloadWithRetry(ctx context.Context, rawURL, name string) (StoredObject, error) {
	for attempt := 0; ; attempt++ {
		obj, err := p.downloader.Download(ctx, rawURL, name)
		if err == nil {
			return obj, nil
		}
		if p.retry == nil || !p.retry.ShouldRetry(err, attempt+1) {
			return StoredObject{}, err
		}
		p.logger.Debug("retrying download", zap.String("url", rawURL), zap.Int("attempt", attempt+1), zap.Error(err))
		if waitErr := sleepContext(ctx, p.retry.Backoff(attempt)); waitErr != nil {
			return StoredObject{}, errors.Join(err, waitErr)
		}
	}
}

func (p *Processor) publish(ctx context.Context, outcome DownloadOutcome) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	notice := DownloadNotice{
		RunID:     p.cfg.RunID.String(),
		Key:       outcome.Key,
		Title:     outcome.Title,
		SourceURL: outcome.SourceURL,
		URI:       outcome.URI,
		SHA256:    outcome.SHA256,
		Bytes:     outcome.Bytes,
		Timestamp: outcome.At.Format(time.RFC3339),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, notice); err != nil {
		p.logger.Warn("publish download notice failed", zap.String("key", outcome.Key), zap.Error(err))
	}
}

func (p *Processor) failure(item ItemReference, source string, err error) DownloadOutcome {
	return DownloadOutcome{
		Key:       item.Title,
		Success:   false,
		Reason:    err.Error(),
		Title:     item.Title,
		SourceURL: source,
		Partition: item.Partition,
		At:        p.now(),
	}
}

func (p *Processor) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(p.cfg.RunID)
	evt.TS = p.now()
	p.emitter.Emit(evt)
}

func (p *Processor) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}

func (p *Processor) since(start time.Time) time.Duration {
	d := p.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

func downloadErrorKind(err error) string {
	var dlErr *DownloadError
	if errors.As(err, &dlErr) {
		return string(dlErr.Kind)
	}
	return ""
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
