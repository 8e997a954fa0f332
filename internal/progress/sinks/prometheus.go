package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/proceedings-harvester/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns the
// collectors for runs, partitions, items and per-site download counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge

	partitions    *prometheus.CounterVec
	itemsFound    prometheus.Counter
	items         *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	downloads     *prometheus.CounterVec
	downloadBytes *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_completed_total",
			Help: "Total runs finished partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_runs_active",
			Help: "Current number of active runs.",
		}),
		partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_partitions_total",
			Help: "Index partitions crawled partitioned by result.",
		}, []string{"result"}),
		itemsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_items_discovered_total",
			Help: "Items discovered on index pages.",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_items_processed_total",
			Help: "Items processed partitioned by result.",
		}, []string{"result"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_item_duration_seconds",
			Help:    "Wall time per processed item.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"result"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_downloads_total",
			Help: "Document downloads partitioned by site and result.",
		}, []string{"site", "result"}),
		downloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_download_bytes_total",
			Help: "Bytes stored per site.",
		}, []string{"site"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.partitions,
		s.itemsFound,
		s.items,
		s.itemDuration,
		s.downloads,
		s.downloadBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone, progress.StageRunTimeout:
		result := "completed"
		if evt.Stage == progress.StageRunTimeout {
			result = "timed_out"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		if s.tracker.complete(evt.RunID) {
			s.runsActive.Dec()
		}
	case progress.StagePartitionDone:
		s.partitions.WithLabelValues("ok").Inc()
		s.itemsFound.Add(float64(evt.Items))
	case progress.StagePartitionError:
		s.partitions.WithLabelValues("error").Inc()
	case progress.StageItemDone:
		s.observeItem(evt, "done")
	case progress.StageItemNoTargets:
		s.observeItem(evt, "no_targets")
	case progress.StageItemError:
		s.observeItem(evt, "error")
	case progress.StageDownloadDone:
		site := siteLabel(evt.Site)
		s.downloads.WithLabelValues(site, "success").Inc()
		if evt.Bytes > 0 {
			s.downloadBytes.WithLabelValues(site).Add(float64(evt.Bytes))
		}
	case progress.StageDownloadError:
		s.downloads.WithLabelValues(siteLabel(evt.Site), "failed").Inc()
	}
}

func (s *PrometheusSink) observeItem(evt progress.Event, result string) {
	s.items.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.itemDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
