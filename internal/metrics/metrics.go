// Package metrics exposes Prometheus collectors for page fetches, document
// transfers, worker activity and the status server.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pageFetchesTotal            *prometheus.CounterVec
	pageBytesTotal              *prometheus.CounterVec
	pageFetchDurationSeconds    *prometheus.HistogramVec
	documentTransfersTotal      *prometheus.CounterVec
	documentBytesTotal          *prometheus.CounterVec
	documentTransferDurationSec *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	activeWorkers               prometheus.Gauge
	runDrainSeconds             *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_page_fetches_total",
				Help: "Total index and detail pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_page_bytes_total",
				Help: "Total HTML bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		pageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_page_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		documentTransfersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_document_transfers_total",
				Help: "Total document transfers, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		documentBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_document_bytes_total",
				Help: "Total document bytes streamed to storage, labeled by site.",
			},
			[]string{"site"},
		)

		documentTransferDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_document_transfer_duration_seconds",
				Help:    "Histogram of document transfer latencies, labeled by result.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing an item.",
			},
		)

		runDrainSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_run_drain_seconds",
				Help:    "Time spent waiting for the worker pool to drain, labeled by final state.",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
			},
			[]string{"state"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the default registry plus any extra gatherers.
func Handler(extra ...prometheus.Gatherer) http.Handler {
	if len(extra) == 0 {
		return promhttp.Handler()
	}
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	gatherers = append(gatherers, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// ObserveFetch records a page fetch. status is the HTTP code, or "error" when none was received.
func ObserveFetch(rawURL string, status string, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	pageFetchesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	pageFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveDownload records a document transfer with result "success" or an error kind.
func ObserveDownload(rawURL string, result string, bytesWritten int64, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	documentTransfersTotal.WithLabelValues(site, result).Inc()
	if bytesWritten > 0 {
		documentBytesTotal.WithLabelValues(site).Add(float64(bytesWritten))
	}
	documentTransferDurationSec.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDrain records how long a run waited for its workers.
func ObserveDrain(state string, duration time.Duration) {
	Init()
	runDrainSeconds.WithLabelValues(state).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
