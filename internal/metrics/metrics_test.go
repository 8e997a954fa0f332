package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pageFetchesTotal
	Init()

	if pageFetchesTotal == nil || first != pageFetchesTotal {
		t.Fatal("Init() did not initialize collectors exactly once")
	}
}

func TestObserveFetchAndDownload(t *testing.T) {
	Init()
	beforePages := testutil.ToFloat64(pageFetchesTotal.WithLabelValues("fetch.test", "200"))
	beforeBytes := testutil.ToFloat64(documentBytesTotal.WithLabelValues("fetch.test"))

	ObserveFetch("https://fetch.test/paper/2021", "200", 512, 20*time.Millisecond)
	ObserveDownload("https://fetch.test/a.pdf", "success", 2048, time.Second)
	ObserveDownload("https://fetch.test/b.pdf", "status", 0, time.Second)

	if got := testutil.ToFloat64(pageFetchesTotal.WithLabelValues("fetch.test", "200")); got != beforePages+1 {
		t.Errorf("page fetches = %f, want %f", got, beforePages+1)
	}
	if got := testutil.ToFloat64(documentBytesTotal.WithLabelValues("fetch.test")); got != beforeBytes+2048 {
		t.Errorf("document bytes = %f, want %f", got, beforeBytes+2048)
	}
	if got := testutil.ToFloat64(documentTransfersTotal.WithLabelValues("fetch.test", "status")); got < 1 {
		t.Errorf("expected failed transfer to be counted, got %f", got)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before+1 {
		t.Errorf("active workers = %f, want %f", got, before+1)
	}
	DecActiveWorkers()
}

func TestHandlerIncludesExtraGatherers(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "handler_extra_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "handler_extra_total 1") {
		t.Errorf("expected extra registry in output, got %s", body)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
