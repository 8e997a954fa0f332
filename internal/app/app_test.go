package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/app"
	"github.com/JakeFAU/proceedings-harvester/internal/config"
	memorypublisher "github.com/JakeFAU/proceedings-harvester/internal/publisher/memory"
	"github.com/JakeFAU/proceedings-harvester/internal/runner"
	"github.com/JakeFAU/proceedings-harvester/internal/storage/local"
	"github.com/JakeFAU/proceedings-harvester/internal/storage/memory"
)

// newProceedingsSite serves 2021 with one downloadable paper and one whose PDF
// is missing. Every other year answers 500.
func newProceedingsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/paper/2021", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<ul>
<li class="conference"><a href="/paper/2021/one">Paper One</a></li>
<li class="none"><a href="/paper/2021/two">Paper: Two</a></li>
</ul>`)
	})
	mux.HandleFunc("/paper/2021/one", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/file/one.pdf">Paper</a><a href="/file/one.html">Abstract</a>`)
	})
	mux.HandleFunc("/paper/2021/two", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/file/missing.pdf">Paper</a>`)
	})
	mux.HandleFunc("/file/one.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.7 one")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/paper/2022" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Crawl.BaseURL = baseURL
	cfg.Crawl.From = 2021
	cfg.Crawl.To = 2022
	cfg.Crawl.Workers = 2
	cfg.Crawl.DrainTimeout = 30 * time.Second
	cfg.HTTP.TimeoutSeconds = 5
	cfg.HTTP.DownloadTimeoutSeconds = 5
	cfg.Storage.Backend = config.BackendMemory
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1")
	cfg.Crawl.Workers = 0

	_, err := app.New(context.Background(), cfg, app.Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.workers")
}

func TestNewSelectsProviders(t *testing.T) {
	t.Run("memory backend with topic captures notices", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1")
		cfg.PubSub.ProjectID = "proj"
		cfg.PubSub.TopicName = "papers"

		a, err := app.New(context.Background(), cfg, app.Options{Logger: zap.NewNop(), Stdout: &bytes.Buffer{}})
		require.NoError(t, err)
		defer a.Close(context.Background())

		assert.IsType(t, &memory.BlobStore{}, a.GetStore())
		assert.IsType(t, &memory.LedgerStore{}, a.GetLedger())
		assert.IsType(t, &memorypublisher.Publisher{}, a.GetPublisher())
		assert.Nil(t, a.GetServer())
		assert.NotNil(t, a.GetRegistry())
		assert.Equal(t, runner.StateCreated, a.GetRunner().State())
	})

	t.Run("local backend without topic", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1")
		cfg.Storage.Backend = config.BackendLocal
		cfg.Crawl.OutputDir = filepath.Join(t.TempDir(), "docs")
		cfg.Server.Addr = "127.0.0.1:0"

		a, err := app.New(context.Background(), cfg, app.Options{Logger: zap.NewNop(), Stdout: &bytes.Buffer{}})
		require.NoError(t, err)
		defer a.Close(context.Background())

		assert.IsType(t, &local.BlobStore{}, a.GetStore())
		assert.Nil(t, a.GetPublisher())
		require.NotNil(t, a.GetServer())

		rec := httptest.NewRecorder()
		a.GetServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRunHarvestsAndReports(t *testing.T) {
	site := newProceedingsSite(t)
	cfg := testConfig(t, site.URL)
	cfg.PubSub.ProjectID = "proj"
	cfg.PubSub.TopicName = "papers"
	cfg.Report.Path = filepath.Join(t.TempDir(), "report.json")
	cfg.Server.Addr = "127.0.0.1:0"

	publisher := memorypublisher.New()
	recorder := tracetest.NewSpanRecorder()
	var stdout bytes.Buffer
	a, err := app.New(context.Background(), cfg, app.Options{
		Logger:         zap.NewNop(),
		Stdout:         &stdout,
		Publisher:      publisher,
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
	})
	require.NoError(t, err)
	defer a.Close(context.Background())

	rep, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, runner.StateCompleted, rep.State)
	assert.Equal(t, 2, rep.ItemsSubmitted)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.PartitionErrors, 1)
	assert.Equal(t, 2022, rep.PartitionErrors[0].Partition)

	out := stdout.String()
	assert.Contains(t, out, "Download Summary:")
	assert.Contains(t, out, "Paper_One_1.pdf -> Success")
	assert.Contains(t, out, "Paper: Two -> Failed")
	assert.Contains(t, out, "Failed to scrape year: 2022")
	assert.Contains(t, out, "All downloads complete!")

	store, ok := a.GetStore().(*memory.BlobStore)
	require.True(t, ok)
	body, ok := store.Get("Paper_One_1.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.7 one", string(body))

	run, err := a.GetLedger().GetRun(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(runner.StateCompleted), run.State)

	require.Len(t, publisher.Notices("papers"), 1)
	notice, ok := publisher.NoticeFor("papers", "Paper_One_1.pdf")
	require.True(t, ok)
	assert.Equal(t, rep.RunID, notice.RunID)

	raw, err := os.ReadFile(cfg.Report.Path)
	require.NoError(t, err)
	var written runner.Report
	require.NoError(t, json.Unmarshal(raw, &written))
	assert.Equal(t, rep.RunID, written.RunID)
	assert.Len(t, written.Outcomes, 2)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "dispatch partition")
	assert.Contains(t, names, "process item")
}

func TestRunReportsDrainTimeout(t *testing.T) {
	slow := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/paper/2021", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<li class="conference"><a href="/paper/2021/one">Slow Paper</a></li>`)
	})
	mux.HandleFunc("/paper/2021/one", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/file/slow.pdf">Paper</a>`)
	})
	mux.HandleFunc("/file/slow.pdf", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-slow:
		case <-r.Context().Done():
		}
	})
	site := httptest.NewServer(mux)
	defer site.Close()
	defer close(slow)

	cfg := testConfig(t, site.URL)
	cfg.Crawl.To = 2021
	cfg.Crawl.DrainTimeout = 200 * time.Millisecond

	var stdout bytes.Buffer
	a, err := app.New(context.Background(), cfg, app.Options{Logger: zap.NewNop(), Stdout: &stdout})
	require.NoError(t, err)
	defer a.Close(context.Background())

	rep, err := a.Run(context.Background())
	require.ErrorIs(t, err, runner.ErrDrainTimeout)
	assert.Equal(t, runner.StateTimedOut, rep.State)
	assert.Contains(t, stdout.String(), "Drain timed out; partial results shown.")
}
