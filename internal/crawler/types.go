package crawler

import (
	"net/http"
	"time"
)

// CatalogPartition is one unit of crawl scope, e.g. a single proceedings year.
type CatalogPartition struct {
	ID       int
	IndexURL string
}

// ItemReference is one catalog entry discovered on a partition index page.
type ItemReference struct {
	Partition int
	// Title is the raw anchor text and may contain characters unsafe for file names.
	Title string
	URL   string
}

// DownloadTarget is a document link found on an item's detail page.
type DownloadTarget struct {
	URL   string
	Index int
	Ext   string
}

// DownloadOutcome records the result of one download attempt, or of an item with
// no attempt at all.
type DownloadOutcome struct {
	Key       string    `json:"key"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url,omitempty"`
	URI       string    `json:"uri,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	SHA256    string    `json:"sha256,omitempty"`
	Partition int       `json:"partition"`
	At        time.Time `json:"at"`
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a PageFetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StoredObject describes a document persisted by a DocumentStore.
type StoredObject struct {
	URI    string
	Bytes  int64
	SHA256 string
}

// DownloadNotice is the payload published for every stored document.
type DownloadNotice struct {
	RunID     string `json:"run_id"`
	Key       string `json:"key"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	URI       string `json:"uri"`
	SHA256    string `json:"sha256"`
	Bytes     int64  `json:"bytes"`
	Timestamp string `json:"timestamp"`
}

// RunRecord summarizes one finished run for an OutcomeLedger.
type RunRecord struct {
	ID         string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time
	Items      int
	Succeeded  int
	Failed     int
}
