// Package download streams documents from remote servers into a DocumentStore.
package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	collyfetcher "github.com/JakeFAU/proceedings-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/proceedings-harvester/internal/metrics"
)

const defaultTimeout = 10 * time.Minute

// Config controls HTTPDownloader behavior.
type Config struct {
	UserAgent string
	// Timeout bounds one download including the body transfer.
	Timeout time.Duration
}

// HTTPDownloader implements crawler.Downloader with a streaming GET per document.
type HTTPDownloader struct {
	client *http.Client
	store  crawler.DocumentStore
	cfg    Config
}

// New builds an HTTPDownloader writing into store. A nil client gets the shared pooled transport.
func New(store crawler.DocumentStore, client *http.Client, cfg Config) *HTTPDownloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Transport: collyfetcher.NewHTTPTransport()}
	}
	return &HTTPDownloader{client: client, store: store, cfg: cfg}
}

// Download fetches rawURL and stores the body under name. Failures are *crawler.DownloadError.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, name string) (crawler.StoredObject, error) {
	start := time.Now()
	obj, err := d.download(ctx, rawURL, name)
	metrics.ObserveDownload(rawURL, resultLabel(err), obj.Bytes, time.Since(start))
	return obj, err
}

func (d *HTTPDownloader) download(ctx context.Context, rawURL, name string) (crawler.StoredObject, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return crawler.StoredObject{}, &crawler.DownloadError{Kind: crawler.KindTransport, URL: rawURL, Err: err}
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return crawler.StoredObject{}, &crawler.DownloadError{Kind: crawler.KindTransport, URL: rawURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return crawler.StoredObject{}, &crawler.DownloadError{
			Kind:       crawler.KindStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode == http.StatusNoContent {
		return crawler.StoredObject{}, &crawler.DownloadError{Kind: crawler.KindNoContent, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body := bufio.NewReader(resp.Body)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return crawler.StoredObject{}, &crawler.DownloadError{Kind: crawler.KindNoContent, URL: rawURL, StatusCode: resp.StatusCode}
		}
		return crawler.StoredObject{}, &crawler.DownloadError{Kind: crawler.KindTransport, URL: rawURL, Err: err}
	}

	obj, err := d.store.PutObject(ctx, name, contentType(resp.Header.Get("Content-Type"), name), body)
	if err != nil {
		return obj, &crawler.DownloadError{Kind: crawler.KindStore, URL: rawURL, Err: fmt.Errorf("store %s: %w", name, err)}
	}
	return obj, nil
}

func contentType(header, name string) string {
	if header != "" {
		return header
	}
	if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	var dlErr *crawler.DownloadError
	if errors.As(err, &dlErr) {
		return string(dlErr.Kind)
	}
	return "error"
}
