package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DocumentFetcher turns fetched pages into parsed documents.
type DocumentFetcher struct {
	pages PageFetcher
	retry RetryPolicy
}

// NewDocumentFetcher wraps pages; retry may be nil for single-attempt fetches.
func NewDocumentFetcher(pages PageFetcher, retry RetryPolicy) *DocumentFetcher {
	return &DocumentFetcher{pages: pages, retry: retry}
}

// Fetch retrieves rawURL and parses it. Every failure is returned as a *FetchError.
func (f *DocumentFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if f == nil || f.pages == nil {
		return nil, &FetchError{URL: rawURL, Cause: errors.New("no page fetcher configured")}
	}
	var (
		resp FetchResponse
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = f.pages.Fetch(ctx, FetchRequest{URL: rawURL})
		if err == nil || f.retry == nil || !f.retry.ShouldRetry(err, attempt+1) {
			break
		}
		if waitErr := sleepContext(ctx, f.retry.Backoff(attempt)); waitErr != nil {
			break
		}
	}
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Cause: fmt.Errorf("parse html: %w", err)}
	}
	base := resp.URL
	if base == "" {
		base = rawURL
	}
	if u, parseErr := url.Parse(base); parseErr == nil {
		doc.Url = u
	}
	return doc, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
