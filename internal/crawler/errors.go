package crawler

import (
	"errors"
	"fmt"
)

// ErrNoDownloadTargets marks a detail page without any link matching the extension whitelist.
var ErrNoDownloadTargets = errors.New("no valid document found")

// ErrQueueClosed is returned by a Queue that was closed; Dequeue returns it only once drained.
var ErrQueueClosed = errors.New("queue closed")
// ErrRunNotFound is returned by ledgers for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// FetchError reports an index or detail page that could not be fetched or parsed.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// DownloadErrorKind classifies per-target download failures.
type DownloadErrorKind string

// Download failure kinds.
const (
	KindTransport DownloadErrorKind = "transport"
	KindStatus    DownloadErrorKind = "status"
	KindNoContent DownloadErrorKind = "no_content"
	KindStore     DownloadErrorKind = "store"
)

// DownloadError reports a failed download of a single target.
type DownloadError struct {
	Kind       DownloadErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	switch e.Kind {
	case KindNoContent:
		return fmt.Sprintf("download %s: no content received", e.URL)
	case KindStatus:
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("download %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// StatusError carries a non-success HTTP status returned by the remote server.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("status %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
