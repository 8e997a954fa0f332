package crawler

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// PageFetcher fetches a URL and returns the body plus metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Downloader streams a remote document into storage under name.
type Downloader interface {
	Download(ctx context.Context, url string, name string) (StoredObject, error)
}

// DocumentStore persists document bytes under a file name and returns a URI.
type DocumentStore interface {
	PutObject(ctx context.Context, name string, contentType string, r io.Reader) (StoredObject, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// OutcomeRecorder accepts outcomes from concurrent workers.
type OutcomeRecorder interface {
	Record(outcome DownloadOutcome)
}

// OutcomeLedger persists run summaries and their outcomes beyond the process lifetime.
type OutcomeLedger interface {
	RecordRun(ctx context.Context, run RunRecord) error
	RecordOutcomes(ctx context.Context, runID string, outcomes []DownloadOutcome) error
}

// Queue provides enqueue/dequeue semantics for item tasks.
type Queue interface {
	Enqueue(ctx context.Context, item ItemReference) error
	Dequeue(ctx context.Context) (ItemReference, error)
	Close()
}

// RetryPolicy decides whether and when a failed network call is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
