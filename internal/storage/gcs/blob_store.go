// Package gcs provides a document store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/hash/sha256"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "neurips/2021".
	Prefix string
}

// BlobStore writes documents to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed document store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Ping verifies the bucket exists and is reachable with the client's credentials.
func (s *BlobStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s attrs: %w", s.bucket, err)
	}
	return nil
}

// PutObject streams data to the configured bucket and returns a gs:// URI. GCS only
// publishes an object once the writer closes cleanly, so failed uploads leave nothing behind.
func (s *BlobStore) PutObject(
	ctx context.Context,
	name string,
	contentType string,
	r io.Reader,
) (crawler.StoredObject, error) {
	if strings.TrimSpace(name) == "" {
		return crawler.StoredObject{}, fmt.Errorf("path is required")
	}
	objectName := name
	if s.prefix != "" {
		objectName = path.Join(s.prefix, name)
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(writeCtx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	digest := sha256.NewReader(r)
	if _, err := io.Copy(writer, digest); err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		closeErr := writer.Close()
		if closeErr != nil {
			return crawler.StoredObject{}, fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return crawler.StoredObject{}, fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("close writer: %w", err)
	}
	return crawler.StoredObject{
		URI:    fmt.Sprintf("gs://%s/%s", s.bucket, objectName),
		Bytes:  digest.BytesRead(),
		SHA256: digest.Sum(),
	}, nil
}
