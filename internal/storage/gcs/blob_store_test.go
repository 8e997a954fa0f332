package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestStore creates a BlobStore pointed at a test server.
func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
		path string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(raw)
		path = r.URL.Path
		mu.Unlock()
		fmt.Fprintln(w, `{"name": "neurips/Paper_A_1.pdf", "bucket": "test-bucket"}`)
	})

	store := newTestStore(t, handler, Config{Bucket: "test-bucket", Prefix: "/neurips/"})
	obj, err := store.PutObject(context.Background(), "Paper_A_1.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.7 data")))
	require.NoError(t, err)

	assert.Equal(t, "gs://test-bucket/neurips/Paper_A_1.pdf", obj.URI)
	assert.Equal(t, int64(len("%PDF-1.7 data")), obj.Bytes)
	assert.Len(t, obj.SHA256, 64)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, path, "/b/test-bucket/o")
	assert.Contains(t, body, "neurips/Paper_A_1.pdf")
	assert.Contains(t, body, "%PDF-1.7 data")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store := newTestStore(t, handler, Config{Bucket: "test-bucket"})

	_, err := store.PutObject(context.Background(), "Paper_A_1.pdf", "", strings.NewReader("data"))
	require.Error(t, err)
}

func TestPutObjectRequiresName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler(), Config{Bucket: "test-bucket"})
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("data"))
	require.ErrorContains(t, err, "path is required")
}

func TestPing(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/b/test-bucket") {
			fmt.Fprintln(w, `{"name": "test-bucket"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	store := newTestStore(t, handler, Config{Bucket: "test-bucket"})
	require.NoError(t, store.Ping(context.Background()))

	missing := newTestStore(t, handler, Config{Bucket: "other"})
	require.Error(t, missing.Ping(context.Background()))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")
}
