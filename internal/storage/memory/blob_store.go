// Package memory keeps documents and run ledgers in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/hash/sha256"
)

// BlobStore stores documents in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// PutObject persists the content and returns a memory:// URI. Existing names are replaced.
func (s *BlobStore) PutObject(ctx context.Context, name string, _ string, data io.Reader) (crawler.StoredObject, error) {
	digest := sha256.NewReader(data)
	byteData, err := io.ReadAll(digest)
	if err != nil {
		return crawler.StoredObject{}, fmt.Errorf("failed to read data from reader: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("write canceled: %w", err)
	}

	s.mu.Lock()
	s.data[name] = byteData
	s.mu.Unlock()

	return crawler.StoredObject{
		URI:    "memory://" + name,
		Bytes:  digest.BytesRead(),
		SHA256: digest.Sum(),
	}, nil
}

// Get returns a copy of the stored content.
func (s *BlobStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Len reports how many documents are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
