// Package sha256 includes tests for the SHA-256 helpers.
package sha256

import (
	"io"
	"strings"
	"testing"
)

const helloWorldDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if got != helloWorldDigest {
		t.Fatalf("expected %s, got %s", helloWorldDigest, got)
	}
	again, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

// TestReaderMatchesHasher ensures streaming digests equal whole-payload digests.
func TestReaderMatchesHasher(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("hello world"))
	out, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("reader altered content: %q", out)
	}
	if r.Sum() != helloWorldDigest {
		t.Fatalf("expected %s, got %s", helloWorldDigest, r.Sum())
	}
	if r.BytesRead() != int64(len("hello world")) {
		t.Fatalf("expected 11 bytes, got %d", r.BytesRead())
	}
}
