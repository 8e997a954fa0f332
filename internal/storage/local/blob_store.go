// Package local implements a filesystem document store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
	"github.com/JakeFAU/proceedings-harvester/internal/hash/sha256"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes documents to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed store, creating BaseDir when missing.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{
		baseDir: cfg.BaseDir,
	}, nil
}

// PutObject streams data into name under the base directory and returns a file:// URI.
// Content lands in a temporary sibling first and is renamed into place only after a
// complete copy, so readers never observe a partial document. An existing file is replaced.
func (s *BlobStore) PutObject(ctx context.Context, name string, _ string, data io.Reader) (crawler.StoredObject, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return crawler.StoredObject{}, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*.part")
	if err != nil {
		return crawler.StoredObject{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	digest := sha256.NewReader(data)
	if _, err := io.Copy(tmp, digest); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("write canceled: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return crawler.StoredObject{}, fmt.Errorf("failed to move file into place: %w", err)
	}
	committed = true

	return crawler.StoredObject{
		URI:    "file://" + fullPath,
		Bytes:  digest.BytesRead(),
		SHA256: digest.Sum(),
	}, nil
}

func (s *BlobStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	fullPath := filepath.Join(s.baseDir, name)

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return cleanFullPath, nil
}
