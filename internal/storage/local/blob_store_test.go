// Package local_test tests the local filesystem document store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/proceedings-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "mydocuments")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "testfile")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)

		// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
		require.NoError(t, os.Chmod(tempDir, 0o700))
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		name := "Paper_A_1.pdf"
		data := []byte("hello world")
		obj, err := store.PutObject(context.Background(), name, "application/pdf", bytes.NewReader(data))
		require.NoError(t, err)

		assert.Equal(t, "file://"+filepath.Join(tempDir, name), obj.URI)
		assert.Equal(t, int64(len(data)), obj.Bytes)
		assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", obj.SHA256)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, name))
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("OverwriteIsLastWriteWins", func(t *testing.T) {
		name := "Paper_B_1.pdf"
		_, err := store.PutObject(context.Background(), name, "", bytes.NewReader([]byte("first")))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), name, "", bytes.NewReader([]byte("second")))
		require.NoError(t, err)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, name))
		require.NoError(t, err)
		assert.Equal(t, "second", string(readData))
	})

	t.Run("FailedCopyLeavesNoFile", func(t *testing.T) {
		name := "Paper_C_1.pdf"
		reader := io.MultiReader(
			bytes.NewReader([]byte("partial content")),
			iotest.ErrReader(errors.New("connection reset by peer")),
		)
		_, err := store.PutObject(context.Background(), name, "", reader)
		require.ErrorContains(t, err, "connection reset by peer")

		_, statErr := os.Stat(filepath.Join(tempDir, name))
		assert.True(t, os.IsNotExist(statErr))
		assertNoTempFiles(t, tempDir)
	})

	t.Run("CanceledContextLeavesNoFile", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		name := "Paper_D_1.pdf"
		_, err := store.PutObject(ctx, name, "", bytes.NewReader([]byte("data")))
		require.ErrorIs(t, err, context.Canceled)

		_, statErr := os.Stat(filepath.Join(tempDir, name))
		assert.True(t, os.IsNotExist(statErr))
		assertNoTempFiles(t, tempDir)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.pdf", "", bytes.NewReader([]byte("data")))
		assert.ErrorContains(t, err, "path traversal")
	})
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.part"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
