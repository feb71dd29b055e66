package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2026, 10, 14, 9, 30, 5, 0, time.Local)

func TestOutputName(t *testing.T) {
	assert.Equal(t, "photo1_20261014_093005.jpg", OutputName("/watch/photo1.jpg", ts))
	assert.Equal(t, "my.shot_20261014_093005.PNG", OutputName("my.shot.PNG", ts))
	assert.Equal(t, "raw_20261014_093005", OutputName("raw", ts))
}

func TestNewFilesystemStorage_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	fs, err := NewFilesystemStorage(dir)
	require.NoError(t, err)

	info, err := os.Stat(fs.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPath_RejectsTraversal(t *testing.T) {
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Path("../escape.jpg")
	assert.Error(t, err)

	p, err := fs.Path("ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.BaseDir(), "ok.jpg"), p)
}

func TestNextPath_AvoidsCollisions(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	first, err := fs.NextPath(ctx, "/watch/photo1.jpg", "", ts)
	require.NoError(t, err)
	assert.Equal(t, "photo1_20261014_093005.jpg", filepath.Base(first))
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))

	second, err := fs.NextPath(ctx, "/watch/photo1.jpg", "", ts)
	require.NoError(t, err)
	assert.Equal(t, "photo1_20261014_093005_1.jpg", filepath.Base(second))
}

func TestNextPath_ExtensionOverride(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	first, err := fs.NextPath(ctx, "/watch/snap.webp", ".png", ts)
	require.NoError(t, err)
	assert.Equal(t, "snap_20261014_093005.png", filepath.Base(first))
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))

	// the collision check covers the name actually written
	second, err := fs.NextPath(ctx, "/watch/snap.webp", ".png", ts)
	require.NoError(t, err)
	assert.Equal(t, "snap_20261014_093005_1.png", filepath.Base(second))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("image-bytes"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriteFileAtomic_FailedWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	err = WriteFileAtomic(filepath.Join(fs.BaseDir(), "out.png"), func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("encoder exploded")
	})
	require.Error(t, err)

	exists, err := fs.Exists(ctx, "out.png")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := os.ReadDir(fs.BaseDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
