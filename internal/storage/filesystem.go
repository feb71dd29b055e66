package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout is the suffix appended to output file stems
const TimestampLayout = "20060102_150405"

// maxCollisionSuffix bounds the search for a free output name
const maxCollisionSuffix = 1000

var _ Writer = (*FilesystemStorage)(nil)

// FilesystemStorage is the output folder for processed photos
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates the output folder if needed
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}

	// Ensure base directory exists
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: abs,
	}, nil
}

// BaseDir returns the absolute output folder
func (fs *FilesystemStorage) BaseDir() string {
	return fs.baseDir
}

// Path resolves key inside the output folder
func (fs *FilesystemStorage) Path(key string) (string, error) {
	path := filepath.Join(fs.baseDir, key)

	// Security: prevent directory traversal
	rel, err := filepath.Rel(fs.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key: path traversal detected")
	}

	return path, nil
}

// OutputName returns <stem>_<YYYYMMDD_HHMMSS><ext> for a source file
func OutputName(sourcePath string, ts time.Time) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s%s", stem, ts.Format(TimestampLayout), ext)
}

// NextPath returns a free output path for sourcePath, written with ext when
// it is set. When two photos with the same stem arrive within one second a
// counter is appended.
func (fs *FilesystemStorage) NextPath(ctx context.Context, sourcePath, ext string, ts time.Time) (string, error) {
	name := OutputName(sourcePath, ts)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if ext == "" {
		ext = filepath.Ext(name)
	}
	name = stem + ext

	for i := 0; i < maxCollisionSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		exists, err := fs.Exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return fs.Path(candidate)
		}
	}
	return "", fmt.Errorf("no free output name for %s", filepath.Base(sourcePath))
}

// Exists checks if a file exists at the given key
func (fs *FilesystemStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := fs.Path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// WriteFileAtomic writes path via a hidden temporary file in the same
// directory, so the final name only ever refers to a complete file.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	committed = true
	return nil
}
