package storage

import (
	"context"
	"time"
)

// Writer names processed photos in the output folder
type Writer interface {
	// Exists checks if a file exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// NextPath returns an unused output path for a source photo. A non-empty
	// ext replaces the source's extension.
	NextPath(ctx context.Context, sourcePath, ext string, ts time.Time) (string, error)
}
