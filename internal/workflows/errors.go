package workflows

import "errors"

var (
	// ErrInvalidRequest is returned when the workflow context is incomplete
	ErrInvalidRequest = errors.New("invalid workflow request")

	// ErrSourceMissing is returned when the settled photo vanished before processing
	ErrSourceMissing = errors.New("source photo missing")
)
