package compositor

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrorKind classifies compositing failures. All kinds are per-file.
type ErrorKind string

// ErrorKind constants
const (
	DecodeError   ErrorKind = "DecodeError"
	EncodeError   ErrorKind = "EncodeError"
	GeometryError ErrorKind = "GeometryError"
)

// Error is returned by the compositor for every failure
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, filepath.Base(e.Path), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a compositor error
func KindOf(err error) (ErrorKind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return "", false
}

func newError(kind ErrorKind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}
