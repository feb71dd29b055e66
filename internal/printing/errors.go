package printing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies print submission failures
type ErrorKind string

// ErrorKind constants
const (
	NoSuchDestination  ErrorKind = "NoSuchDestination"
	SpoolerUnavailable ErrorKind = "SpoolerUnavailable"
	InvalidRequest     ErrorKind = "InvalidRequest"
)

// Error is a submission-time print failure
type Error struct {
	Kind        ErrorKind
	Destination string
	Err         error
}

func (e *Error) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Destination, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a print error
func KindOf(err error) (ErrorKind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return "", false
}

func newError(kind ErrorKind, dest string, err error) *Error {
	return &Error{Kind: kind, Destination: dest, Err: err}
}
