package printing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// MaxCopies caps a single submission
const MaxCopies = 50

// ErrNoDefault is returned by a spooler without a configured default
var ErrNoDefault = errors.New("no system default destination")

// Spooler is the printing subsystem capability used by the dispatcher
type Spooler interface {
	// Destinations lists printer names known to the spooler
	Destinations(ctx context.Context) ([]string, error)

	// DefaultDestination returns the currently configured default printer
	DefaultDestination(ctx context.Context) (string, error)

	// Submit hands a job to the spooler and returns once it was accepted
	Submit(ctx context.Context, job pipeline.PrintJob) (string, error)
}

// Dispatcher validates print requests and forwards them to a spooler
type Dispatcher struct {
	spooler Spooler
}

// NewDispatcher creates a dispatcher on top of spooler
func NewDispatcher(spooler Spooler) *Dispatcher {
	if spooler == nil {
		spooler = DisabledSpooler{}
	}
	return &Dispatcher{spooler: spooler}
}

// ListDestinations returns printer names in spooler order. It returns an
// empty list when no printing subsystem is available.
func (d *Dispatcher) ListDestinations(ctx context.Context) []string {
	dests, err := d.spooler.Destinations(ctx)
	if err != nil {
		return []string{}
	}
	return dests
}

// Submit queues copies of path on destination; "" resolves to the spooler's
// default at call time. It returns the spooler's job id.
func (d *Dispatcher) Submit(ctx context.Context, path, destination string, copies int) (string, error) {
	if copies < 1 {
		return "", newError(InvalidRequest, destination, fmt.Errorf("copies must be at least 1, got %d", copies))
	}
	if copies > MaxCopies {
		return "", newError(InvalidRequest, destination, fmt.Errorf("copies must be at most %d, got %d", MaxCopies, copies))
	}
	if path == "" {
		return "", newError(InvalidRequest, destination, errors.New("no file to print"))
	}
	if _, err := os.Stat(path); err != nil {
		return "", newError(InvalidRequest, destination, fmt.Errorf("file to print: %w", err))
	}

	dest := strings.TrimSpace(destination)
	if dest == "" {
		def, err := d.spooler.DefaultDestination(ctx)
		if errors.Is(err, ErrNoDefault) || (err == nil && def == "") {
			return "", newError(NoSuchDestination, pipeline.DefaultDestinationLabel, ErrNoDefault)
		}
		if err != nil {
			return "", classify(err, pipeline.DefaultDestinationLabel)
		}
		dest = def
	}

	dests, err := d.spooler.Destinations(ctx)
	if err != nil {
		return "", classify(err, dest)
	}
	if !contains(dests, dest) {
		return "", newError(NoSuchDestination, dest, errors.New("printer not found"))
	}

	jobID, err := d.spooler.Submit(ctx, pipeline.PrintJob{Destination: dest, Path: path, Copies: copies})
	if err != nil {
		return "", classify(err, dest)
	}
	return jobID, nil
}

// classify keeps typed spooler errors and treats anything else as an outage
func classify(err error, dest string) error {
	if _, ok := KindOf(err); ok {
		return err
	}
	return newError(SpoolerUnavailable, dest, err)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// DisabledSpooler is used where no printing subsystem exists
type DisabledSpooler struct{}

var errDisabled = errors.New("printing subsystem not available")

// Destinations implements Spooler
func (DisabledSpooler) Destinations(ctx context.Context) ([]string, error) {
	return nil, errDisabled
}

// DefaultDestination implements Spooler
func (DisabledSpooler) DefaultDestination(ctx context.Context) (string, error) {
	return "", errDisabled
}

// Submit implements Spooler
func (DisabledSpooler) Submit(ctx context.Context, job pipeline.PrintJob) (string, error) {
	return "", errDisabled
}
