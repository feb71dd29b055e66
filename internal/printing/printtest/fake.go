// Package printtest provides an in-memory spooler for tests.
package printtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// Spooler records submitted jobs instead of printing them
type Spooler struct {
	mu          sync.Mutex
	Printers    []string
	Default     string
	Err         error // returned by every call when set
	SubmitErr   error // returned by Submit only
	jobs        []pipeline.PrintJob
	submitCalls int
}

// New creates a fake spooler with the given printers; the first is default
func New(printers ...string) *Spooler {
	s := &Spooler{Printers: printers}
	if len(printers) > 0 {
		s.Default = printers[0]
	}
	return s
}

// Destinations implements printing.Spooler
func (s *Spooler) Destinations(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]string(nil), s.Printers...), nil
}

// DefaultDestination implements printing.Spooler
func (s *Spooler) DefaultDestination(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if s.Default == "" {
		return "", printing.ErrNoDefault
	}
	return s.Default, nil
}

// Submit implements printing.Spooler
func (s *Spooler) Submit(ctx context.Context, job pipeline.PrintJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls++
	if s.Err != nil {
		return "", s.Err
	}
	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}
	s.jobs = append(s.jobs, job)
	return fmt.Sprintf("%s-%d", job.Destination, len(s.jobs)), nil
}

// SetDefault changes the default destination
func (s *Spooler) SetDefault(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Default = name
}

// Jobs returns the accepted jobs
func (s *Spooler) Jobs() []pipeline.PrintJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.PrintJob(nil), s.jobs...)
}

// SubmitCalls counts Submit invocations, including failed ones
func (s *Spooler) SubmitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitCalls
}
