package executors

import (
	"context"
	"errors"
	"sync"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// ErrClosed is returned by Enqueue once Close has been called
var ErrClosed = errors.New("executor closed")

// Handler processes one settled photo
type Handler func(ctx context.Context, file pipeline.CandidateFile)

// SerialExecutor runs a handler for queued photos one at a time, in the
// order they were enqueued. A full queue blocks Enqueue.
type SerialExecutor struct {
	handler Handler
	onDepth func(int)

	items     chan pipeline.CandidateFile
	closing   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	started   bool
	done      chan struct{}
}

// NewSerialExecutor creates an executor with a queue of size slots.
// onDepth, if set, is called with the queue length whenever it changes.
func NewSerialExecutor(size int, handler Handler, onDepth func(int)) *SerialExecutor {
	if size < 1 {
		size = 1
	}
	if onDepth == nil {
		onDepth = func(int) {}
	}
	return &SerialExecutor{
		handler: handler,
		onDepth: onDepth,
		items:   make(chan pipeline.CandidateFile, size),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the single worker. Handlers receive a context that is not
// cancelled by Close, so in-flight work runs to completion.
func (e *SerialExecutor) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	workCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(e.done)
		for file := range e.items {
			e.onDepth(len(e.items))
			e.handler(workCtx, file)
		}
	}()
}

// Enqueue adds a photo, blocking while the queue is full
func (e *SerialExecutor) Enqueue(ctx context.Context, file pipeline.CandidateFile) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	select {
	case e.items <- file:
		e.onDepth(len(e.items))
		return nil
	case <-e.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued photos
func (e *SerialExecutor) Len() int {
	return len(e.items)
}

// Close stops accepting photos and waits until queued and in-flight photos
// are handled, or ctx expires.
func (e *SerialExecutor) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		close(e.closing)
		e.mu.Lock()
		e.closed = true
		close(e.items)
		started := e.started
		e.mu.Unlock()
		if !started {
			close(e.done)
		}
	})

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
