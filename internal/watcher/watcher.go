package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tendant/simple-photo-pipeline/internal/dedupe"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

var (
	// ErrWatchIO is returned when the watch folder cannot be listed
	ErrWatchIO = errors.New("watch folder unavailable")

	// ErrAlreadyStarted is returned by Start on a running watcher
	ErrAlreadyStarted = errors.New("watcher already started")
)

// DefaultPollInterval is used when the config leaves PollInterval unset
const DefaultPollInterval = 500 * time.Millisecond

// minEventScanGap rate-limits scans triggered by change notifications
const minEventScanGap = 50 * time.Millisecond

// ReadyFunc receives a file once it stopped changing for the settle interval.
// It may block; returning an error means the file was not accepted and it is
// forgotten so a later scan can pick it up again.
type ReadyFunc func(ctx context.Context, file pipeline.CandidateFile) error

// Option configures a Watcher
type Option func(*Watcher)

// WithTracker sets the processed set consulted before tracking a file
func WithTracker(t dedupe.Tracker) Option {
	return func(w *Watcher) { w.tracker = t }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithLogf routes watcher diagnostics
func WithLogf(logf func(format string, args ...any)) Option {
	return func(w *Watcher) { w.logf = logf }
}

// WithNotifications enables the fsnotify fast path
func WithNotifications(enabled bool) Option {
	return func(w *Watcher) { w.notify = enabled }
}

// WithSuppressExisting records files present at Start as already processed
func WithSuppressExisting(enabled bool) Option {
	return func(w *Watcher) { w.suppressExisting = enabled }
}

// Watcher emits files from a folder once their size and modification time
// have been unchanged for the settle interval.
type Watcher struct {
	cfg              pipeline.WatchConfig
	dir              string
	tracker          dedupe.Tracker
	now              func() time.Time
	logf             func(format string, args ...any)
	notify           bool
	suppressExisting bool

	mu         sync.Mutex
	candidates map[string]*pipeline.CandidateFile
	ioFailing  bool
	lastScan   time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and creates a stopped watcher
func New(cfg pipeline.WatchConfig, opts ...Option) (*Watcher, error) {
	if cfg.SettleInterval <= 0 {
		return nil, fmt.Errorf("settle interval must be positive, got %s", cfg.SettleInterval)
	}
	if len(cfg.Extensions) == 0 {
		return nil, errors.New("at least one accepted extension is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch folder: %w", err)
	}

	w := &Watcher{
		cfg:        cfg,
		dir:        dir,
		now:        time.Now,
		logf:       log.Printf,
		notify:     true,
		candidates: make(map[string]*pipeline.CandidateFile),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tracker == nil {
		mem, err := dedupe.NewMemoryTracker(dedupe.DefaultSize)
		if err != nil {
			return nil, err
		}
		w.tracker = mem
	}
	return w, nil
}

// Dir returns the absolute watch folder
func (w *Watcher) Dir() string {
	return w.dir
}

// Start begins monitoring in a background goroutine
func (w *Watcher) Start(ctx context.Context, onReady ReadyFunc) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	if w.suppressExisting {
		if err := w.baseline(loopCtx); err != nil {
			w.logf("Watch folder baseline failed: %v", err)
		}
	}

	go w.loop(loopCtx, onReady)
	return nil
}

// Stop halts monitoring and releases all tracking state. It returns once the
// watch loop has exited; a ReadyFunc blocked on backpressure is cancelled.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	w.mu.Lock()
	w.candidates = make(map[string]*pipeline.CandidateFile)
	w.ioFailing = false
	w.mu.Unlock()
}

// Candidates returns a snapshot of the files still settling
func (w *Watcher) Candidates() []pipeline.CandidateFile {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]pipeline.CandidateFile, 0, len(w.candidates))
	for _, c := range w.candidates {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (w *Watcher) loop(ctx context.Context, onReady ReadyFunc) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var notifyErrs <-chan error
	if w.notify {
		if fw, err := fsnotify.NewWatcher(); err != nil {
			w.logf("Change notifications unavailable, polling only: %v", err)
		} else if err := fw.Add(w.dir); err != nil {
			w.logf("Change notifications unavailable for %s, polling only: %v", w.dir, err)
			fw.Close()
		} else {
			defer fw.Close()
			events, notifyErrs = fw.Events, fw.Errors
		}
	}

	w.scan(ctx, onReady)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx, onReady)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !w.cfg.Accepts(ev.Name) {
				continue
			}
			w.mu.Lock()
			recent := w.now().Sub(w.lastScan) < minEventScanGap
			w.mu.Unlock()
			if !recent {
				w.scan(ctx, onReady)
			}
		case err, ok := <-notifyErrs:
			if !ok {
				notifyErrs = nil
				continue
			}
			w.logf("Change notification error: %v", err)
		}
	}
}

// baseline records every accepted file currently present as processed
func (w *Watcher) baseline(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatchIO, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !w.cfg.Accepts(path) {
			continue
		}
		if _, err := w.tracker.Record(ctx, path); err != nil {
			return err
		}
		n++
	}
	if n > 0 {
		w.logf("Ignoring %d photo(s) already present in %s", n, w.dir)
	}
	return nil
}

// scan performs one observation tick
func (w *Watcher) scan(ctx context.Context, onReady ReadyFunc) error {
	ready, err := w.observe(ctx)
	if err != nil {
		return err
	}

	for i, c := range ready {
		if err := ctx.Err(); err != nil {
			w.skip(ready[i:], err)
			return err
		}
		if _, err := w.tracker.Record(ctx, c.Path); err != nil {
			w.logf("Failed to record %s as processed: %v", filepath.Base(c.Path), err)
		}
		if err := onReady(ctx, c); err != nil {
			// Not accepted; allow a later scan to track it again.
			_ = w.tracker.Forget(context.WithoutCancel(ctx), c.Path)
			w.skip(ready[i+1:], err)
			return err
		}
	}
	return nil
}

// skip reports settled files that were never handed to onReady
func (w *Watcher) skip(files []pipeline.CandidateFile, err error) {
	for _, c := range files {
		w.logf("Skipped %s: %v", filepath.Base(c.Path), err)
	}
}

// observe updates the candidate table and returns the files that became
// ready, removed from tracking, in stabilization order.
func (w *Watcher) observe(ctx context.Context) ([]pipeline.CandidateFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.lastScan = now

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !w.ioFailing {
			w.logf("Watch folder %s unavailable, retrying: %v", w.dir, err)
		}
		w.ioFailing = true
		return nil, fmt.Errorf("%w: %v", ErrWatchIO, err)
	}
	if w.ioFailing {
		w.logf("Watch folder %s available again", w.dir)
		w.ioFailing = false
	}

	present := make(map[string]struct{}, len(entries))
	var ready []pipeline.CandidateFile

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !w.cfg.Accepts(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// vanished between listing and stat
			continue
		}
		present[path] = struct{}{}

		c, tracked := w.candidates[path]
		if !tracked {
			seen, err := w.tracker.Seen(ctx, path)
			if err != nil {
				w.logf("Failed to check processed set for %s: %v", e.Name(), err)
				continue
			}
			if seen {
				continue
			}
			w.candidates[path] = &pipeline.CandidateFile{
				Path:        path,
				Size:        info.Size(),
				ModTime:     info.ModTime(),
				FirstSeen:   now,
				StableSince: now,
			}
			continue
		}

		if info.Size() == c.Size && info.ModTime().Equal(c.ModTime) {
			c.StableCount++
		} else {
			c.Size = info.Size()
			c.ModTime = info.ModTime()
			c.StableCount = 0
			c.StableSince = now
		}

		if c.StableCount > 0 && now.Sub(c.StableSince) >= w.cfg.SettleInterval {
			ready = append(ready, *c)
		}
	}

	for path := range w.candidates {
		if _, ok := present[path]; !ok {
			delete(w.candidates, path)
		}
	}
	for _, c := range ready {
		delete(w.candidates, c.Path)
	}
	if p, ok := w.tracker.(dedupe.Pruner); ok {
		p.Prune(func(path string) bool {
			_, ok := present[path]
			return ok
		})
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if !ready[i].StableSince.Equal(ready[j].StableSince) {
			return ready[i].StableSince.Before(ready[j].StableSince)
		}
		return ready[i].Path < ready[j].Path
	})
	return ready, nil
}
