// Package coordinator owns the photo pipeline lifecycle: it wires the
// stability watcher to the serial processing worker, drives the
// Stopped → Starting → Running → Stopping state machine and turns every
// per-photo outcome into a status line.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-photo-pipeline/internal/compositor"
	"github.com/tendant/simple-photo-pipeline/internal/config"
	"github.com/tendant/simple-photo-pipeline/internal/dedupe"
	"github.com/tendant/simple-photo-pipeline/internal/executors"
	"github.com/tendant/simple-photo-pipeline/internal/metrics"
	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/internal/storage"
	"github.com/tendant/simple-photo-pipeline/internal/watcher"
	"github.com/tendant/simple-photo-pipeline/internal/workflows"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// ErrAlreadyRunning is returned by SetConfig unless the pipeline is stopped
var ErrAlreadyRunning = errors.New("pipeline already running")

// recentLimit bounds the processed photos kept for Status
const recentLimit = 20

const banner = "=================================================="

// Option configures a Coordinator
type Option func(*Coordinator)

// WithStatusSink receives every status line
func WithStatusSink(sink pipeline.StatusSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithSpooler sets the print subsystem; the default prints nothing
func WithSpooler(s printing.Spooler) Option {
	return func(c *Coordinator) { c.spooler = s }
}

// WithTracker replaces the processed set built from the configuration
func WithTracker(t dedupe.Tracker) Option {
	return func(c *Coordinator) { c.tracker = t }
}

// WithMetrics records pipeline metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces time.Now for output names and status timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithEventCapacity sets how many status lines are kept for Events
func WithEventCapacity(n int) Option {
	return func(c *Coordinator) { c.events = NewEventBus(n) }
}

// Status is a snapshot for the settings collaborator
type Status struct {
	State      pipeline.PipelineState    `json:"state"`
	Config     config.Config             `json:"config"`
	QueueDepth int                       `json:"queue_depth"`
	Settling   []pipeline.CandidateFile  `json:"settling"`
	Recent     []pipeline.ProcessedPhoto `json:"recent"`
	LastEvent  int64                     `json:"last_event"`
}

// Coordinator is one photo pipeline instance
type Coordinator struct {
	lifecycle sync.Mutex // serializes Start and Stop

	mu       sync.RWMutex
	state    pipeline.PipelineState
	cfg      config.Config
	tracker  dedupe.Tracker
	ledger   *dedupe.SQLTracker
	watcher  *watcher.Watcher
	executor *executors.SerialExecutor
	cancel   context.CancelFunc
	recent   []pipeline.ProcessedPhoto

	sink       pipeline.StatusSink
	spooler    printing.Spooler
	dispatcher *printing.Dispatcher
	metrics    *metrics.Metrics
	events     *EventBus
	now        func() time.Time
}

// New creates a stopped coordinator for cfg
func New(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		state:  pipeline.StateStopped,
		cfg:    cfg,
		sink:   func(msg string) { log.Print(msg) },
		events: NewEventBus(DefaultEventCapacity),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dispatcher = printing.NewDispatcher(c.spooler)
	return c
}

// State returns the current lifecycle state
func (c *Coordinator) State() pipeline.PipelineState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Config returns the live configuration
func (c *Coordinator) Config() config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig validates and replaces the configuration used by the next Start.
// It is rejected while the pipeline is not stopped.
func (c *Coordinator) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != pipeline.StateStopped {
		return ErrAlreadyRunning
	}
	c.cfg = cfg
	return nil
}

// Printers lists destinations with the default label first
func (c *Coordinator) Printers(ctx context.Context) []string {
	return append([]string{pipeline.DefaultDestinationLabel}, c.dispatcher.ListDestinations(ctx)...)
}

// Events returns status lines newer than seq
func (c *Coordinator) Events(since int64) []Event {
	return c.events.Since(since)
}

// Status returns a snapshot of the pipeline
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		State:     c.state,
		Config:    c.cfg,
		Recent:    append([]pipeline.ProcessedPhoto(nil), c.recent...),
		LastEvent: c.events.LastSeq(),
	}
	if c.executor != nil {
		s.QueueDepth = c.executor.Len()
	}
	if c.watcher != nil {
		s.Settling = c.watcher.Candidates()
	}
	return s
}

// Forget removes a photo from the processed set so it is picked up again if
// it is still in the watch folder. A bare file name is resolved against the
// watch folder.
func (c *Coordinator) Forget(ctx context.Context, path string) error {
	c.mu.RLock()
	tracker, dir := c.tracker, c.cfg.WatchFolder
	c.mu.RUnlock()

	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.Base(path) == path {
		path = filepath.Join(dir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if tracker == nil {
		return nil
	}
	if err := tracker.Forget(ctx, abs); err != nil {
		return err
	}
	c.emit(fmt.Sprintf("Queued for reprocessing: %s", filepath.Base(abs)))
	return nil
}

// Start validates the configuration, prepares folders and the template, and
// starts watching. Configuration problems are returned as *config.Error and
// leave the pipeline stopped. Starting a running pipeline only logs a notice.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() != pipeline.StateStopped {
		c.emit("Already running")
		return nil
	}

	cfg := c.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.setState(pipeline.StateStarting); err != nil {
		return err
	}

	w, exec, err := c.prepare(ctx, cfg)
	if err != nil {
		_ = c.setState(pipeline.StateStopped)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	exec.Start(runCtx)

	c.mu.Lock()
	c.cfg = cfg
	c.watcher, c.executor, c.cancel = w, exec, cancel
	c.mu.Unlock()
	_ = c.setState(pipeline.StateRunning)

	c.emit(banner)
	c.emit("Photo Monitor Started")
	c.emit(banner)
	c.emit(fmt.Sprintf("Watch folder: %s", cfg.WatchFolder))
	c.emit(fmt.Sprintf("Template: %s", cfg.TemplatePath))
	if cfg.PrintEnabled {
		c.emit(fmt.Sprintf("Printing: Enabled (%s, %d cop%s)", pipeline.DestinationLabel(cfg.Destination()), cfg.Copies, plural(cfg.Copies)))
	} else {
		c.emit("Printing: Disabled")
	}

	if err := w.Start(runCtx, c.readyFunc(exec)); err != nil {
		cancel()
		_ = exec.Close(ctx)
		c.mu.Lock()
		c.watcher, c.executor, c.cancel = nil, nil, nil
		c.mu.Unlock()
		_ = c.setState(pipeline.StateStopping)
		_ = c.setState(pipeline.StateStopped)
		return err
	}

	c.emit("Waiting for new photos...")
	return nil
}

// prepare builds everything a run needs, failing with *config.Error
func (c *Coordinator) prepare(ctx context.Context, cfg config.Config) (*watcher.Watcher, *executors.SerialExecutor, error) {
	for _, dir := range []struct{ field, path string }{
		{"watch_folder", cfg.WatchFolder},
		{"output_folder", cfg.OutputFolder},
		{"template_path", filepath.Dir(cfg.TemplatePath)},
	} {
		if _, err := os.Stat(dir.path); err == nil {
			continue
		}
		if err := os.MkdirAll(dir.path, 0o755); err != nil {
			return nil, nil, &config.Error{Field: dir.field, Err: err}
		}
		c.emit(fmt.Sprintf("Created directory: %s", dir.path))
	}

	out, err := storage.NewFilesystemStorage(cfg.OutputFolder)
	if err != nil {
		return nil, nil, &config.Error{Field: "output_folder", Err: err}
	}

	comp := compositor.New(
		compositor.WithJPEGQuality(cfg.JPEGQuality),
		compositor.WithAutoOrientation(cfg.AutoOrient),
	)
	tpl, err := comp.LoadTemplate(cfg.TemplatePath)
	if err != nil {
		return nil, nil, &config.Error{Field: "template_path", Err: err}
	}
	log.Printf("✓ Template ready: %s (%dx%d)", cfg.TemplatePath, tpl.Bounds().Dx(), tpl.Bounds().Dy())

	tracker, err := c.ensureTracker(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	wf := workflows.NewPhotoWorkflow(comp, c.dispatcher, out, workflows.PhotoSettings{
		Template:     cfg.Template(),
		PrintEnabled: cfg.PrintEnabled,
		Destination:  cfg.Destination(),
		Copies:       cfg.Copies,
	}, c.emit, c.metrics).WithClock(c.now)

	exec := executors.NewSerialExecutor(cfg.QueueSize, c.process(wf), func(n int) {
		if c.metrics != nil {
			c.metrics.QueueDepth.Set(float64(n))
		}
	})

	w, err := watcher.New(cfg.Watch(),
		watcher.WithTracker(tracker),
		watcher.WithNotifications(cfg.Notifications),
		watcher.WithSuppressExisting(!cfg.ProcessExisting),
	)
	if err != nil {
		return nil, nil, &config.Error{Field: "watch_folder", Err: err}
	}
	return w, exec, nil
}

// ensureTracker builds the processed set once; it outlives restarts so a
// stop/start cycle does not reprocess photos.
func (c *Coordinator) ensureTracker(ctx context.Context, cfg config.Config) (dedupe.Tracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker != nil {
		return c.tracker, nil
	}

	mem, err := dedupe.NewMemoryTracker(cfg.ProcessedSetSize)
	if err != nil {
		return nil, &config.Error{Field: "processed_set_size", Err: err}
	}
	if cfg.LedgerDriver == "" {
		c.tracker = mem
		return mem, nil
	}

	ledger, err := dedupe.Open(ctx, cfg.LedgerDriver, cfg.LedgerDSN)
	if err != nil {
		return nil, &config.Error{Field: "ledger_dsn", Err: err}
	}
	log.Printf("✓ Processed ledger connected (%s)", cfg.LedgerDriver)
	c.ledger = ledger
	c.tracker = dedupe.NewLayered(mem, ledger)
	return c.tracker, nil
}

// readyFunc hands settled photos to the worker queue, blocking while it is full
func (c *Coordinator) readyFunc(exec *executors.SerialExecutor) watcher.ReadyFunc {
	return func(ctx context.Context, file pipeline.CandidateFile) error {
		name := filepath.Base(file.Path)
		c.emit(fmt.Sprintf("Received: %s", name))
		if err := exec.Enqueue(ctx, file); err != nil {
			c.emit(fmt.Sprintf("Skipped %s: pipeline stopping", name))
			return err
		}
		if c.metrics != nil {
			c.metrics.PhotosReceived.Inc()
		}
		return nil
	}
}

// process runs the photo workflow for one queued photo
func (c *Coordinator) process(wf workflows.Workflow) executors.Handler {
	return func(ctx context.Context, file pipeline.CandidateFile) {
		runID := uuid.New().String()
		result, err := wf.Execute(&workflows.WorkflowContext{Ctx: ctx, File: file, RunID: runID})
		if result == nil {
			log.Printf("[%s] %s returned no result: %v", runID, wf.Name(), err)
			return
		}

		c.mu.Lock()
		c.recent = append(c.recent, result.Photo)
		if len(c.recent) > recentLimit {
			c.recent = append([]pipeline.ProcessedPhoto(nil), c.recent[len(c.recent)-recentLimit:]...)
		}
		c.mu.Unlock()
	}
}

// Stop stops watching and waits for queued and in-flight photos to finish,
// or ctx to expire. Stopping a pipeline that is not running is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() != pipeline.StateRunning {
		log.Printf("Stop ignored: pipeline %s", c.State())
		return nil
	}
	_ = c.setState(pipeline.StateStopping)

	c.mu.Lock()
	w, exec, cancel := c.watcher, c.executor, c.cancel
	c.mu.Unlock()

	w.Stop()
	err := exec.Close(ctx)
	cancel()
	if err != nil {
		log.Printf("Stop returned before the queue drained: %v", err)
	}

	c.mu.Lock()
	c.watcher, c.executor, c.cancel = nil, nil, nil
	c.mu.Unlock()
	_ = c.setState(pipeline.StateStopped)
	if c.metrics != nil {
		c.metrics.QueueDepth.Set(0)
	}

	c.emit("Photo Monitor Stopped")
	return err
}

// Close stops the pipeline and releases the processed ledger
func (c *Coordinator) Close(ctx context.Context) error {
	err := c.Stop(ctx)

	c.mu.Lock()
	ledger := c.ledger
	if ledger != nil {
		c.ledger, c.tracker = nil, nil
	}
	c.mu.Unlock()

	if ledger != nil {
		if cerr := ledger.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (c *Coordinator) setState(to pipeline.PipelineState) error {
	c.mu.Lock()
	from := c.state
	if err := validTransition(from, to); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = to
	c.mu.Unlock()

	log.Printf("Pipeline %s -> %s", from, to)
	if c.metrics != nil {
		c.metrics.SetState(to)
	}
	return nil
}

// emit publishes one status line to the history and the sink
func (c *Coordinator) emit(msg string) {
	c.events.Publish(c.now(), msg)
	c.sink(msg)
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
