package runner

import (
	"context"
	"net/http"
	"time"

	"github.com/tendant/simple-photo-pipeline/internal/config"
	"github.com/tendant/simple-photo-pipeline/internal/coordinator"
	"github.com/tendant/simple-photo-pipeline/internal/handlers"
	"github.com/tendant/simple-photo-pipeline/internal/metrics"
	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// Config holds the settings an embedding application supplies. Zero values
// fall back to the defaults used by the photobooth command.
type Config struct {
	WatchFolder    string
	TemplatePath   string
	OutputFolder   string
	PrintEnabled   bool
	PrinterName    string // "" or "default" for the system default
	Copies         int
	Position       string // center, top-left, ..., or "x,y"
	Opacity        int    // percent
	SettleInterval time.Duration

	// StatusSink receives one line per pipeline event; defaults to the log
	StatusSink pipeline.StatusSink
}

func (c Config) resolve() (config.Config, error) {
	cfg := config.Default()
	if c.WatchFolder != "" {
		cfg.WatchFolder = c.WatchFolder
	}
	if c.TemplatePath != "" {
		cfg.TemplatePath = c.TemplatePath
	}
	if c.OutputFolder != "" {
		cfg.OutputFolder = c.OutputFolder
	}
	cfg.PrintEnabled = c.PrintEnabled
	if c.PrinterName != "" {
		cfg.PrinterName = c.PrinterName
	}
	if c.Copies != 0 {
		cfg.Copies = c.Copies
	}
	if c.Position != "" {
		cfg.Position = c.Position
	}
	if c.Opacity != 0 {
		cfg.Opacity = c.Opacity
	}
	if c.SettleInterval != 0 {
		cfg.SettleInterval = c.SettleInterval
	}
	return cfg, cfg.Validate()
}

// Runner is an embeddable photo pipeline
type Runner struct {
	coord   *coordinator.Coordinator
	metrics *metrics.Metrics
}

// New creates a stopped pipeline. Invalid settings are reported here.
func New(cfg Config) (*Runner, error) {
	resolved, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	var spooler printing.Spooler
	if cups := printing.NewCUPSSpooler(); cups.Available() {
		spooler = cups
	}

	m := metrics.New()
	opts := []coordinator.Option{
		coordinator.WithSpooler(spooler),
		coordinator.WithMetrics(m),
	}
	if cfg.StatusSink != nil {
		opts = append(opts, coordinator.WithStatusSink(cfg.StatusSink))
	}

	return &Runner{
		coord:   coordinator.New(resolved, opts...),
		metrics: m,
	}, nil
}

// Start begins watching for photos
func (r *Runner) Start(ctx context.Context) error {
	return r.coord.Start(ctx)
}

// Stop stops watching once queued photos are processed
func (r *Runner) Stop(ctx context.Context) error {
	return r.coord.Stop(ctx)
}

// State returns the pipeline state
func (r *Runner) State() pipeline.PipelineState {
	return r.coord.State()
}

// Printers lists printer destinations, the default label first
func (r *Runner) Printers(ctx context.Context) []string {
	return r.coord.Printers(ctx)
}

// Events returns status lines newer than since
func (r *Runner) Events(since int64) []pipeline.StatusEvent {
	return r.coord.Events(since)
}

// Handler serves the control API and metrics for this pipeline
func (r *Runner) Handler() http.Handler {
	return handlers.NewRouter(r.coord, r.metrics.Handler())
}

// Shutdown gracefully shuts down the pipeline runner
func (r *Runner) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.coord.Close(ctx)
}
