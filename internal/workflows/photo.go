package workflows

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/simple-photo-pipeline/internal/compositor"
	"github.com/tendant/simple-photo-pipeline/internal/metrics"
	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// Compositor applies the overlay template to a photo
type Compositor interface {
	ApplyOverlay(ctx context.Context, sourcePath, outputPath string, overlay pipeline.TemplateSpec) (string, error)
	OutputExt(sourcePath string) string
}

// Printer submits a finished photo to a printer
type Printer interface {
	Submit(ctx context.Context, path, destination string, copies int) (string, error)
}

// OutputNamer picks the output path for a source photo
type OutputNamer interface {
	NextPath(ctx context.Context, sourcePath, ext string, ts time.Time) (string, error)
}

// PhotoSettings are the per-run values the workflow applies to every photo
type PhotoSettings struct {
	Template     pipeline.TemplateSpec
	PrintEnabled bool
	Destination  string
	Copies       int
}

// PhotoWorkflow composites the template onto a photo, saves it to the
// output folder and optionally prints it.
type PhotoWorkflow struct {
	compositor Compositor
	printer    Printer
	output     OutputNamer
	settings   PhotoSettings
	status     pipeline.StatusSink
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewPhotoWorkflow creates a new photo workflow. status receives one line per
// stage; m may be nil.
func NewPhotoWorkflow(c Compositor, p Printer, output OutputNamer, settings PhotoSettings, status pipeline.StatusSink, m *metrics.Metrics) *PhotoWorkflow {
	if status == nil {
		status = func(string) {}
	}
	return &PhotoWorkflow{
		compositor: c,
		printer:    p,
		output:     output,
		settings:   settings,
		status:     status,
		metrics:    m,
		now:        time.Now,
	}
}

// WithClock replaces time.Now for output naming and timestamps
func (w *PhotoWorkflow) WithClock(now func() time.Time) *PhotoWorkflow {
	w.now = now
	return w
}

// Name returns the workflow name
func (w *PhotoWorkflow) Name() string {
	return "PhotoWorkflow"
}

// Execute runs the photo workflow. Per-photo failures are reported in the
// result and through the status sink; the returned error mirrors the
// compositing failure, if any.
func (w *PhotoWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	if wctx == nil || wctx.File.Path == "" {
		return nil, ErrInvalidRequest
	}
	ctx := wctx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	name := filepath.Base(wctx.File.Path)
	log.Printf("[%s] Starting photo workflow for %s", wctx.RunID, name)

	result := &WorkflowResult{
		Photo: pipeline.ProcessedPhoto{
			RunID:      wctx.RunID,
			SourcePath: wctx.File.Path,
		},
	}
	fail := func(err error) (*WorkflowResult, error) {
		kind := "Error"
		if k, ok := compositor.KindOf(err); ok {
			kind = string(k)
		}
		result.Photo.Timestamp = w.now()
		result.Photo.Error = err.Error()
		log.Printf("[%s] Photo workflow failed: %v", wctx.RunID, err)
		w.status(fmt.Sprintf("Failed to process %s: %v", name, err))
		if w.metrics != nil {
			w.metrics.Processed(kind)
		}
		return result, err
	}

	// Step 1: Make sure the photo is still there
	if _, err := os.Stat(wctx.File.Path); err != nil {
		return fail(&compositor.Error{Kind: compositor.DecodeError, Path: wctx.File.Path, Err: fmt.Errorf("%w: %v", ErrSourceMissing, err)})
	}

	w.status(fmt.Sprintf("Processing: %s", name))

	// Step 2: Pick the output path
	outputPath, err := w.output.NextPath(ctx, wctx.File.Path, w.compositor.OutputExt(wctx.File.Path), w.now())
	if err != nil {
		return fail(&compositor.Error{Kind: compositor.EncodeError, Path: wctx.File.Path, Err: err})
	}
	log.Printf("[%s] Output path: %s", wctx.RunID, outputPath)

	// Step 3: Composite and write
	started := time.Now()
	written, err := w.compositor.ApplyOverlay(ctx, wctx.File.Path, outputPath, w.settings.Template)
	if w.metrics != nil {
		w.metrics.CompositeDuration.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return fail(err)
	}

	result.Photo.OutputPath = written
	result.Photo.Success = true
	result.Photo.Timestamp = w.now()
	if w.metrics != nil {
		w.metrics.Processed("")
	}
	log.Printf("[%s] Overlay applied in %s", wctx.RunID, time.Since(started).Round(time.Millisecond))
	w.status(fmt.Sprintf("Saved to: %s", written))

	// Step 4: Print
	if !w.settings.PrintEnabled {
		log.Printf("[%s] Printing disabled - skipping", wctx.RunID)
		return result, nil
	}

	job := &pipeline.PrintJob{
		Destination: w.settings.Destination,
		Path:        written,
		Copies:      w.settings.Copies,
	}
	result.Job = job
	w.status(fmt.Sprintf("Sending to printer %s...", pipeline.DestinationLabel(job.Destination)))

	jobID, err := w.printer.Submit(ctx, job.Path, job.Destination, job.Copies)
	if err != nil {
		kind := "Error"
		if k, ok := printing.KindOf(err); ok {
			kind = string(k)
		}
		result.PrintError = err
		log.Printf("[%s] Print submission failed: %v", wctx.RunID, err)
		w.status(fmt.Sprintf("Print failed for %s: %v", name, err))
		if w.metrics != nil {
			w.metrics.Printed(kind)
		}
		return result, nil
	}

	result.PrintJobID = jobID
	if w.metrics != nil {
		w.metrics.Printed("")
	}
	log.Printf("[%s] Print job accepted: %s", wctx.RunID, jobID)
	w.status(fmt.Sprintf("Print job sent for: %s (%d cop%s)", name, job.Copies, plural(job.Copies)))

	return result, nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
