package workflows

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-photo-pipeline/internal/compositor"
	"github.com/tendant/simple-photo-pipeline/internal/metrics"
	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/internal/printing/printtest"
	"github.com/tendant/simple-photo-pipeline/internal/storage"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

var fixedTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) sink(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, msg)
}

func (l *lines) matching(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.all {
		if strings.HasPrefix(m, prefix) {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	dir      string
	photo    string
	template string
	out      *storage.FilesystemStorage
	spooler  *printtest.Spooler
	metrics  *metrics.Metrics
	status   *lines
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	src := imaging.New(64, 48, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
	photo := filepath.Join(dir, "photo1.jpg")
	require.NoError(t, imaging.Save(src, photo))

	tpl := imaging.New(16, 16, color.NRGBA{R: 255, G: 215, B: 0, A: 200})
	template := filepath.Join(dir, "overlay.png")
	require.NoError(t, imaging.Save(tpl, template))

	out, err := storage.NewFilesystemStorage(filepath.Join(dir, "processed"))
	require.NoError(t, err)

	return &fixture{
		dir:      dir,
		photo:    photo,
		template: template,
		out:      out,
		spooler:  printtest.New("Kiosk_Printer"),
		metrics:  metrics.New(),
		status:   &lines{},
	}
}

func (f *fixture) workflow(settings PhotoSettings) *PhotoWorkflow {
	settings.Template.Path = f.template
	return NewPhotoWorkflow(
		compositor.New(),
		printing.NewDispatcher(f.spooler),
		f.out,
		settings,
		f.status.sink,
		f.metrics,
	).WithClock(func() time.Time { return fixedTime })
}

func (f *fixture) run(t *testing.T, w *PhotoWorkflow) (*WorkflowResult, error) {
	t.Helper()
	return w.Execute(&WorkflowContext{
		Ctx:   context.Background(),
		File:  pipeline.CandidateFile{Path: f.photo},
		RunID: "run-1",
	})
}

func TestPhotoWorkflow_CompositesAndPrints(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(PhotoSettings{
		Template:     pipeline.TemplateSpec{Anchor: pipeline.Anchor{Kind: pipeline.AnchorCenter}, Opacity: 80},
		PrintEnabled: true,
		Destination:  "Kiosk_Printer",
		Copies:       2,
	})

	result, err := f.run(t, w)
	require.NoError(t, err)

	want := filepath.Join(f.out.BaseDir(), "photo1_20260314_150926.jpg")
	assert.True(t, result.Photo.Success)
	assert.Equal(t, want, result.Photo.OutputPath)
	assert.Equal(t, "run-1", result.Photo.RunID)
	assert.Equal(t, fixedTime, result.Photo.Timestamp)
	assert.FileExists(t, want)

	require.NotNil(t, result.Job)
	assert.Equal(t, pipeline.PrintJob{Destination: "Kiosk_Printer", Path: want, Copies: 2}, *result.Job)
	assert.NotEmpty(t, result.PrintJobID)
	assert.NoError(t, result.PrintError)
	assert.Equal(t, []pipeline.PrintJob{*result.Job}, f.spooler.Jobs())

	assert.Equal(t, []string{"Processing: photo1.jpg"}, f.status.matching("Processing:"))
	assert.Equal(t, []string{"Saved to: " + want}, f.status.matching("Saved to:"))
	assert.Equal(t, []string{"Print job sent for: photo1.jpg (2 copies)"}, f.status.matching("Print job sent"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PhotosProcessed.WithLabelValues(metrics.ResultSuccess, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PrintJobs.WithLabelValues(metrics.ResultSuccess, "")))
}

func TestPhotoWorkflow_PrintingDisabled(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(PhotoSettings{Template: pipeline.TemplateSpec{Opacity: 100}, Copies: 1})

	result, err := f.run(t, w)
	require.NoError(t, err)

	assert.True(t, result.Photo.Success)
	assert.FileExists(t, result.Photo.OutputPath)
	assert.Nil(t, result.Job)
	assert.Zero(t, f.spooler.SubmitCalls())
	assert.Empty(t, f.status.matching("Print"))
}

func TestPhotoWorkflow_UnknownDestinationKeepsOutput(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(PhotoSettings{
		Template:     pipeline.TemplateSpec{Opacity: 100},
		PrintEnabled: true,
		Destination:  "Nope",
		Copies:       1,
	})

	result, err := f.run(t, w)
	require.NoError(t, err, "print errors do not fail the workflow")

	kind, ok := printing.KindOf(result.PrintError)
	require.True(t, ok)
	assert.Equal(t, printing.NoSuchDestination, kind)
	assert.True(t, result.Photo.Success)
	assert.FileExists(t, result.Photo.OutputPath)

	failed := f.status.matching("Print failed for photo1.jpg")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], "NoSuchDestination")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PrintJobs.WithLabelValues(metrics.ResultFailure, "NoSuchDestination")))
}

func TestPhotoWorkflow_DecodeFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.photo, []byte("not a jpeg"), 0o644))
	w := f.workflow(PhotoSettings{Template: pipeline.TemplateSpec{Opacity: 100}, PrintEnabled: true, Copies: 1})

	result, err := f.run(t, w)
	require.Error(t, err)

	kind, ok := compositor.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, compositor.DecodeError, kind)
	assert.False(t, result.Photo.Success)
	assert.NotEmpty(t, result.Photo.Error)
	assert.Zero(t, f.spooler.SubmitCalls())

	failed := f.status.matching("Failed to process photo1.jpg")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], "DecodeError")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PhotosProcessed.WithLabelValues(metrics.ResultFailure, "DecodeError")))
}

func TestPhotoWorkflow_SourceVanished(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.photo))
	w := f.workflow(PhotoSettings{Template: pipeline.TemplateSpec{Opacity: 100}})

	_, err := f.run(t, w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMissing))
	assert.Len(t, f.status.matching("Failed to process photo1.jpg"), 1)
	assert.Empty(t, f.status.matching("Processing:"))
}

func TestPhotoWorkflow_CollidingOutputGetsSuffix(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(PhotoSettings{Template: pipeline.TemplateSpec{Opacity: 50}})

	first, err := f.run(t, w)
	require.NoError(t, err)
	second, err := f.run(t, w)
	require.NoError(t, err)

	assert.NotEqual(t, first.Photo.OutputPath, second.Photo.OutputPath)
	assert.FileExists(t, first.Photo.OutputPath)
	assert.FileExists(t, second.Photo.OutputPath)
}

// 1x1 lossless WebP
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestPhotoWorkflow_WebPOutputsDoNotCollide(t *testing.T) {
	f := newFixture(t)
	data, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)
	f.photo = filepath.Join(f.dir, "snap.webp")
	require.NoError(t, os.WriteFile(f.photo, data, 0o644))
	w := f.workflow(PhotoSettings{Template: pipeline.TemplateSpec{Opacity: 100}})

	first, err := f.run(t, w)
	require.NoError(t, err)
	second, err := f.run(t, w)
	require.NoError(t, err)

	assert.Equal(t, "snap_20260314_150926.png", filepath.Base(first.Photo.OutputPath))
	assert.Equal(t, "snap_20260314_150926_1.png", filepath.Base(second.Photo.OutputPath))
	entries, err := os.ReadDir(f.out.BaseDir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPhotoWorkflow_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(PhotoSettings{})

	_, err := w.Execute(nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = w.Execute(&WorkflowContext{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "PhotoWorkflow", w.Name())
}

func TestPhotoWorkflow_OutputMatchesTemplate(t *testing.T) {
	f := newFixture(t)
	w := f.workflow(PhotoSettings{Template: pipeline.TemplateSpec{Anchor: pipeline.Anchor{Kind: pipeline.AnchorTopLeft}, Opacity: 100}})

	result, err := f.run(t, w)
	require.NoError(t, err)

	out, err := imaging.Open(result.Photo.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), out.Bounds())

	// JPEG is lossy; the gold template must dominate the top-left corner.
	r, g, b, _ := out.At(2, 2).RGBA()
	assert.Greater(t, r>>8, uint32(150))
	assert.Greater(t, g>>8, uint32(120))
	assert.Less(t, b>>8, uint32(120))
}
