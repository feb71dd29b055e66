package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

var (
	srcColor = color.NRGBA{R: 10, G: 20, B: 30, A: 255}
	tplColor = color.NRGBA{R: 210, G: 120, B: 50, A: 255}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func save(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func load(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := imaging.Open(path)
	require.NoError(t, err)
	return imaging.Clone(img)
}

func TestPosition(t *testing.T) {
	src := image.Rect(0, 0, 100, 80)
	tpl := image.Rect(0, 0, 20, 10)

	tests := []struct {
		anchor pipeline.Anchor
		want   image.Point
	}{
		{pipeline.Anchor{Kind: pipeline.AnchorCenter}, image.Pt(40, 35)},
		{pipeline.Anchor{Kind: pipeline.AnchorTopLeft}, image.Pt(0, 0)},
		{pipeline.Anchor{Kind: pipeline.AnchorTopRight}, image.Pt(80, 0)},
		{pipeline.Anchor{Kind: pipeline.AnchorBottomLeft}, image.Pt(0, 70)},
		{pipeline.Anchor{Kind: pipeline.AnchorBottomRight}, image.Pt(80, 70)},
		{pipeline.Anchor{Kind: pipeline.AnchorOffset, X: 7, Y: 9}, image.Pt(7, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.anchor.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Position(src, tpl, tt.anchor))
		})
	}
}

func TestPosition_LargerTemplateCentersNegative(t *testing.T) {
	p := Position(image.Rect(0, 0, 10, 10), image.Rect(0, 0, 30, 20), pipeline.Anchor{Kind: pipeline.AnchorCenter})
	assert.Equal(t, image.Pt(-10, -5), p)
}

func TestBlend_OpacityZeroLeavesSourceUnchanged(t *testing.T) {
	src := solid(8, 8, srcColor)
	out := Blend(src, solid(4, 4, tplColor), image.Pt(2, 2), 0)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestBlend_OpacityFullAppliesTemplateAlpha(t *testing.T) {
	src := solid(8, 8, srcColor)
	out := Blend(src, solid(4, 4, tplColor), image.Pt(2, 2), 100)

	assert.Equal(t, tplColor, out.NRGBAAt(3, 3), "opaque template pixel replaces source")
	assert.Equal(t, srcColor, out.NRGBAAt(0, 0), "outside template untouched")
	assert.Equal(t, srcColor, out.NRGBAAt(6, 6), "template covers [2,6)")
}

func TestBlend_HalfOpacity(t *testing.T) {
	src := solid(4, 4, color.NRGBA{R: 0, G: 100, B: 200, A: 255})
	tpl := solid(4, 4, color.NRGBA{R: 200, G: 200, B: 0, A: 255})
	out := Blend(src, tpl, image.Pt(0, 0), 50)

	got := out.NRGBAAt(1, 1)
	assert.InDelta(t, 100, int(got.R), 1)
	assert.InDelta(t, 150, int(got.G), 1)
	assert.InDelta(t, 100, int(got.B), 1)
	assert.Equal(t, uint8(255), got.A)
}

func TestBlend_RespectsTemplateAlphaBeforeOpacity(t *testing.T) {
	src := solid(2, 2, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	tpl := solid(2, 2, color.NRGBA{R: 200, G: 200, B: 200, A: 102}) // alpha 0.4
	out := Blend(src, tpl, image.Pt(0, 0), 50)

	// 200 * (0.4 * 0.5) + 0 * (1 - 0.2) = 40
	assert.InDelta(t, 40, int(out.NRGBAAt(0, 0).R), 1)
}

func TestBlend_TransparentTemplatePixelsKeepSource(t *testing.T) {
	src := solid(2, 2, srcColor)
	tpl := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	out := Blend(src, tpl, image.Pt(0, 0), 100)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestBlend_ClipsTemplateToSource(t *testing.T) {
	src := solid(4, 4, srcColor)
	out := Blend(src, solid(10, 10, tplColor), image.Pt(-3, -3), 100)

	assert.Equal(t, src.Bounds(), out.Bounds(), "no scaling or growth")
	assert.Equal(t, tplColor, out.NRGBAAt(0, 0))
	assert.Equal(t, tplColor, out.NRGBAAt(3, 3))
}

func TestApplyOverlay_PNG(t *testing.T) {
	dir := t.TempDir()
	src := save(t, dir, "photo.png", solid(40, 30, srcColor))
	tpl := save(t, dir, "frame.png", solid(10, 10, tplColor))
	out := filepath.Join(dir, "out", "photo_20261014_090000.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))

	c := New()
	written, err := c.ApplyOverlay(context.Background(), src, out, pipeline.TemplateSpec{
		Path:    tpl,
		Anchor:  pipeline.Anchor{Kind: pipeline.AnchorBottomRight},
		Opacity: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, out, written)

	img := load(t, written)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
	assert.Equal(t, tplColor, img.NRGBAAt(39, 29))
	assert.Equal(t, tplColor, img.NRGBAAt(30, 20))
	assert.Equal(t, srcColor, img.NRGBAAt(29, 19))
	assert.Equal(t, srcColor, img.NRGBAAt(0, 0))
}

func TestApplyOverlay_IdempotentJPEG(t *testing.T) {
	dir := t.TempDir()
	src := save(t, dir, "photo.jpg", solid(64, 48, srcColor))
	tpl := save(t, dir, "frame.png", solid(16, 16, tplColor))
	overlay := pipeline.TemplateSpec{Path: tpl, Anchor: pipeline.Anchor{Kind: pipeline.AnchorCenter}, Opacity: 80}

	c := New()
	a, err := c.ApplyOverlay(context.Background(), src, filepath.Join(dir, "a.jpg"), overlay)
	require.NoError(t, err)
	b, err := c.ApplyOverlay(context.Background(), src, filepath.Join(dir, "b.jpg"), overlay)
	require.NoError(t, err)

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(da, db), "same inputs produce byte-identical output")

	format, err := imaging.FormatFromFilename(a)
	require.NoError(t, err)
	assert.Equal(t, imaging.JPEG, format)
}

func TestApplyOverlay_UndecodableSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not really a jpeg"), 0o644))
	tpl := save(t, dir, "frame.png", solid(4, 4, tplColor))

	_, err := New().ApplyOverlay(context.Background(), src, filepath.Join(dir, "out.jpg"), pipeline.TemplateSpec{Path: tpl, Opacity: 100})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, DecodeError, kind)
	assert.NoFileExists(t, filepath.Join(dir, "out.jpg"))
}

func TestApplyOverlay_TemplateWithoutAlpha(t *testing.T) {
	dir := t.TempDir()
	src := save(t, dir, "photo.png", solid(8, 8, srcColor))
	tpl := save(t, dir, "frame.jpg", solid(4, 4, tplColor))

	_, err := New().ApplyOverlay(context.Background(), src, filepath.Join(dir, "out.png"), pipeline.TemplateSpec{Path: tpl, Opacity: 100})
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, DecodeError, kind)
	assert.True(t, errors.Is(err, errNoAlpha))
}

func TestApplyOverlay_MissingTemplate(t *testing.T) {
	dir := t.TempDir()
	src := save(t, dir, "photo.png", solid(8, 8, srcColor))

	_, err := New().ApplyOverlay(context.Background(), src, filepath.Join(dir, "out.png"), pipeline.TemplateSpec{Path: filepath.Join(dir, "none.png")})
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, DecodeError, kind)
}

func TestApplyOverlay_UnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	src := save(t, dir, "photo.png", solid(8, 8, srcColor))
	tpl := save(t, dir, "frame.png", solid(4, 4, tplColor))

	_, err := New().ApplyOverlay(context.Background(), src, filepath.Join(dir, "missing-dir", "out.png"), pipeline.TemplateSpec{Path: tpl, Opacity: 100})
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, EncodeError, kind)
}

func TestLoadTemplate_CacheInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	tpl := save(t, dir, "frame.png", solid(4, 4, tplColor))
	c := New()

	first, err := c.LoadTemplate(tpl)
	require.NoError(t, err)
	again, err := c.LoadTemplate(tpl)
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged template served from cache")

	save(t, dir, "frame.png", solid(6, 6, tplColor))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(tpl, future, future))

	updated, err := c.LoadTemplate(tpl)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Bounds().Dx())
}

func TestOutputExt(t *testing.T) {
	assert.Equal(t, ".jpg", OutputExt("/watch/a.jpg"))
	assert.Equal(t, ".PNG", OutputExt("/watch/b.PNG"))
	assert.Equal(t, ".png", OutputExt("/watch/c.webp"), "no WebP encoder")
}

func TestErrorFormatting(t *testing.T) {
	err := newError(GeometryError, "/in/x.png", errors.New("zero area"))
	assert.Equal(t, "GeometryError: x.png: zero area", err.Error())
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
