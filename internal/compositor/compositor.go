package compositor

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder; WebP sources are re-encoded as PNG

	"github.com/tendant/simple-photo-pipeline/internal/storage"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// DefaultJPEGQuality is used for JPEG outputs unless overridden
const DefaultJPEGQuality = 95

// fallbackFormat is used when the source container cannot be re-encoded
const fallbackFormat = imaging.PNG

// Option configures a Compositor
type Option func(*Compositor)

// WithJPEGQuality sets the JPEG encoder quality (1-100)
func WithJPEGQuality(q int) Option {
	return func(c *Compositor) {
		if q >= 1 && q <= 100 {
			c.jpegQuality = q
		}
	}
}

// WithAutoOrientation rotates sources according to their EXIF orientation
func WithAutoOrientation(enabled bool) Option {
	return func(c *Compositor) { c.autoOrient = enabled }
}

// Compositor blends the overlay template onto photos
type Compositor struct {
	templates   *templateCache
	jpegQuality int
	autoOrient  bool
}

// New creates a compositor with an empty template cache
func New(opts ...Option) *Compositor {
	c := &Compositor{
		templates:   newTemplateCache(),
		jpegQuality: DefaultJPEGQuality,
		autoOrient:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadTemplate decodes the template into the cache, or returns the cached
// copy if the file has not changed.
func (c *Compositor) LoadTemplate(path string) (image.Image, error) {
	img, _, err := c.templates.get(path)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// OutputExt returns the extension the composite of sourcePath is written
// with: the source's own, or ".png" when its format has no encoder.
func OutputExt(sourcePath string) string {
	if _, err := imaging.FormatFromFilename(sourcePath); err != nil {
		return ".png"
	}
	return filepath.Ext(sourcePath)
}

// OutputExt implements the workflow's naming hook
func (c *Compositor) OutputExt(sourcePath string) string {
	return OutputExt(sourcePath)
}

// ApplyOverlay composites the overlay template onto sourcePath and writes the
// result to outputPath. It returns the path actually written, which differs
// from outputPath only when the source format has no encoder and the output
// falls back to PNG.
func (c *Compositor) ApplyOverlay(ctx context.Context, sourcePath, outputPath string, overlay pipeline.TemplateSpec) (string, error) {
	tpl, cached, err := c.templates.get(overlay.Path)
	if err != nil {
		return "", err
	}
	if !cached {
		log.Printf("Template loaded: %s (%dx%d)", overlay.Path, tpl.Bounds().Dx(), tpl.Bounds().Dy())
	}

	src, err := imaging.Open(sourcePath, imaging.AutoOrientation(c.autoOrient))
	if err != nil {
		return "", newError(DecodeError, sourcePath, err)
	}
	if src.Bounds().Empty() {
		return "", newError(GeometryError, sourcePath, fmt.Errorf("source has zero area"))
	}

	pos := Position(src.Bounds(), tpl.Bounds(), overlay.Anchor)
	result := Blend(src, tpl, pos, overlay.Opacity)

	format, err := imaging.FormatFromFilename(sourcePath)
	if err != nil {
		format = fallbackFormat
		outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + OutputExt(sourcePath)
	}

	err = storage.WriteFileAtomic(outputPath, func(w io.Writer) error {
		return imaging.Encode(w, result, format, imaging.JPEGQuality(c.jpegQuality))
	})
	if err != nil {
		return "", newError(EncodeError, outputPath, err)
	}

	return outputPath, nil
}

// Position returns where the template's top-left corner lands on the source
// for the given anchor. Results may be negative or exceed the source; the
// blend clips the template to the source bounds.
func Position(src, tpl image.Rectangle, anchor pipeline.Anchor) image.Point {
	sw, sh := src.Dx(), src.Dy()
	tw, th := tpl.Dx(), tpl.Dy()

	var p image.Point
	switch anchor.Kind {
	case pipeline.AnchorTopLeft:
		p = image.Pt(0, 0)
	case pipeline.AnchorTopRight:
		p = image.Pt(sw-tw, 0)
	case pipeline.AnchorBottomLeft:
		p = image.Pt(0, sh-th)
	case pipeline.AnchorBottomRight:
		p = image.Pt(sw-tw, sh-th)
	case pipeline.AnchorOffset:
		p = image.Pt(anchor.X, anchor.Y)
	default:
		p = image.Pt((sw-tw)/2, (sh-th)/2)
	}
	return p.Add(src.Min)
}

// Blend alpha-composites tpl over src at pos, scaling the template's
// per-pixel alpha by opacity percent. Opacity 0 returns an unmodified copy.
func Blend(src, tpl image.Image, pos image.Point, opacity int) *image.NRGBA {
	opacity = pipeline.ClampOpacity(opacity)
	if opacity == 0 {
		return imaging.Clone(src)
	}
	return imaging.Overlay(src, tpl, pos, float64(opacity)/100)
}
