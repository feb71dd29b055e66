package compositor

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tendant/simple-photo-pipeline/internal/storage"
)

// Sample template geometry
const (
	SampleWidth       = 1920
	SampleHeight      = 1080
	sampleBorder      = 40
	sampleCorner      = 100
	sampleLabel       = "SAMPLE TEMPLATE"
	sampleLabelScale  = 3
	sampleLabelMargin = 60
)

var (
	sampleBorderColor = color.NRGBA{R: 255, G: 215, B: 0, A: 200}
	sampleCornerColor = color.NRGBA{R: 255, G: 215, B: 0, A: 255}
	sampleLabelColor  = color.NRGBA{R: 255, G: 255, B: 255, A: 180}
)

// SampleTemplate draws a transparent frame: a translucent gold border, solid
// corner triangles and a watermark in the bottom-right corner.
func SampleTemplate(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < sampleBorder || y < sampleBorder || x >= width-sampleBorder || y >= height-sampleBorder {
				img.SetNRGBA(x, y, sampleBorderColor)
			}
		}
	}

	for y := 0; y < sampleCorner && y < height; y++ {
		for x := 0; x+y < sampleCorner && x < width; x++ {
			img.SetNRGBA(x, y, sampleCornerColor)
			img.SetNRGBA(width-1-x, y, sampleCornerColor)
			img.SetNRGBA(x, height-1-y, sampleCornerColor)
			img.SetNRGBA(width-1-x, height-1-y, sampleCornerColor)
		}
	}

	drawLabel(img, sampleLabel, width-sampleLabelMargin, height-sampleLabelMargin)
	return img
}

// drawLabel writes text so that its bottom-right corner sits at (right, bottom)
func drawLabel(dst *image.NRGBA, text string, right, bottom int) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil()

	mask := image.NewAlpha(image.Rect(0, 0, w, face.Height))
	d.Dst = mask
	d.Src = image.Opaque
	d.Dot = fixed.P(0, face.Ascent)
	d.DrawString(text)

	scaled := imaging.Resize(mask, w*sampleLabelScale, face.Height*sampleLabelScale, imaging.NearestNeighbor)
	b := scaled.Bounds()
	x0, y0 := right-b.Dx(), bottom-b.Dy()

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			a := scaled.NRGBAAt(x, y).A
			if a == 0 {
				continue
			}
			c := sampleLabelColor
			c.A = uint8(int(c.A) * int(a) / 255)
			dst.SetNRGBA(x0+x, y0+y, c)
		}
	}
}

// WriteSampleTemplate saves a full-size sample template as PNG
func WriteSampleTemplate(path string) error {
	img := SampleTemplate(SampleWidth, SampleHeight)
	return storage.WriteFileAtomic(path, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	})
}
