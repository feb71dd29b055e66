package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// errNoAlpha marks templates decoded from formats without transparency
var errNoAlpha = errors.New("template has no alpha channel")

type cachedTemplate struct {
	modTime time.Time
	size    int64
	img     *image.NRGBA
}

// templateCache keeps decoded templates keyed by path and invalidated when
// the file's modification time or size changes. The processing worker is its
// only writer.
type templateCache struct {
	mu      sync.RWMutex
	entries map[string]cachedTemplate
}

func newTemplateCache() *templateCache {
	return &templateCache{entries: make(map[string]cachedTemplate)}
}

func (c *templateCache) get(path string) (*image.NRGBA, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, newError(DecodeError, path, err)
	}

	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.img, true, nil
	}

	img, err := decodeTemplate(path)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.entries[path] = cachedTemplate{modTime: info.ModTime(), size: info.Size(), img: img}
	c.mu.Unlock()
	return img, false, nil
}

func decodeTemplate(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, newError(DecodeError, path, err)
	}
	if img.Bounds().Empty() {
		return nil, newError(GeometryError, path, fmt.Errorf("template has zero area"))
	}
	if !hasAlpha(img) {
		return nil, newError(DecodeError, path, errNoAlpha)
	}
	return imaging.Clone(img), nil
}

// hasAlpha reports whether the decoded color model can carry transparency
func hasAlpha(img image.Image) bool {
	if p, ok := img.(*image.Paletted); ok {
		for _, c := range p.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	}
	switch img.ColorModel() {
	case color.NRGBAModel, color.RGBAModel, color.NRGBA64Model, color.RGBA64Model,
		color.AlphaModel, color.Alpha16Model:
		return true
	default:
		return false
	}
}
