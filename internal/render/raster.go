// Package render folds board events into images.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"io"

	"github.com/fogleman/gg"

	"github.com/shared-canvas/backend/internal/model"
)

// Renderer is the drawing surface driven by the sync agent. Reset wipes it
// to an empty canvas; Apply draws one event on top of what is there.
type Renderer interface {
	Reset()
	Apply(ev model.BoardEvent)
}

// Raster is the reference Renderer backed by an in-memory RGBA image.
type Raster struct {
	width  int
	height int
	dc     *gg.Context
}

// NewRaster creates an empty raster of the given size.
func NewRaster(width, height int) *Raster {
	r := &Raster{width: width, height: height}
	r.Reset()
	return r
}

// Render folds events over an empty canvas.
func Render(width, height int, events []model.BoardEvent) *Raster {
	r := NewRaster(width, height)
	for _, ev := range events {
		r.Apply(ev)
	}
	return r
}

// Reset replaces the canvas with a blank white one.
func (r *Raster) Reset() {
	r.dc = gg.NewContext(r.width, r.height)
	r.dc.SetRGB(1, 1, 1)
	r.dc.Clear()
}

// Resize changes the canvas size and resets it.
func (r *Raster) Resize(width, height int) {
	r.width = width
	r.height = height
	r.Reset()
}

// Apply draws a stroke segment or wipes the canvas on a clear.
func (r *Raster) Apply(ev model.BoardEvent) {
	if ev.IsClear() {
		r.Reset()
		return
	}
	seg := ev.StrokeSegment
	if seg == nil {
		return
	}

	r.dc.SetHexColor(seg.Color)
	r.dc.SetLineWidth(seg.Width)
	r.dc.SetLineCapRound()
	r.dc.DrawLine(seg.X1, seg.Y1, seg.X2, seg.Y2)
	r.dc.Stroke()
}

// Size returns the canvas size in pixels.
func (r *Raster) Size() (int, int) {
	return r.width, r.height
}

// Image returns the current canvas.
func (r *Raster) Image() image.Image {
	return r.dc.Image()
}

// EncodePNG writes the canvas as PNG.
func (r *Raster) EncodePNG(w io.Writer) error {
	return r.dc.EncodePNG(w)
}

// SavePNG writes the canvas to a PNG file.
func (r *Raster) SavePNG(path string) error {
	return r.dc.SavePNG(path)
}

// Fingerprint hashes the pixels. Two rasters with the same fingerprint look
// identical.
func (r *Raster) Fingerprint() string {
	img, ok := r.dc.Image().(*image.RGBA)
	if !ok {
		return ""
	}
	sum := sha256.Sum256(img.Pix)
	return hex.EncodeToString(sum[:])
}
