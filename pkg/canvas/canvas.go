// Package canvas is the shared drawing surface frames are sampled into and
// overlays are painted on.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultFontSize is the label font size in points.
const DefaultFontSize = 14

// ErrEmpty is returned when encoding a canvas that holds no frame.
var ErrEmpty = errors.New("canvas: empty")

var (
	fontOnce sync.Once
	goFont   *truetype.Font
	fontErr  error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		goFont, fontErr = truetype.Parse(goregular.TTF)
	})
	return goFont, fontErr
}

// Canvas is an RGBA surface guarded by a mutex. Sample and Paint hold the
// lock for their whole duration, so readers never observe a frame that is
// half sampled or half painted.
type Canvas struct {
	mu   sync.RWMutex
	img  *image.RGBA
	face font.Face
}

// New returns an empty canvas whose labels use the Go Regular font at
// fontSize points. A non-positive size uses DefaultFontSize.
func New(fontSize float64) (*Canvas, error) {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	f, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Canvas{
		img:  image.NewRGBA(image.Rect(0, 0, 0, 0)),
		face: truetype.NewFace(f, &truetype.Options{Size: fontSize, DPI: 72}),
	}, nil
}

// Sample resizes the canvas to src's native size, copies src onto it and
// returns a private copy of the sampled frame.
func (c *Canvas) Sample(src image.Image) *image.RGBA {
	b := src.Bounds()
	size := image.Rect(0, 0, b.Dx(), b.Dy())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.img.Rect != size {
		c.img = image.NewRGBA(size)
	}
	draw.Draw(c.img, size, src, b.Min, draw.Src)
	return cloneRGBA(c.img)
}

// Paint runs fn with exclusive access to the canvas.
func (c *Canvas) Paint(fn func(*Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(&Context{img: c.img, dc: gg.NewContextForRGBA(c.img), face: c.face})
}

// Bounds returns the current canvas size.
func (c *Canvas) Bounds() image.Rectangle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.img.Rect
}

// Snapshot returns a copy of the canvas.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneRGBA(c.img)
}

// EncodeJPEG writes the canvas to w. Returns ErrEmpty before anything has
// been sampled.
func (c *Canvas) EncodeJPEG(w io.Writer, quality int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.img.Rect.Empty() {
		return ErrEmpty
	}
	return imaging.Encode(w, c.img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}

// Context draws on a locked canvas. It is only valid inside Paint.
type Context struct {
	img  *image.RGBA
	dc   *gg.Context
	face font.Face
}

// Size returns the width and height of the surface.
func (c *Context) Size() (int, int) {
	return c.img.Rect.Dx(), c.img.Rect.Dy()
}

// Clear resets every pixel to transparent black.
func (c *Context) Clear() {
	draw.Draw(c.img, c.img.Rect, image.Transparent, image.Point{}, draw.Src)
}

// DrawImage draws img over the whole surface, scaling it if its size differs.
func (c *Context) DrawImage(img image.Image) {
	b := img.Bounds()
	if b.Dx() != c.img.Rect.Dx() || b.Dy() != c.img.Rect.Dy() {
		img = imaging.Resize(img, c.img.Rect.Dx(), c.img.Rect.Dy(), imaging.Linear)
		b = img.Bounds()
	}
	draw.Draw(c.img, c.img.Rect, img, b.Min, draw.Src)
}

// StrokeRect outlines a rectangle with the given line width.
func (c *Context) StrokeRect(x, y, w, h float64, col color.Color, lineWidth float64) {
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.SetColor(col)
	c.dc.SetLineWidth(lineWidth)
	c.dc.Stroke()
}

// FillRect fills a rectangle.
func (c *Context) FillRect(x, y, w, h float64, col color.Color) {
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.SetColor(col)
	c.dc.Fill()
}

// MeasureText returns the advance width of s in the label font.
func (c *Context) MeasureText(s string) float64 {
	c.dc.SetFontFace(c.face)
	w, _ := c.dc.MeasureString(s)
	return w
}

// FillText draws s with its baseline starting at (x, y).
func (c *Context) FillText(s string, x, y float64, col color.Color) {
	c.dc.SetFontFace(c.face)
	c.dc.SetColor(col)
	c.dc.DrawString(s, x, y)
}
