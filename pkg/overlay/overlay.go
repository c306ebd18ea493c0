// Package overlay draws detection boxes and labels over a frame.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/teslashibe/go-detect/pkg/detection"
)

// Surface is the subset of a 2D drawing context the renderer needs.
// canvas.Context implements it.
type Surface interface {
	Clear()
	DrawImage(img image.Image)
	StrokeRect(x, y, w, h float64, col color.Color, lineWidth float64)
	FillRect(x, y, w, h float64, col color.Color)
	MeasureText(s string) float64
	FillText(s string, x, y float64, col color.Color)
}

// Style controls how boxes and labels look.
type Style struct {
	BoxColor    color.Color
	LineWidth   float64
	LabelColor  color.Color // label background
	TextColor   color.Color
	LabelHeight float64
	PaddingX    float64 // text inset from the box's left edge
	Baseline    float64 // text baseline offset above the box's top edge
}

// DefaultStyle is coral boxes with white labels on a coral band.
func DefaultStyle() Style {
	coral := color.RGBA{R: 0xFF, G: 0x6B, B: 0x6B, A: 0xFF}
	return Style{
		BoxColor:    coral,
		LineWidth:   3,
		LabelColor:  coral,
		TextColor:   color.White,
		LabelHeight: 20,
		PaddingX:    5,
		Baseline:    5,
	}
}

// Renderer paints detections onto a Surface.
type Renderer struct {
	Style Style
}

// NewRenderer returns a renderer using DefaultStyle.
func NewRenderer() *Renderer {
	return &Renderer{Style: DefaultStyle()}
}

// Label formats the text drawn above a detection box.
func Label(d detection.Detection) string {
	return fmt.Sprintf("%s (%d%%)", d.Label, d.Percent())
}

// Render clears s, redraws base, then draws each detection in list order.
// Later detections draw over earlier ones.
func (r *Renderer) Render(s Surface, base image.Image, dets []detection.Detection) {
	st := r.Style

	s.Clear()
	if base != nil {
		s.DrawImage(base)
	}

	for _, d := range dets {
		x, y := d.Box.X, d.Box.Y
		s.StrokeRect(x, y, d.Box.Width, d.Box.Height, st.BoxColor, st.LineWidth)

		text := Label(d)
		textWidth := s.MeasureText(text)
		s.FillRect(x, y-st.LabelHeight, textWidth+2*st.PaddingX, st.LabelHeight, st.LabelColor)
		s.FillText(text, x+st.PaddingX, y-st.Baseline, st.TextColor)
	}
}
