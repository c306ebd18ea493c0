package canvas

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newCanvas(t *testing.T) *Canvas {
	t.Helper()
	c, err := New(0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestSample_ResizesToSource(t *testing.T) {
	c := newCanvas(t)
	red := color.RGBA{R: 255, A: 255}

	frame := c.Sample(solid(40, 30, red))
	if frame.Rect.Dx() != 40 || frame.Rect.Dy() != 30 {
		t.Fatalf("frame size = %v, want 40x30", frame.Rect)
	}
	if c.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("canvas bounds = %v", c.Bounds())
	}
	if got := frame.RGBAAt(10, 10); got != red {
		t.Errorf("pixel = %v, want %v", got, red)
	}

	c.Sample(solid(8, 6, red))
	if c.Bounds() != image.Rect(0, 0, 8, 6) {
		t.Errorf("canvas did not follow new source size: %v", c.Bounds())
	}
}

func TestSample_OffsetSource(t *testing.T) {
	c := newCanvas(t)
	src := image.NewRGBA(image.Rect(5, 5, 15, 10))
	blue := color.RGBA{B: 255, A: 255}
	src.Set(5, 5, blue)

	frame := c.Sample(src)
	if frame.Rect != image.Rect(0, 0, 10, 5) {
		t.Fatalf("frame rect = %v", frame.Rect)
	}
	if frame.RGBAAt(0, 0) != blue {
		t.Errorf("origin pixel = %v, want %v", frame.RGBAAt(0, 0), blue)
	}
}

func TestSample_Idempotent(t *testing.T) {
	c := newCanvas(t)
	src := solid(16, 16, color.RGBA{G: 200, A: 255})

	a := c.Sample(src)
	b := c.Sample(src)
	if !bytes.Equal(a.Pix, b.Pix) || a.Rect != b.Rect {
		t.Error("sampling a static image twice should produce identical frames")
	}
}

func TestSample_ReturnsPrivateCopy(t *testing.T) {
	c := newCanvas(t)
	frame := c.Sample(solid(4, 4, color.RGBA{R: 1, A: 255}))

	c.Paint(func(ctx *Context) { ctx.Clear() })

	if frame.RGBAAt(0, 0).A != 255 {
		t.Error("painting the canvas modified a sampled frame")
	}
}

func TestPaint_Primitives(t *testing.T) {
	c := newCanvas(t)
	c.Sample(solid(100, 60, color.Black))

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}

	c.Paint(func(ctx *Context) {
		w, h := ctx.Size()
		if w != 100 || h != 60 {
			t.Errorf("Size() = %d,%d", w, h)
		}
		ctx.FillRect(0, 0, 20, 20, red)
		ctx.StrokeRect(40, 20, 40, 30, white, 3)

		if ctx.MeasureText("cat (87%)") <= 0 {
			t.Error("MeasureText returned non-positive width")
		}
		if ctx.MeasureText("a much longer label") <= ctx.MeasureText("short") {
			t.Error("longer text should measure wider")
		}
		ctx.FillText("hi", 50, 58, white)
	})

	snap := c.Snapshot()
	if snap.RGBAAt(10, 10) != red {
		t.Errorf("filled pixel = %v, want red", snap.RGBAAt(10, 10))
	}
	if snap.RGBAAt(40, 35) != white {
		t.Errorf("stroke pixel = %v, want white", snap.RGBAAt(40, 35))
	}
	if snap.RGBAAt(60, 35) != (color.RGBA{A: 255}) {
		t.Errorf("interior pixel = %v, want black", snap.RGBAAt(60, 35))
	}
}

func TestPaint_ClearAndDrawImage(t *testing.T) {
	c := newCanvas(t)
	c.Sample(solid(10, 10, color.White))

	green := color.RGBA{G: 255, A: 255}
	c.Paint(func(ctx *Context) {
		ctx.Clear()
		if got := c.img.RGBAAt(5, 5); got != (color.RGBA{}) {
			t.Errorf("after Clear pixel = %v", got)
		}
		ctx.DrawImage(solid(5, 5, green))
	})

	if got := c.Snapshot().RGBAAt(9, 9); got != green {
		t.Errorf("scaled image pixel = %v, want %v", got, green)
	}
}

func TestEncodeJPEG(t *testing.T) {
	c := newCanvas(t)

	var buf bytes.Buffer
	if err := c.EncodeJPEG(&buf, 80); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	c.Sample(solid(32, 24, color.White))
	if err := c.EncodeJPEG(&buf, 80); err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 32 || cfg.Height != 24 {
		t.Errorf("JPEG size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCanvas_ConcurrentSampleAndRead(t *testing.T) {
	c := newCanvas(t)
	frames := []image.Image{
		solid(20, 20, color.White),
		solid(30, 10, color.Black),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Sample(frames[i%2])
		}(i)
		go func() {
			defer wg.Done()
			snap := c.Snapshot()
			if len(snap.Pix) != snap.Stride*snap.Rect.Dy() {
				t.Error("snapshot pixel buffer inconsistent with its bounds")
			}
		}()
	}
	wg.Wait()
}
