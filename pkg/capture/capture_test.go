package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func encode(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: uint8(x * 10), B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestCheckSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		max     int64
		wantErr bool
	}{
		{"under limit", 1024, 2048, false},
		{"at limit", 2048, 2048, false},
		{"over limit", 2049, 2048, true},
		{"default limit at 5 MiB", 5 * 1024 * 1024, 0, false},
		{"default limit exceeded", 5*1024*1024 + 1, 0, true},
		{"unknown size", -1, 10, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckSize(tc.size, tc.max)
			if tc.wantErr && !errors.Is(err, ErrOversizeFile) {
				t.Errorf("expected ErrOversizeFile, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadImage(t *testing.T) {
	tests := []struct {
		name   string
		format imaging.Format
	}{
		{"png", imaging.PNG},
		{"jpeg", imaging.JPEG},
		{"gif", imaging.GIF},
		{"bmp", imaging.BMP},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := encode(t, 16, 9, tc.format)
			img, err := LoadImage(bytes.NewReader(data), 0)
			if err != nil {
				t.Fatalf("LoadImage failed: %v", err)
			}
			if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 9 {
				t.Errorf("bounds = %v, want 16x9", img.Bounds())
			}
		})
	}
}

func TestLoadImage_Oversize(t *testing.T) {
	data := encode(t, 32, 32, imaging.PNG)

	_, err := LoadImage(bytes.NewReader(data), int64(len(data)-1))
	if !errors.Is(err, ErrOversizeFile) {
		t.Errorf("expected ErrOversizeFile, got %v", err)
	}

	if _, err := LoadImage(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Errorf("exact-size file should load: %v", err)
	}
}

func TestLoadImage_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"text", "this is not an image"},
		{"truncated png", string(encode(t, 8, 8, imaging.PNG)[:20])},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadImage(strings.NewReader(tc.data), 0)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}
