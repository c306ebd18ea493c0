// Package detection defines the object-detection model boundary.
//
// A Provider loads a Model; a Model turns an image into a list of
// Detections. The package ships several backends:
//
//   - YOLO runs a YOLOv8 ONNX network locally through gocv.
//   - Remote posts frames to an HTTP inference service.
//   - Cloud calls Google Cloud Vision object localization.
//   - Chain falls back across any of the above.
//   - Mock is a scripted model for tests.
//
// Detections are in source-pixel coordinates of the image passed to Detect.
package detection

import (
	"context"
	"image"
	"math"
)

// Box is an axis-aligned bounding box in source-pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect returns the box as an integer rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X)),
		int(math.Round(b.Y)),
		int(math.Round(b.X+b.Width)),
		int(math.Round(b.Y+b.Height)),
	)
}

// Area returns the area of the box in square pixels.
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// BoxFromRect converts an integer rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

// Detection is one object instance reported by a model.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0-1
	Box        Box     `json:"box"`
}

// Percent returns the confidence as a whole percentage.
func (d Detection) Percent() int {
	return Round(d.Confidence * 100)
}

// Round rounds half up, so 0.5 becomes 1 and -0.5 becomes 0.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Model is a loaded detector.
type Model interface {
	// Detect finds objects in img. Implementations must be safe for
	// concurrent use.
	Detect(ctx context.Context, img image.Image) ([]Detection, error)

	// Close releases resources held by the model.
	Close() error
}

// Provider loads a Model, for example from a file or a remote service.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Load prepares the model. Failures wrap ErrModelLoad.
	Load(ctx context.Context) (Model, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ProviderName string
	LoadFunc     func(ctx context.Context) (Model, error)
}

// Name implements Provider.
func (p ProviderFunc) Name() string { return p.ProviderName }

// Load implements Provider.
func (p ProviderFunc) Load(ctx context.Context) (Model, error) {
	m, err := p.LoadFunc(ctx)
	if err != nil {
		return nil, LoadError(p.ProviderName, err)
	}
	return m, nil
}

// Loaded returns a Provider that hands out an already constructed model.
func Loaded(name string, m Model) Provider {
	return ProviderFunc{
		ProviderName: name,
		LoadFunc: func(context.Context) (Model, error) {
			return m, nil
		},
	}
}
