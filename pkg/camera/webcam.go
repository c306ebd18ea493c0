package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// DeviceOpener opens local cameras through OpenCV.
type DeviceOpener struct {
	// Facing maps facing modes to devices. Nil uses DefaultFacingDevices.
	Facing map[string]string
	Logger *slog.Logger
}

// Open implements Opener.
func (o *DeviceOpener) Open(ctx context.Context, c Constraints) (Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	facing := o.Facing
	if facing == nil {
		facing = DefaultFacingDevices()
	}
	device := ResolveDevice(c, facing)

	if err := checkDevice(device); err != nil {
		return nil, err
	}

	var src interface{} = device
	if n, err := strconv.Atoi(device); err == nil {
		src = n
	}

	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}

	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("camera opened",
		"component", "camera",
		"device", device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
	)

	return &Webcam{device: device, vc: vc, mat: gocv.NewMat()}, nil
}

// Webcam is a Camera backed by an OpenCV VideoCapture.
type Webcam struct {
	device string

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// Device returns the device the webcam was opened on.
func (w *Webcam) Device() string { return w.device }

// Read implements Camera.
func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if ok := w.vc.Read(&w.mat); !ok || w.mat.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoFrame, w.device)
	}

	img, err := w.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close implements Camera.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.mat.Close()
	return w.vc.Close()
}

var (
	_ Opener = (*DeviceOpener)(nil)
	_ Camera = (*Webcam)(nil)
)
