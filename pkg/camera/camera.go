package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the device exists but the
	// process may not open it.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrDeviceUnavailable is returned when no matching device exists or
	// it cannot be opened.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("camera: closed")

	// ErrNoFrame is returned when the device produced no frame.
	ErrNoFrame = errors.New("camera: no frame")
)

// Constraints select and shape a capture device at open time.
// Width and Height are ideals; the device may deliver something else.
type Constraints struct {
	Device     string `json:"device,omitempty"`
	FacingMode string `json:"facing_mode,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Framerate  int    `json:"framerate,omitempty"`
}

// Camera is an open capture device.
type Camera interface {
	// Read returns the next frame.
	Read(ctx context.Context) (image.Image, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Opener opens capture devices.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Camera, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, c Constraints) (Camera, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, c Constraints) (Camera, error) {
	return f(ctx, c)
}

// DefaultFacingDevices maps facing modes to device indexes. On most
// laptops only device 0 exists; it serves both.
func DefaultFacingDevices() map[string]string {
	return map[string]string{
		FacingUser:        "0",
		FacingEnvironment: "0",
	}
}

// ResolveDevice picks the device for c: the explicit device, then the
// facing table, then "0".
func ResolveDevice(c Constraints, facing map[string]string) string {
	if c.Device != "" {
		return c.Device
	}
	if dev, ok := facing[c.FacingMode]; ok && dev != "" {
		return dev
	}
	return "0"
}

// devicePath returns the V4L2 node for device, or "" when device is not
// a local node (a URL or a file, for example).
func devicePath(device string) string {
	if n, err := strconv.Atoi(device); err == nil && n >= 0 {
		return fmt.Sprintf("/dev/video%d", n)
	}
	if strings.HasPrefix(device, "/dev/") {
		return device
	}
	return ""
}

// checkDevice distinguishes a missing device from an inaccessible one
// before handing it to OpenCV, which reports both as a failed open.
func checkDevice(device string) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	path := devicePath(device)
	if path == "" {
		return nil
	}
	return checkDevicePath(path)
}

func checkDevicePath(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, path)
	default:
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
}
