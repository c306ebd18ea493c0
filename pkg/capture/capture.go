// Package capture validates and decodes still images supplied by users.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP with image.Decode
)

// DefaultMaxBytes is the upload limit used when none is configured (5 MiB).
const DefaultMaxBytes int64 = 5 * 1024 * 1024

var (
	// ErrOversizeFile is returned for files larger than the upload limit.
	// No decoding or detection is attempted.
	ErrOversizeFile = errors.New("capture: file exceeds size limit")

	// ErrDecode is returned for empty or undecodable image data.
	ErrDecode = errors.New("capture: cannot decode image")
)

// CheckSize rejects a declared size above maxBytes. A non-positive
// maxBytes uses DefaultMaxBytes. Negative sizes mean "unknown" and pass.
func CheckSize(size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrOversizeFile, size, maxBytes)
	}
	return nil
}

// LoadImage reads at most maxBytes from r and decodes it, applying the
// EXIF orientation. Reading stops one byte past the limit so oversize
// streams are rejected without buffering them whole.
func LoadImage(r io.Reader, maxBytes int64) (image.Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrOversizeFile, maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return img, nil
}
