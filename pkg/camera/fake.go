package camera

import (
	"context"
	"image"
	"sync"
)

// Fake is an in-memory Camera for tests. Read cycles through Frames.
type Fake struct {
	// Frames are returned in order, repeating the last one.
	Frames []image.Image

	// ReadFunc overrides Frames when set.
	ReadFunc func(ctx context.Context) (image.Image, error)

	mu     sync.Mutex
	next   int
	reads  int
	closes int
}

// NewFake returns a fake camera that yields frames.
func NewFake(frames ...image.Image) *Fake {
	return &Fake{Frames: frames}
}

// Read implements Camera.
func (f *Fake) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.closes > 0 {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	f.reads++
	fn := f.ReadFunc
	var frame image.Image
	if fn == nil && len(f.Frames) > 0 {
		frame = f.Frames[f.next]
		if f.next < len(f.Frames)-1 {
			f.next++
		}
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if frame == nil {
		return nil, ErrNoFrame
	}
	return frame, nil
}

// Close implements Camera.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// Reads returns the number of Read calls.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Closes returns the number of Close calls.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// FakeOpener hands out a fixed camera or error and records constraints.
type FakeOpener struct {
	Camera Camera
	Err    error

	mu    sync.Mutex
	calls []Constraints
}

// Open implements Opener.
func (o *FakeOpener) Open(ctx context.Context, c Constraints) (Camera, error) {
	o.mu.Lock()
	o.calls = append(o.calls, c)
	o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Camera, nil
}

// Calls returns the constraints of every Open call.
func (o *FakeOpener) Calls() []Constraints {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Constraints, len(o.calls))
	copy(out, o.calls)
	return out
}

var (
	_ Camera = (*Fake)(nil)
	_ Opener = (*FakeOpener)(nil)
)
