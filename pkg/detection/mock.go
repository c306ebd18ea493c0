package detection

import (
	"context"
	"image"
	"sync"
	"time"
)

// Mock implements Model and Provider for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked. Nil returns Detections.
	DetectFunc func(ctx context.Context, img image.Image) ([]Detection, error)

	// LoadFunc is called when Load is invoked. Nil returns the mock itself.
	LoadFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// Detections is returned by Detect when DetectFunc is nil.
	Detections []Detection

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
	Bounds image.Rectangle // image bounds for Detect calls
}

// NewMock creates a mock model that reports the given detections.
func NewMock(dets ...Detection) *Mock {
	return &Mock{Detections: dets}
}

// Name implements Provider.
func (m *Mock) Name() string { return "mock" }

// Load calls LoadFunc and records the call.
func (m *Mock) Load(ctx context.Context) (Model, error) {
	m.record("Load", image.Rectangle{})
	if m.LoadFunc != nil {
		if err := m.LoadFunc(ctx); err != nil {
			return nil, LoadError("mock", err)
		}
	}
	return m, nil
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var bounds image.Rectangle
	if img != nil {
		bounds = img.Bounds()
	}
	m.record("Detect", bounds)
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, img)
	}
	out := make([]Detection, len(m.Detections))
	copy(out, m.Detections)
	return out, nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", image.Rectangle{})
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string, bounds image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
		Bounds: bounds,
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// WithError returns a mock whose Load and Detect both fail with err.
func WithError(err error) *Mock {
	return &Mock{
		LoadFunc: func(ctx context.Context) error {
			return err
		},
		DetectFunc: func(ctx context.Context, img image.Image) ([]Detection, error) {
			return nil, DetectError("mock", err)
		},
	}
}

var (
	_ Model    = (*Mock)(nil)
	_ Provider = (*Mock)(nil)
)
