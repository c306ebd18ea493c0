package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-detect/internal/log"
	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/canvas"
	"github.com/teslashibe/go-detect/pkg/capture"
	"github.com/teslashibe/go-detect/pkg/detection"
)

// cycleLog is a Listener that records applied cycles.
type cycleLog struct {
	mu     sync.Mutex
	cycles []Cycle
}

func (l *cycleLog) OnCycle(c Cycle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycles = append(l.cycles, c)
}

func (l *cycleLog) all() []Cycle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Cycle, len(l.cycles))
	copy(out, l.cycles)
	return out
}

func (l *cycleLog) count(src Source) int {
	n := 0
	for _, c := range l.all() {
		if c.Source == src {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func frame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame(w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fixture struct {
	session *Session
	model   *detection.Mock
	cam     *camera.Fake
	opener  *camera.FakeOpener
	log     *cycleLog
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	cv, err := canvas.New(0)
	if err != nil {
		t.Fatal(err)
	}
	model := detection.NewMock(detection.Detection{
		Label:      "cat",
		Confidence: 0.87,
		Box:        detection.Box{X: 10, Y: 10, Width: 100, Height: 50},
	})
	cam := camera.NewFake(frame(160, 120))
	opener := &camera.FakeOpener{Camera: cam}
	cl := &cycleLog{}

	opts = append([]Option{WithLogger(log.Discard()), WithListener(cl)}, opts...)
	s := New(cfg, model, opener, cv, opts...)
	t.Cleanup(func() { s.Close() })

	return &fixture{session: s, model: model, cam: cam, opener: opener, log: cl}
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	if err := f.session.LoadModel(context.Background()); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
}

func TestUpload_RendersAndPresents(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.load(t)

	data := pngBytes(t, 200, 150)
	cycle, err := f.session.Upload(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if cycle.Source != SourceUpload || cycle.Seq != 1 {
		t.Errorf("cycle = source %s seq %d", cycle.Source, cycle.Seq)
	}
	if cycle.Panel.ObjectCount != "1" || cycle.Panel.ConfidenceAvg != "87%" {
		t.Errorf("panel = %+v", cycle.Panel)
	}
	if f.session.State() != ImageLoaded {
		t.Errorf("state = %s, want image_loaded", f.session.State())
	}
	if got := f.session.Canvas().Bounds(); got != image.Rect(0, 0, 200, 150) {
		t.Errorf("canvas bounds = %v, want source size", got)
	}

	latest, ok := f.session.Latest()
	if !ok || latest.ID != cycle.ID {
		t.Error("Latest should return the applied cycle")
	}
	if len(f.log.all()) != 1 {
		t.Errorf("listener saw %d cycles, want 1", len(f.log.all()))
	}
	if call := f.model.LastCall(); call == nil || call.Bounds != image.Rect(0, 0, 200, 150) {
		t.Errorf("model saw %+v, want the sampled 200x150 frame", call)
	}
}

func TestUpload_Oversize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUploadBytes = 32
	f := newFixture(t, cfg)
	f.load(t)

	data := pngBytes(t, 50, 50)

	tests := []struct {
		name string
		size int64
	}{
		{"declared size", int64(len(data))},
		{"undeclared size", -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.session.Upload(context.Background(), bytes.NewReader(data), tc.size)
			if !errors.Is(err, capture.ErrOversizeFile) {
				t.Errorf("expected ErrOversizeFile, got %v", err)
			}
		})
	}

	if f.model.CallCount("Detect") != 0 {
		t.Error("oversize file must not reach the model")
	}
	if f.session.State() != Idle {
		t.Errorf("state = %s, want idle", f.session.State())
	}
}

func TestUpload_DecodeError(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.load(t)

	_, err := f.session.Upload(context.Background(), bytes.NewReader([]byte("plain text")), 10)
	if !errors.Is(err, capture.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if f.model.CallCount("Detect") != 0 {
		t.Error("undecodable file must not reach the model")
	}
}

func TestUpload_EmptyResults(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.model.Detections = nil
	f.load(t)

	cycle, err := f.session.DetectImage(context.Background(), frame(20, 20))
	if err != nil {
		t.Fatal(err)
	}
	if !cycle.Panel.Empty() || cycle.Panel.ObjectCount != "0" || cycle.Panel.ConfidenceAvg != "0%" {
		t.Errorf("panel = %+v", cycle.Panel)
	}
}

func TestModelNotReady(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.session.DetectImage(context.Background(), frame(10, 10))
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("before load: expected ErrModelNotReady, got %v", err)
	}
	st := f.session.Status()
	if st.ModelReady {
		t.Error("status should report model not ready")
	}
	if st.Seq != 0 {
		t.Errorf("seq = %d, want no cycle issued", st.Seq)
	}
	if b := f.session.Canvas().Bounds(); !b.Empty() {
		t.Errorf("canvas bounds = %v, want untouched", b)
	}

	data := pngBytes(t, 40, 30)
	_, err = f.session.Upload(context.Background(), bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("upload before load: expected ErrModelNotReady, got %v", err)
	}
	if b := f.session.Canvas().Bounds(); !b.Empty() {
		t.Errorf("canvas bounds after upload = %v, want untouched", b)
	}
	if f.model.CallCount("Detect") != 0 {
		t.Error("model should not be called before it is loaded")
	}
}

func TestModelLoadFailure(t *testing.T) {
	cv, _ := canvas.New(0)
	loadErr := errors.New("weights missing")
	s := New(DefaultConfig(), detection.WithError(loadErr), &camera.FakeOpener{}, cv,
		WithLogger(log.Discard()))
	defer s.Close()

	if err := s.LoadModel(context.Background()); !errors.Is(err, detection.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}

	_, err := s.DetectImage(context.Background(), frame(10, 10))
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("expected ErrModelNotReady, got %v", err)
	}
	if !errors.Is(err, loadErr) {
		t.Errorf("detect error should carry the load failure, got %v", err)
	}

	st := s.Status()
	if st.ModelReady || st.ModelError == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestDetectionError(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.model.DetectFunc = func(context.Context, image.Image) ([]detection.Detection, error) {
		return nil, errors.New("inference crashed")
	}
	f.load(t)

	_, err := f.session.DetectImage(context.Background(), frame(10, 10))
	if !errors.Is(err, detection.ErrDetection) {
		t.Errorf("expected ErrDetection, got %v", err)
	}
	if _, ok := f.session.Latest(); ok {
		t.Error("failed cycle must not be applied")
	}
}

func TestDetectTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectTimeout = 10 * time.Millisecond
	f := newFixture(t, cfg)
	f.model.DetectFunc = func(ctx context.Context, _ image.Image) ([]detection.Detection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.load(t)

	_, err := f.session.DetectImage(context.Background(), frame(10, 10))
	if !errors.Is(err, detection.ErrDetection) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected detection deadline error, got %v", err)
	}
}

func TestMinConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.5
	f := newFixture(t, cfg)
	f.model.Detections = []detection.Detection{
		{Label: "strong", Confidence: 0.9},
		{Label: "weak", Confidence: 0.2},
	}
	f.load(t)

	cycle, err := f.session.DetectImage(context.Background(), frame(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(cycle.Detections) != 1 || cycle.Detections[0].Label != "strong" {
		t.Errorf("detections = %+v", cycle.Detections)
	}
}

func TestMinArea(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.5
	cfg.MinArea = 100
	f := newFixture(t, cfg)
	f.model.Detections = []detection.Detection{
		{Label: "big", Confidence: 0.9, Box: detection.Box{Width: 20, Height: 10}},
		{Label: "speck", Confidence: 0.9, Box: detection.Box{Width: 3, Height: 3}},
		{Label: "faint", Confidence: 0.2, Box: detection.Box{Width: 50, Height: 50}},
	}
	f.load(t)

	cycle, err := f.session.DetectImage(context.Background(), frame(60, 60))
	if err != nil {
		t.Fatal(err)
	}
	if len(cycle.Detections) != 1 || cycle.Detections[0].Label != "big" {
		t.Errorf("detections = %+v", cycle.Detections)
	}
	if cycle.Panel.ObjectCount != "1" {
		t.Errorf("ObjectCount = %q", cycle.Panel.ObjectCount)
	}
}

func TestStaleCycleDiscarded(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	f.model.DetectFunc = func(ctx context.Context, img image.Image) ([]detection.Detection, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
			return []detection.Detection{{Label: "slow", Confidence: 0.9}}, nil
		}
		return []detection.Detection{{Label: "fast", Confidence: 0.8}}, nil
	}
	f.load(t)

	slowErr := make(chan error, 1)
	go func() {
		_, err := f.session.DetectImage(context.Background(), frame(30, 30))
		slowErr <- err
	}()
	<-entered

	fast, err := f.session.DetectImage(context.Background(), frame(40, 40))
	if err != nil {
		t.Fatalf("fast cycle failed: %v", err)
	}
	close(release)

	if err := <-slowErr; !errors.Is(err, ErrStaleCycle) {
		t.Errorf("slow cycle: expected ErrStaleCycle, got %v", err)
	}

	latest, _ := f.session.Latest()
	if latest.Seq != fast.Seq || latest.Detections[0].Label != "fast" {
		t.Errorf("latest = %+v, want the fast cycle", latest)
	}
	if got := f.session.Canvas().Bounds(); got != image.Rect(0, 0, 40, 40) {
		t.Errorf("canvas shows %v, want the newer 40x40 frame", got)
	}
	if n := len(f.log.all()); n != 1 {
		t.Errorf("listener saw %d cycles, want 1", n)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.load(t)

	if err := f.session.OpenCamera(context.Background(), camera.Constraints{}); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if f.cam.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", f.cam.Closes())
	}
	if f.model.CallCount("Close") != 1 {
		t.Error("model should be closed")
	}
	if _, err := f.session.DetectImage(context.Background(), frame(4, 4)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := f.session.OpenCamera(context.Background(), camera.Constraints{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCaptureState_String(t *testing.T) {
	tests := []struct {
		s    CaptureState
		want string
	}{
		{Idle, "idle"},
		{ImageLoaded, "image_loaded"},
		{CameraActive, "camera_active"},
		{FrameCaptured, "frame_captured"},
		{CaptureState(42), "state(42)"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
