// Package session owns one detection session: the loaded model, the
// shared canvas, the active capture source and the live camera loop.
//
// Every capture cycle takes a sequence number when its frame is sampled.
// A cycle's result is rendered and published only if no newer cycle has
// started and its context is still live; otherwise it is dropped with
// ErrStaleCycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/canvas"
	"github.com/teslashibe/go-detect/pkg/capture"
	"github.com/teslashibe/go-detect/pkg/detection"
	"github.com/teslashibe/go-detect/pkg/overlay"
	"github.com/teslashibe/go-detect/pkg/results"
)

// Config tunes cycle timing and filtering.
type Config struct {
	// FrameInterval is the pause between live cycles when the camera
	// constraints carry no frame rate.
	FrameInterval time.Duration

	// RetryDelay is the pause after a failed live cycle. No backoff.
	RetryDelay time.Duration

	// DetectTimeout bounds one model call. Zero means no bound.
	DetectTimeout time.Duration

	// MinConfidence drops weaker detections before rendering. Zero keeps all.
	MinConfidence float64

	// MinArea drops boxes smaller than this many square pixels. Zero keeps all.
	MinArea float64

	// MaxUploadBytes limits still uploads. Zero uses capture.DefaultMaxBytes.
	MaxUploadBytes int64
}

// DefaultConfig returns a 30 fps live loop with a 100ms retry delay.
func DefaultConfig() Config {
	return Config{
		FrameInterval:  time.Second / 30,
		RetryDelay:     100 * time.Millisecond,
		MaxUploadBytes: capture.DefaultMaxBytes,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for timing and pacing.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithListener registers l for applied cycles.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// Session is the explicit state of one detection UI.
type Session struct {
	id       uuid.UUID
	cfg      Config
	provider detection.Provider
	opener   camera.Opener
	canvas   *canvas.Canvas
	renderer *overlay.Renderer
	filter   detection.Postprocessor
	clock    clock.Clock
	logger   *slog.Logger

	ctx    context.Context // session lifetime; parent of live loops
	cancel context.CancelFunc

	loadMu   sync.Mutex // serializes LoadModel
	modelMu  sync.RWMutex
	model    detection.Model
	modelErr error

	// frameMu orders sequence issue with sampling and makes the stale
	// check, the paint and listener notification one step.
	frameMu   sync.Mutex
	seq       atomic.Uint64
	latest    *Cycle
	listeners []Listener

	// mu guards capture state. The live loop never takes it, so holding
	// it while waiting for the loop to exit is safe.
	mu       sync.Mutex
	state    CaptureState
	cam      camera.Camera
	device   string
	loopStop context.CancelFunc
	loopDone chan struct{}
	closed   bool
}

// New creates a session. The model is not loaded until LoadModel.
func New(cfg Config, provider detection.Provider, opener camera.Opener, cv *canvas.Canvas, opts ...Option) *Session {
	def := DefaultConfig()
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       uuid.New(),
		cfg:      cfg,
		provider: provider,
		opener:   opener,
		canvas:   cv,
		renderer: overlay.NewRenderer(),
		filter:   newFilter(cfg),
		clock:    clock.New(),
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "session_id", s.id.String())
	return s
}

func newFilter(cfg Config) detection.Postprocessor {
	if cfg.MinArea <= 0 {
		return detection.NewScoreFilter(cfg.MinConfidence)
	}
	return detection.Compose(
		detection.NewScoreFilter(cfg.MinConfidence),
		detection.NewAreaFilter(cfg.MinArea),
	)
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Canvas returns the shared drawing surface.
func (s *Session) Canvas() *canvas.Canvas { return s.canvas }

// AddListener registers l for applied cycles.
func (s *Session) AddListener(l Listener) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// LoadModel loads the model from the provider. A failure is remembered:
// every later detection reports ErrModelNotReady wrapping it.
func (s *Session) LoadModel(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.modelMu.RLock()
	loaded := s.model != nil
	s.modelMu.RUnlock()
	if loaded {
		return nil
	}

	s.logger.Info("loading model", "provider", s.provider.Name())
	start := s.clock.Now()
	m, err := s.provider.Load(ctx)

	s.modelMu.Lock()
	defer s.modelMu.Unlock()
	if err != nil {
		if !errors.Is(err, detection.ErrModelLoad) {
			err = detection.LoadError(s.provider.Name(), err)
		}
		s.modelErr = err
		s.logger.Error("model load failed", "provider", s.provider.Name(), "error", err)
		return err
	}
	s.model = m
	s.modelErr = nil
	s.logger.Info("model loaded",
		"provider", s.provider.Name(),
		"duration", s.clock.Since(start),
	)
	return nil
}

func (s *Session) readyModel() (detection.Model, error) {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	if s.model != nil {
		return s.model, nil
	}
	if s.modelErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelNotReady, s.modelErr)
	}
	return nil, ErrModelNotReady
}

// Upload runs a still-image cycle on an uploaded file. size is the
// declared size, or -1 if unknown. An active camera is stopped once the
// image has decoded.
func (s *Session) Upload(ctx context.Context, r io.Reader, size int64) (Cycle, error) {
	if err := capture.CheckSize(size, s.cfg.MaxUploadBytes); err != nil {
		return Cycle{}, err
	}
	img, err := capture.LoadImage(r, s.cfg.MaxUploadBytes)
	if err != nil {
		return Cycle{}, err
	}
	return s.DetectImage(ctx, img)
}

// DetectImage runs a still-image cycle on an already decoded image.
func (s *Session) DetectImage(ctx context.Context, img image.Image) (Cycle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Cycle{}, ErrClosed
	}
	if s.state == CameraActive {
		s.logger.Info("image loaded while camera active, stopping camera")
		s.stopLoopLocked()
		s.closeCameraLocked()
	}
	s.state = ImageLoaded
	s.mu.Unlock()

	return s.runCycle(ctx, img, SourceUpload)
}

// OpenCamera opens a capture device and starts the live loop. A camera
// that is already open is stopped first.
func (s *Session) OpenCamera(ctx context.Context, c camera.Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.openCameraLocked(ctx, c)
}

// ReopenCamera restarts the camera with new constraints, but only if it is
// active; the check and the reopen happen under one lock. It reports
// whether a reopen was attempted.
func (s *Session) ReopenCamera(ctx context.Context, c camera.Constraints) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != CameraActive {
		return false, nil
	}
	return true, s.openCameraLocked(ctx, c)
}

func (s *Session) openCameraLocked(ctx context.Context, c camera.Constraints) error {
	if s.state == CameraActive {
		s.stopLoopLocked()
		s.closeCameraLocked()
		s.state = Idle
	}

	cam, err := s.opener.Open(ctx, c)
	if err != nil {
		s.logger.Warn("camera open failed", "error", err)
		return fmt.Errorf("open camera: %w", err)
	}

	s.cam = cam
	s.device = c.Device
	if d, ok := cam.(interface{ Device() string }); ok {
		s.device = d.Device()
	}
	s.state = CameraActive

	interval := s.cfg.FrameInterval
	if c.Framerate > 0 {
		interval = time.Second / time.Duration(c.Framerate)
	}

	loopCtx, stop := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.loopStop = stop
	s.loopDone = done
	go s.liveLoop(loopCtx, cam, interval, done)

	s.logger.Info("camera active", "device", s.device, "interval", interval)
	return nil
}

// TakePicture stops the live loop, samples one final frame, releases the
// camera and runs a still cycle on that frame.
func (s *Session) TakePicture(ctx context.Context) (Cycle, error) {
	s.mu.Lock()
	if s.state != CameraActive {
		s.mu.Unlock()
		return Cycle{}, ErrCameraNotActive
	}

	s.stopLoopLocked()
	frame, err := s.cam.Read(ctx)
	s.closeCameraLocked()
	if err != nil {
		s.state = Idle
		s.mu.Unlock()
		return Cycle{}, fmt.Errorf("capture frame: %w", err)
	}
	s.state = FrameCaptured
	s.mu.Unlock()

	return s.runCycle(ctx, frame, SourceCapture)
}

// StopCamera stops the live loop and releases the device. No live cycle
// renders after it returns. Stopping an inactive camera is a no-op.
func (s *Session) StopCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != CameraActive {
		return
	}
	s.stopLoopLocked()
	s.closeCameraLocked()
	s.state = Idle
	s.logger.Info("camera stopped")
}

func (s *Session) stopLoopLocked() {
	if s.loopStop == nil {
		return
	}
	s.loopStop()
	<-s.loopDone
	s.loopStop = nil
	s.loopDone = nil
}

func (s *Session) closeCameraLocked() {
	if s.cam == nil {
		return
	}
	if err := s.cam.Close(); err != nil {
		s.logger.Warn("camera close failed", "error", err)
	}
	s.cam = nil
	s.device = ""
}

// State returns the current capture state.
func (s *Session) State() CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latest returns the most recently applied cycle.
func (s *Session) Latest() (Cycle, bool) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.latest == nil {
		return Cycle{}, false
	}
	return *s.latest, true
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		SessionID: s.id.String(),
		State:     s.state,
		Device:    s.device,
	}
	s.mu.Unlock()

	s.modelMu.RLock()
	st.ModelReady = s.model != nil
	if s.modelErr != nil {
		st.ModelError = s.modelErr.Error()
	}
	s.modelMu.RUnlock()

	st.Provider = s.provider.Name()
	st.Seq = s.seq.Load()
	return st
}

// Close stops the camera, cancels outstanding cycles and releases the
// model. The session is unusable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopLoopLocked()
	s.closeCameraLocked()
	s.state = Idle
	s.mu.Unlock()

	s.cancel()

	s.modelMu.Lock()
	defer s.modelMu.Unlock()
	if s.model != nil {
		err := s.model.Close()
		s.model = nil
		return err
	}
	return nil
}

// runCycle samples src, detects, then applies the result if it is still
// the newest cycle. Without a ready model nothing is sampled and no
// sequence number is issued.
func (s *Session) runCycle(ctx context.Context, src image.Image, source Source) (Cycle, error) {
	model, err := s.readyModel()
	if err != nil {
		return Cycle{Source: source}, err
	}

	s.frameMu.Lock()
	seq := s.seq.Add(1)
	frame := s.canvas.Sample(src)
	s.frameMu.Unlock()

	dctx := ctx
	if s.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, s.cfg.DetectTimeout)
		defer cancel()
	}

	start := s.clock.Now()
	dets, err := model.Detect(dctx, frame)
	elapsed := s.clock.Since(start)
	if err != nil {
		if !errors.Is(err, detection.ErrDetection) {
			err = detection.DetectError(s.provider.Name(), err)
		}
		return Cycle{Seq: seq, Source: source, Elapsed: elapsed}, err
	}
	dets = s.filter(dets)

	cycle := Cycle{
		ID:         uuid.New(),
		Seq:        seq,
		Source:     source,
		Detections: dets,
		Elapsed:    elapsed,
		Panel:      results.Present(dets, elapsed),
		At:         s.clock.Now(),
	}

	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	if ctx.Err() != nil || seq != s.seq.Load() {
		s.logger.Debug("dropping stale cycle",
			"seq", seq,
			"latest", s.seq.Load(),
			"source", source,
		)
		return cycle, ErrStaleCycle
	}

	s.canvas.Paint(func(c *canvas.Context) {
		s.renderer.Render(c, frame, dets)
	})
	s.latest = &cycle
	for _, l := range s.listeners {
		l.OnCycle(cycle)
	}
	return cycle, nil
}
