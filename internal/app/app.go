// Package app wires configuration, the detection session and the web
// server into a runnable process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-detect/internal/config"
	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/canvas"
	"github.com/teslashibe/go-detect/pkg/detection"
	"github.com/teslashibe/go-detect/pkg/session"
	"github.com/teslashibe/go-detect/pkg/web"
)

// App owns the running components.
type App struct {
	config config.Config
	logger *slog.Logger

	provider detection.Provider
	opener   camera.Opener
	listener net.Listener

	cameras *camera.Manager
	session *session.Session
	server  *web.Server
}

// Option customizes an App, mainly for tests.
type Option func(*App)

// WithProvider replaces the provider built from the configuration.
func WithProvider(p detection.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithOpener replaces the OpenCV camera opener.
func WithOpener(o camera.Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithListener serves on ln instead of listening on the configured port.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New validates cfg and returns an uninitialized App.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds the session, camera manager and web server.
func (a *App) Init() error {
	if a.provider == nil {
		p, err := a.config.BuildProvider(a.logger.With("component", "detection.chain"))
		if err != nil {
			return err
		}
		a.provider = p
	}
	if a.opener == nil {
		a.opener = &camera.DeviceOpener{Logger: a.logger.With("component", "camera")}
	}

	cv, err := canvas.New(canvas.DefaultFontSize)
	if err != nil {
		return fmt.Errorf("canvas: %w", err)
	}

	a.cameras = camera.NewManagerWithConfig(a.config.Camera)
	a.cameras.OnConfigChange = a.applyCameraConfig

	a.session = session.New(a.config.SessionConfig(), a.provider, a.opener, cv,
		session.WithLogger(a.logger),
		session.WithListener(session.ListenerFunc(a.logCycle)),
	)

	a.server = web.NewServer(web.Config{
		Addr:           a.config.Addr(),
		StaticDir:      a.config.StaticDir,
		MaxUploadBytes: a.config.Upload.MaxBytes,
	}, a.session, a.cameras, a.logger)

	a.logger.Info("initialized",
		"backend", a.provider.Name(),
		"session", a.session.ID(),
		"addr", a.config.Addr(),
	)
	return nil
}

// applyCameraConfig reopens an active camera with the new settings.
func (a *App) applyCameraConfig(cfg camera.Config) error {
	reopened, err := a.session.ReopenCamera(context.Background(), cfg.Constraints())
	if reopened {
		a.logger.Info("camera reopened with new config", "width", cfg.Width, "height", cfg.Height)
	}
	return err
}

func (a *App) logCycle(c session.Cycle) {
	a.logger.Debug("cycle applied",
		"seq", c.Seq,
		"source", c.Source,
		"objects", len(c.Detections),
		"elapsed", c.Elapsed,
	)
}

// Run loads the model in the background and serves until ctx is
// cancelled. A model load failure is reported through the session
// status, not as a Run error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.session.LoadModel(ctx); err != nil {
			a.logger.Error("model load failed", "backend", a.provider.Name(), "error", err)
		}
		return nil
	})

	g.Go(func() error {
		if a.listener != nil {
			return a.server.Serve(ctx, a.listener)
		}
		return a.server.Run(ctx)
	})

	return g.Wait()
}

// Shutdown releases the camera and the model.
func (a *App) Shutdown() {
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.logger.Warn("session close failed", "error", err)
		}
	}
}

// Session returns the detection session.
func (a *App) Session() *session.Session { return a.session }

// Cameras returns the camera config manager.
func (a *App) Cameras() *camera.Manager { return a.cameras }

// Server returns the web server.
func (a *App) Server() *web.Server { return a.server }
