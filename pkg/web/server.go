// Package web serves the detection API, the websocket streams and the
// static page that consumes them.
package web

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/capture"
	"github.com/teslashibe/go-detect/pkg/hub"
	"github.com/teslashibe/go-detect/pkg/session"
)

// multipartOverhead is headroom on top of the upload limit for form
// boundaries and headers, so oversize files reach the handler and get the
// proper error instead of fiber's generic one.
const multipartOverhead = 64 * 1024

// Config configures the HTTP server.
type Config struct {
	Addr            string
	StaticDir       string // empty disables static files
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Server is the detection web server.
type Server struct {
	cfg     Config
	app     *fiber.App
	session *session.Session
	cameras *camera.Manager
	logger  *slog.Logger

	// Hubs for websocket broadcast
	resultsHub *hub.Hub
	framesHub  *hub.Hub
}

// NewServer creates the server and registers it as a session listener.
func NewServer(cfg Config, sess *session.Session, cameras *camera.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = capture.DefaultMaxBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:        cfg,
		session:    sess,
		cameras:    cameras,
		logger:     logger.With("component", "web"),
		resultsHub: hub.New("results", hub.WithLogger(logger), hub.WithRetainLast()),
		framesHub:  hub.New("frames", hub.WithLogger(logger)),
	}

	bodyLimit := int(cfg.MaxUploadBytes) + multipartOverhead
	app := fiber.New(fiber.Config{
		AppName:               "go-detect",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/detect", s.handleDetect)
	api.Get("/results", s.handleResults)
	api.Get("/frame", s.handleFrame)

	cam := api.Group("/camera")
	cam.Post("/open", s.handleCameraOpen)
	cam.Post("/capture", s.handleCameraCapture)
	cam.Post("/stop", s.handleCameraStop)
	cam.Get("/config", s.handleGetCameraConfig)
	cam.Put("/config", s.handleSetCameraConfig)
	cam.Get("/presets", s.handleCameraPresets)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/results", websocket.New(s.handleWS(s.resultsHub)))
	app.Get("/ws/frames", websocket.New(s.handleWS(s.framesHub)))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	sess.AddListener(s)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves HTTP on ln until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.resultsHub.Run(ctx)
	go s.framesHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// OnCycle publishes an applied cycle: the panel to results clients and
// the rendered canvas to frame clients.
func (s *Server) OnCycle(c session.Cycle) {
	if err := s.resultsHub.BroadcastJSON(newCycleResponse(c)); err != nil {
		s.logger.Warn("encode results failed", "error", err)
	}

	if s.framesHub.ClientCount() == 0 {
		return
	}
	var buf bytes.Buffer
	if err := s.session.Canvas().EncodeJPEG(&buf, s.cameras.GetConfig().Quality); err != nil {
		s.logger.Warn("encode frame failed", "error", err)
		return
	}
	s.framesHub.BroadcastBinary(buf.Bytes())
}

// ResultsHub returns the results hub.
func (s *Server) ResultsHub() *hub.Hub { return s.resultsHub }

// FramesHub returns the frames hub.
func (s *Server) FramesHub() *hub.Hub { return s.framesHub }

var _ session.Listener = (*Server)(nil)
