package web

import (
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/detection"
	"github.com/teslashibe/go-detect/pkg/hub"
	"github.com/teslashibe/go-detect/pkg/results"
	"github.com/teslashibe/go-detect/pkg/session"
)

// cycleResponse is the JSON form of an applied cycle.
type cycleResponse struct {
	Type       string                `json:"type"`
	ID         string                `json:"id"`
	Seq        uint64                `json:"seq"`
	Source     session.Source        `json:"source"`
	ElapsedMS  float64               `json:"elapsed_ms"`
	Panel      results.Panel         `json:"panel"`
	Detections []detection.Detection `json:"detections"`
	At         time.Time             `json:"at"`
}

func newCycleResponse(c session.Cycle) cycleResponse {
	dets := c.Detections
	if dets == nil {
		dets = []detection.Detection{}
	}
	return cycleResponse{
		Type:       "results",
		ID:         c.ID.String(),
		Seq:        c.Seq,
		Source:     c.Source,
		ElapsedMS:  float64(c.Elapsed) / float64(time.Millisecond),
		Panel:      c.Panel,
		Detections: dets,
		At:         c.At,
	}
}

// statusResponse is returned by /api/status.
type statusResponse struct {
	session.Status
	ResultsClients int `json:"results_clients"`
	FrameClients   int `json:"frame_clients"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(statusResponse{
		Status:         s.session.Status(),
		ResultsClients: s.resultsHub.ClientCount(),
		FrameClients:   s.framesHub.ClientCount(),
	})
}

// handleDetect runs a still-image cycle on the uploaded "file" field.
func (s *Server) handleDetect(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing form file \"file\"")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	cycle, err := s.session.Upload(c.UserContext(), f, fh.Size)
	if err != nil {
		return err
	}
	s.logger.Info("image processed",
		"file", fh.Filename,
		"objects", len(cycle.Detections),
		"elapsed", cycle.Elapsed,
	)
	return c.JSON(newCycleResponse(cycle))
}

// handleResults returns the latest applied cycle
func (s *Server) handleResults(c *fiber.Ctx) error {
	cycle, ok := s.session.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Code:  "no_results",
			Error: results.Placeholder,
		})
	}
	return c.JSON(newCycleResponse(cycle))
}

// handleFrame returns the rendered canvas as JPEG
func (s *Server) handleFrame(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := s.session.Canvas().EncodeJPEG(&buf, s.cameras.GetConfig().Quality); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(buf.Bytes())
}

// handleCameraOpen opens the camera using the current camera config,
// overridden by any constraints in the request body.
func (s *Server) handleCameraOpen(c *fiber.Ctx) error {
	cons := s.cameras.GetConfig().Constraints()

	if len(c.Body()) > 0 {
		var req camera.Constraints
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid constraints: "+err.Error())
		}
		cons = mergeConstraints(cons, req)
	}

	if err := s.session.OpenCamera(c.UserContext(), cons); err != nil {
		return err
	}
	return c.JSON(s.session.Status())
}

func mergeConstraints(base, override camera.Constraints) camera.Constraints {
	if override.Device != "" {
		base.Device = override.Device
	}
	if override.FacingMode != "" {
		base.FacingMode = override.FacingMode
		if override.Device == "" {
			// An explicit facing request should not be pinned to the
			// configured device.
			base.Device = ""
		}
	}
	if override.Width > 0 {
		base.Width = override.Width
	}
	if override.Height > 0 {
		base.Height = override.Height
	}
	if override.Framerate > 0 {
		base.Framerate = override.Framerate
	}
	return base
}

// handleCameraCapture takes a picture from the live camera.
func (s *Server) handleCameraCapture(c *fiber.Ctx) error {
	cycle, err := s.session.TakePicture(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(newCycleResponse(cycle))
}

func (s *Server) handleCameraStop(c *fiber.Ctx) error {
	s.session.StopCamera()
	return c.JSON(s.session.Status())
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.cameras.GetConfigJSON())
}

// handleSetCameraConfig applies a partial update, optionally with "preset".
func (s *Server) handleSetCameraConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := s.cameras.UpdateConfig(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	cfg := s.cameras.GetConfig()
	s.logger.Info("camera config updated",
		"width", cfg.Width,
		"height", cfg.Height,
		"framerate", cfg.Framerate,
	)
	return c.JSON(s.cameras.GetConfigJSON())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"names":        camera.PresetNames(),
		"presets":      camera.Presets(),
		"capabilities": camera.Capabilities(),
	})
}

// handleWS attaches a websocket connection to h until it closes.
func (s *Server) handleWS(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		if client == nil {
			return
		}
		client.Run()
	}
}
