package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/canvas"
	"github.com/teslashibe/go-detect/pkg/capture"
	"github.com/teslashibe/go-detect/pkg/detection"
	"github.com/teslashibe/go-detect/pkg/session"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// errorMapping maps a domain error to an HTTP status and a user message.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: ErrModelNotReady may wrap ErrModelLoad.
var errorMappings = []errorMapping{
	{capture.ErrOversizeFile, fiber.StatusRequestEntityTooLarge, "file_too_large", "File terlalu besar!"},
	{capture.ErrDecode, fiber.StatusBadRequest, "invalid_image", "Gambar tidak dapat dibaca."},
	{session.ErrModelNotReady, fiber.StatusServiceUnavailable, "model_not_ready", "Model belum siap. Tunggu sebentar..."},
	{detection.ErrModelLoad, fiber.StatusServiceUnavailable, "model_load_failed", "Error loading AI model."},
	{session.ErrCameraNotActive, fiber.StatusConflict, "camera_not_active", "Buka kamera terlebih dahulu!"},
	{session.ErrStaleCycle, fiber.StatusConflict, "stale_cycle", "Hasil digantikan oleh deteksi yang lebih baru."},
	{camera.ErrPermissionDenied, fiber.StatusForbidden, "camera_permission_denied", "Tidak dapat mengakses kamera. Pastikan izin kamera sudah diberikan."},
	{camera.ErrDeviceUnavailable, fiber.StatusNotFound, "camera_unavailable", "Tidak dapat mengakses kamera."},
	{detection.ErrDetection, fiber.StatusBadGateway, "detection_failed", "Error processing image."},
	{canvas.ErrEmpty, fiber.StatusNotFound, "no_frame", "Belum ada gambar."},
	{session.ErrClosed, fiber.StatusServiceUnavailable, "session_closed", "Session closed."},
}

// classify returns the status, code and message for err.
func classify(err error) (int, ErrorResponse) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, ErrorResponse{Code: m.code, Error: m.message, Detail: err.Error()}
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code == fiber.StatusRequestEntityTooLarge {
			return fe.Code, ErrorResponse{Code: "file_too_large", Error: "File terlalu besar!", Detail: fe.Message}
		}
		return fe.Code, ErrorResponse{Code: codeForStatus(fe.Code), Error: fe.Message}
	}
	return fiber.StatusInternalServerError, ErrorResponse{Code: "internal", Error: err.Error()}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusRequestEntityTooLarge:
		return "file_too_large"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "error"
	}
}

// errorHandler renders every error returned by a handler as JSON.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status, body := classify(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(body)
}
