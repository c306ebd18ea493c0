package session

import "errors"

var (
	// ErrModelNotReady is returned while the model is loading or after it
	// failed to load. In the latter case the load error is wrapped too.
	ErrModelNotReady = errors.New("session: model not ready")

	// ErrCameraNotActive is returned by TakePicture without an open camera.
	ErrCameraNotActive = errors.New("session: camera not active")

	// ErrStaleCycle is returned when a newer cycle started, or the cycle's
	// context was cancelled, before its result could be applied. Nothing
	// was rendered.
	ErrStaleCycle = errors.New("session: superseded by a newer cycle")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)
