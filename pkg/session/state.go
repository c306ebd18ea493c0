package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-detect/pkg/detection"
	"github.com/teslashibe/go-detect/pkg/results"
)

// CaptureState is where the session's input currently comes from.
// Exactly one state is active at a time.
type CaptureState int

const (
	Idle CaptureState = iota
	ImageLoaded
	CameraActive
	FrameCaptured
)

var stateNames = map[CaptureState]string{
	Idle:          "idle",
	ImageLoaded:   "image_loaded",
	CameraActive:  "camera_active",
	FrameCaptured: "frame_captured",
}

func (s CaptureState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s CaptureState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source names what produced a cycle's frame.
type Source string

const (
	SourceUpload  Source = "upload"
	SourceCamera  Source = "camera"
	SourceCapture Source = "capture"
)

// Cycle is the record of one applied capture-detect-render pass.
type Cycle struct {
	ID         uuid.UUID             `json:"id"`
	Seq        uint64                `json:"seq"`
	Source     Source                `json:"source"`
	Detections []detection.Detection `json:"detections"`
	Elapsed    time.Duration         `json:"elapsed_ns"`
	Panel      results.Panel         `json:"panel"`
	At         time.Time             `json:"at"`
}

// Listener is notified of every applied cycle, in sequence order.
// OnCycle must not block.
type Listener interface {
	OnCycle(Cycle)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Cycle)

// OnCycle implements Listener.
func (f ListenerFunc) OnCycle(c Cycle) { f(c) }

// Status is a point-in-time view of the session.
type Status struct {
	SessionID  string       `json:"session_id"`
	State      CaptureState `json:"state"`
	Provider   string       `json:"provider"`
	ModelReady bool         `json:"model_ready"`
	ModelError string       `json:"model_error,omitempty"`
	Seq        uint64       `json:"seq"`
	Device     string       `json:"device,omitempty"`
}
