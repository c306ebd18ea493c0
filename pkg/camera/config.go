// Package camera opens local capture devices and holds their runtime
// configuration.
package camera

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // Ideal frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Ideal frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Target FPS, also paces the live loop
	Quality   int `json:"quality" yaml:"quality"`     // JPEG quality 1-100 for streamed frames

	// === Device selection ===
	// FacingMode picks a device through the facing table when Device is empty.
	// Values: "user", "environment"
	FacingMode string `json:"facing_mode" yaml:"facing_mode"`

	// Device is an OpenCV device index ("0") or path ("/dev/video2").
	Device string `json:"device" yaml:"device"`
}

// Limits accepted by Validate.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// Facing modes.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// DefaultConfig returns the configuration the browser page asked for:
// the environment-facing camera at an ideal 1280x720.
func DefaultConfig() Config {
	return Config{
		Width:      1280,
		Height:     720,
		Framerate:  30,
		Quality:    85,
		FacingMode: FacingEnvironment,
	}
}

// LegacyConfig returns a 640x480 configuration for older webcams.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Constraints converts the config to open-time device constraints.
func (c Config) Constraints() Constraints {
	return Constraints{
		Device:     c.Device,
		FacingMode: c.FacingMode,
		Width:      c.Width,
		Height:     c.Height,
		Framerate:  c.Framerate,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	validFacing := map[string]bool{FacingUser: true, FacingEnvironment: true}
	if c.FacingMode != "" && !validFacing[c.FacingMode] {
		errors = append(errors, "facing_mode must be user or environment")
	}

	return errors
}

// Capabilities describes what the camera layer accepts.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"facing_modes":  []string{FacingUser, FacingEnvironment},
		"presets":       PresetNames(),
	}
}
