// Package config loads go-detect configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/capture"
	"github.com/teslashibe/go-detect/pkg/detection"
	"github.com/teslashibe/go-detect/pkg/session"
)

// Model backends.
const (
	BackendYOLO   = "yolo"
	BackendRemote = "remote"
	BackendCloud  = "cloud"
	BackendChain  = "chain"
	BackendMock   = "mock"
)

// Default configuration values.
const (
	DefaultPort    = "8080"
	DefaultBackend = BackendYOLO
)

// Config holds all configuration for the detect server.
// Flag parsing is done in cmd/detect/main.go; this struct is data only.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// StaticDir holds the page served at "/". Empty serves the API only.
	StaticDir string `yaml:"static_dir"`

	Upload  UploadConfig  `yaml:"upload"`
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Camera  camera.Config `yaml:"camera"`
}

// UploadConfig limits still-image uploads.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// ModelConfig selects and tunes the detection backend.
type ModelConfig struct {
	Backend string `yaml:"backend"`

	// Chain lists backends tried in order when Backend is "chain".
	Chain []string `yaml:"chain"`

	// MinConfidence drops weaker detections before rendering.
	MinConfidence float64 `yaml:"min_confidence"`

	// MinArea drops boxes smaller than this many square pixels.
	MinArea float64 `yaml:"min_area"`

	YOLO   YOLOConfig   `yaml:"yolo"`
	Remote RemoteConfig `yaml:"remote"`
	Cloud  CloudConfig  `yaml:"cloud"`
}

// YOLOConfig configures the local ONNX backend.
type YOLOConfig struct {
	Path       string  `yaml:"path"`
	Confidence float32 `yaml:"confidence"`
	NMS        float32 `yaml:"nms"`
	InputSize  int     `yaml:"input_size"`
}

// RemoteConfig configures the inference service backend.
type RemoteConfig struct {
	URL             string        `yaml:"url"`
	HealthURL       string        `yaml:"health_url"`
	SkipHealthCheck bool          `yaml:"skip_health_check"`
	Timeout         time.Duration `yaml:"timeout"`
}

// CloudConfig configures the Google Cloud Vision backend.
type CloudConfig struct {
	APIKey       string `yaml:"api_key"`
	AccessToken  string `yaml:"access_token"`
	MaxResults   int64  `yaml:"max_results"`
	MaxDimension int    `yaml:"max_dimension"`
}

// SessionConfig tunes the detection cycle.
type SessionConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	DetectTimeout time.Duration `yaml:"detect_timeout"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	yolo := detection.DefaultYOLOConfig()
	remote := detection.DefaultRemoteConfig()
	cloud := detection.DefaultCloudConfig()
	sess := session.DefaultConfig()

	return Config{
		Port:     DefaultPort,
		LogLevel: "info",
		Upload:   UploadConfig{MaxBytes: capture.DefaultMaxBytes},
		Model: ModelConfig{
			Backend: DefaultBackend,
			YOLO: YOLOConfig{
				Path:       yolo.ModelPath,
				Confidence: yolo.ConfidenceThresh,
				NMS:        yolo.NMSThresh,
				InputSize:  yolo.InputWidth,
			},
			Remote: RemoteConfig{
				URL:     remote.URL,
				Timeout: remote.Timeout,
			},
			Cloud: CloudConfig{
				MaxResults:   cloud.MaxResults,
				MaxDimension: cloud.MaxDimension,
			},
		},
		Session: SessionConfig{
			FrameInterval: sess.FrameInterval,
			RetryDelay:    sess.RetryDelay,
		},
		Camera: camera.DefaultConfig(),
	}
}

// Load returns the defaults overlaid with the YAML file at path (if it
// exists) and then the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.LoadEnvConfig(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnvConfig applies environment overrides.
func (c *Config) LoadEnvConfig() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v := os.Getenv("MODEL_BACKEND"); v != "" {
		c.SetBackend(v)
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.YOLO.Path = v
	}
	if v := os.Getenv("INFERENCE_URL"); v != "" {
		c.Model.Remote.URL = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Model.Cloud.APIKey = v
	}
	if v := os.Getenv("GOOGLE_ACCESS_TOKEN"); v != "" {
		c.Model.Cloud.AccessToken = v
	}
	if v := os.Getenv("CAMERA_DEVICE"); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &ConfigError{Field: "MaxUploadBytes", Message: "MAX_UPLOAD_BYTES must be an integer"}
		}
		c.Upload.MaxBytes = n
	}
	return nil
}

// SetBackend selects the model backend from a name or a comma-separated
// list. A list of more than one name becomes a chain tried in order.
func (c *Config) SetBackend(v string) {
	backends := splitList(v)
	switch len(backends) {
	case 0:
		return
	case 1:
		c.Model.Backend = backends[0]
		c.Model.Chain = nil
	default:
		c.Model.Backend = BackendChain
		c.Model.Chain = backends
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return &ConfigError{Field: "Port", Message: "port is required"}
	}
	if c.Upload.MaxBytes <= 0 {
		return &ConfigError{Field: "MaxUploadBytes", Message: "upload limit must be positive"}
	}
	if c.Model.MinConfidence < 0 || c.Model.MinConfidence > 1 {
		return &ConfigError{Field: "MinConfidence", Message: "min_confidence must be between 0 and 1"}
	}
	if c.Model.MinArea < 0 {
		return &ConfigError{Field: "MinArea", Message: "min_area cannot be negative"}
	}

	if c.Model.Backend == BackendChain {
		if len(c.Model.Chain) == 0 {
			return &ConfigError{Field: "Chain", Message: "chain backend needs at least one entry"}
		}
		for _, b := range c.Model.Chain {
			if b == BackendChain {
				return &ConfigError{Field: "Chain", Message: "chain cannot contain itself"}
			}
			if err := c.validateBackend(b); err != nil {
				return err
			}
		}
	} else if err := c.validateBackend(c.Model.Backend); err != nil {
		return err
	}

	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Camera", Message: strings.Join(errs, "; ")}
	}
	return nil
}

func (c *Config) validateBackend(name string) error {
	switch name {
	case BackendYOLO:
		if c.Model.YOLO.Path == "" {
			return &ConfigError{Field: "ModelPath", Message: "MODEL_PATH is required for the yolo backend"}
		}
	case BackendRemote:
		if c.Model.Remote.URL == "" {
			return &ConfigError{Field: "InferenceURL", Message: "INFERENCE_URL is required for the remote backend"}
		}
	case BackendCloud, BackendMock:
	default:
		return &ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown model backend %q", name)}
	}
	return nil
}

// SessionConfig returns the session settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		FrameInterval:  c.Session.FrameInterval,
		RetryDelay:     c.Session.RetryDelay,
		DetectTimeout:  c.Session.DetectTimeout,
		MinConfidence:  c.Model.MinConfidence,
		MinArea:        c.Model.MinArea,
		MaxUploadBytes: c.Upload.MaxBytes,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// BuildProvider returns the model provider named by the configuration.
func (c *Config) BuildProvider(logger *slog.Logger) (detection.Provider, error) {
	if c.Model.Backend != BackendChain {
		return c.provider(c.Model.Backend)
	}

	providers := make([]detection.Provider, 0, len(c.Model.Chain))
	for _, name := range c.Model.Chain {
		p, err := c.provider(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	chain := detection.NewChainProvider(providers...)
	chain.Logger = logger
	return chain, nil
}

func (c *Config) provider(name string) (detection.Provider, error) {
	switch name {
	case BackendYOLO:
		yc := detection.DefaultYOLOConfig()
		yc.ModelPath = c.Model.YOLO.Path
		if c.Model.YOLO.Confidence > 0 {
			yc.ConfidenceThresh = c.Model.YOLO.Confidence
		}
		if c.Model.YOLO.NMS > 0 {
			yc.NMSThresh = c.Model.YOLO.NMS
		}
		if c.Model.YOLO.InputSize > 0 {
			yc.InputWidth = c.Model.YOLO.InputSize
			yc.InputHeight = c.Model.YOLO.InputSize
		}
		return &detection.YOLOProvider{Config: yc}, nil

	case BackendRemote:
		rc := detection.DefaultRemoteConfig()
		rc.URL = c.Model.Remote.URL
		rc.HealthURL = c.Model.Remote.HealthURL
		rc.SkipHealthCheck = c.Model.Remote.SkipHealthCheck
		if c.Model.Remote.Timeout > 0 {
			rc.Timeout = c.Model.Remote.Timeout
		}
		return &detection.RemoteProvider{Config: rc}, nil

	case BackendCloud:
		cc := detection.DefaultCloudConfig()
		cc.APIKey = c.Model.Cloud.APIKey
		cc.AccessToken = c.Model.Cloud.AccessToken
		if c.Model.Cloud.MaxResults > 0 {
			cc.MaxResults = c.Model.Cloud.MaxResults
		}
		if c.Model.Cloud.MaxDimension > 0 {
			cc.MaxDimension = c.Model.Cloud.MaxDimension
		}
		return &detection.CloudProvider{Config: cc}, nil

	case BackendMock:
		return detection.NewMock(), nil
	}
	return nil, &ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown model backend %q", name)}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
