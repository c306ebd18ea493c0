package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-detect/internal/httpc"
)

// RemoteConfig configures the HTTP inference backend.
type RemoteConfig struct {
	// URL receives a multipart POST with the frame in field "file".
	URL string

	// HealthURL is requested with GET during Load. Empty derives it from URL
	// by replacing the last path element with "health".
	HealthURL string

	// SkipHealthCheck loads without probing the service.
	SkipHealthCheck bool

	// Timeout bounds a single request. Zero uses httpc.DefaultTimeout.
	Timeout time.Duration

	// JPEGQuality is used when encoding frames for upload.
	JPEGQuality int
}

// DefaultRemoteConfig matches a local inference sidecar.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:         "http://localhost:5000/predict",
		Timeout:     httpc.DefaultTimeout,
		JPEGQuality: 90,
	}
}

// RemoteProvider loads a Remote model after checking the service is up.
type RemoteProvider struct {
	Config RemoteConfig
	Client *http.Client // nil uses a client built from Config.Timeout
}

// Name implements Provider.
func (p *RemoteProvider) Name() string { return "remote" }

// Load implements Provider.
func (p *RemoteProvider) Load(ctx context.Context) (Model, error) {
	cfg := p.Config
	if cfg.URL == "" {
		return nil, LoadError(p.Name(), fmt.Errorf("inference URL required"))
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, LoadError(p.Name(), fmt.Errorf("parse inference URL: %w", err))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpc.DefaultTimeout
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}

	client := p.Client
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	r := &Remote{config: cfg, client: client}
	if !cfg.SkipHealthCheck {
		if err := r.Health(ctx); err != nil {
			return nil, LoadError(p.Name(), err)
		}
	}
	return r, nil
}

// Remote runs inference through an external HTTP service.
type Remote struct {
	config RemoteConfig
	client *http.Client
}

// remoteDetection is the wire format of the inference service.
type remoteDetection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
	Error      string            `json:"error,omitempty"`
}

// Detect implements Model.
func (r *Remote) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, DetectError("remote", ErrEmptyImage)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, DetectError("remote", fmt.Errorf("create form file: %w", err))
	}
	if err := imaging.Encode(part, img, imaging.JPEG, imaging.JPEGQuality(r.config.JPEGQuality)); err != nil {
		return nil, DetectError("remote", fmt.Errorf("encode frame: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, DetectError("remote", fmt.Errorf("close multipart: %w", err))
	}

	resp, err := httpc.Post(ctx, r.client, r.config.URL, writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, DetectError("remote", fmt.Errorf("send request: %w", err))
	}
	data, err := httpc.ReadBody(resp, 8<<20)
	if err != nil {
		return nil, DetectError("remote", fmt.Errorf("read response: %w", err))
	}

	var result remoteResponse
	decodeErr := json.Unmarshal(data, &result)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if decodeErr == nil && result.Error != "" {
			msg = result.Error
		}
		return nil, DetectError("remote", &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Provider:   "remote",
		})
	}
	if decodeErr != nil {
		return nil, DetectError("remote", fmt.Errorf("decode response: %w", decodeErr))
	}

	detections := make([]Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		detections = append(detections, Detection{
			Label:      d.Class,
			Confidence: d.Confidence,
			Box:        Box{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height},
		})
	}
	return detections, nil
}

// Health checks the inference service is reachable.
func (r *Remote) Health(ctx context.Context) error {
	healthURL := r.config.HealthURL
	if healthURL == "" {
		healthURL = deriveHealthURL(r.config.URL)
	}

	resp, err := httpc.Get(ctx, r.client, healthURL)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    "inference service unhealthy",
			Provider:   "remote",
		}
	}
	return nil
}

// Close implements Model.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func deriveHealthURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/") + "/health"
	}
	path := strings.TrimSuffix(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[:i]
	}
	u.Path = path + "/health"
	u.RawQuery = ""
	return u.String()
}
