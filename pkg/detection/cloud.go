package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/teslashibe/go-detect/internal/httpc"
)

// CloudConfig configures the Google Cloud Vision backend.
type CloudConfig struct {
	// APIKey authenticates with an API key. Takes precedence over AccessToken.
	APIKey string

	// AccessToken authenticates with a short-lived OAuth2 token. When both
	// APIKey and AccessToken are empty, application default credentials
	// are used.
	AccessToken string

	// MaxResults caps the objects returned per image.
	MaxResults int64

	// MaxDimension downsizes larger frames before upload. Zero disables.
	MaxDimension int

	// Endpoint overrides the API base URL.
	Endpoint string

	// HTTPClient replaces the authenticated transport entirely.
	HTTPClient *http.Client
}

// DefaultCloudConfig returns defaults suited to camera frames.
func DefaultCloudConfig() CloudConfig {
	return CloudConfig{
		MaxResults:   20,
		MaxDimension: 1600,
	}
}

// CloudProvider loads a Cloud model.
type CloudProvider struct {
	Config CloudConfig
}

// Name implements Provider.
func (p *CloudProvider) Name() string { return "cloud" }

// Load implements Provider.
func (p *CloudProvider) Load(ctx context.Context) (Model, error) {
	opts, err := p.clientOptions(ctx)
	if err != nil {
		return nil, LoadError(p.Name(), err)
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, LoadError(p.Name(), fmt.Errorf("create vision service: %w", err))
	}
	cfg := p.Config
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultCloudConfig().MaxResults
	}
	return &Cloud{config: cfg, svc: svc}, nil
}

func (p *CloudProvider) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if p.Config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.Config.Endpoint))
	}

	switch {
	case p.Config.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(p.Config.HTTPClient))
	case p.Config.APIKey != "":
		opts = append(opts, option.WithAPIKey(p.Config.APIKey))
	case p.Config.AccessToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.Config.AccessToken})
		client := &http.Client{
			Timeout:   httpc.DefaultTimeout,
			Transport: &oauth2.Transport{Source: ts, Base: httpc.NewTransport()},
		}
		opts = append(opts, option.WithHTTPClient(client))
	default:
		ts, err := google.DefaultTokenSource(ctx, vision.CloudVisionScope)
		if err != nil {
			return nil, fmt.Errorf("default credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	return opts, nil
}

// Cloud detects objects with Google Cloud Vision object localization.
type Cloud struct {
	config CloudConfig
	svc    *vision.Service
}

// Detect implements Model.
func (c *Cloud) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, DetectError("cloud", ErrEmptyImage)
	}

	upload := img
	if limit := c.config.MaxDimension; limit > 0 {
		b := img.Bounds()
		if b.Dx() > limit || b.Dy() > limit {
			upload = imaging.Fit(img, limit, limit, imaging.Linear)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, upload, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, DetectError("cloud", fmt.Errorf("encode frame: %w", err))
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(buf.Bytes())},
			Features: []*vision.Feature{{
				Type:       "OBJECT_LOCALIZATION",
				MaxResults: c.config.MaxResults,
			}},
		}},
	}

	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, DetectError("cloud", &APIError{
				StatusCode: gerr.Code,
				Message:    gerr.Message,
				Provider:   "cloud",
			})
		}
		return nil, DetectError("cloud", err)
	}
	if len(resp.Responses) == 0 {
		return []Detection{}, nil
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return nil, DetectError("cloud", &APIError{
			StatusCode: int(r.Error.Code),
			Message:    r.Error.Message,
			Provider:   "cloud",
		})
	}
	return localizedToDetections(r.LocalizedObjectAnnotations, img.Bounds()), nil
}

// Close implements Model.
func (c *Cloud) Close() error { return nil }

// localizedToDetections scales normalized vertices to source pixels.
func localizedToDetections(objs []*vision.LocalizedObjectAnnotation, bounds image.Rectangle) []Detection {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	out := make([]Detection, 0, len(objs))
	for _, obj := range objs {
		if obj == nil || obj.BoundingPoly == nil || len(obj.BoundingPoly.NormalizedVertices) == 0 {
			continue
		}
		minX, minY := 1.0, 1.0
		maxX, maxY := 0.0, 0.0
		for _, v := range obj.BoundingPoly.NormalizedVertices {
			if v == nil {
				continue
			}
			minX = min(minX, v.X)
			minY = min(minY, v.Y)
			maxX = max(maxX, v.X)
			maxY = max(maxY, v.Y)
		}
		if maxX < minX || maxY < minY {
			continue
		}
		out = append(out, Detection{
			Label:      obj.Name,
			Confidence: obj.Score,
			Box: Box{
				X:      minX*w + float64(bounds.Min.X),
				Y:      minY*h + float64(bounds.Min.Y),
				Width:  (maxX - minX) * w,
				Height: (maxY - minY) * h,
			},
		})
	}
	return out
}
