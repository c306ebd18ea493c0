package detection

import (
	"context"
	"image"
	"log/slog"
)

// ChainProvider loads every provider it can and returns a Chain of the
// models that loaded. Load fails only when none of them did.
type ChainProvider struct {
	Providers []Provider
	Logger    *slog.Logger
}

// NewChainProvider creates a provider chain.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{Providers: providers}
}

// Name implements Provider.
func (p *ChainProvider) Name() string { return "chain" }

// Load implements Provider.
func (p *ChainProvider) Load(ctx context.Context) (Model, error) {
	if len(p.Providers) == 0 {
		return nil, LoadError(p.Name(), ErrNoModels)
	}
	base := p.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := base.With("component", "detection.chain")

	var (
		models []Model
		errs   []error
	)
	for _, provider := range p.Providers {
		m, err := provider.Load(ctx)
		if err != nil {
			errs = append(errs, err)
			logger.Warn("model failed to load, skipping",
				"provider", provider.Name(),
				"error", err,
			)
			if ctx.Err() != nil {
				closeAll(models)
				return nil, LoadError(p.Name(), ctx.Err())
			}
			continue
		}
		logger.Info("model loaded", "provider", provider.Name())
		models = append(models, m)
	}

	if len(models) == 0 {
		return nil, LoadError(p.Name(), &ChainError{Errors: errs})
	}
	chain, err := NewChainWithLogger(base, models...)
	if err != nil {
		return nil, LoadError(p.Name(), err)
	}
	logger.Info("chain ready", "models", len(chain.Models()), "skipped", len(errs))
	return chain, nil
}

// Chain tries multiple models in order until one succeeds.
type Chain struct {
	models []Model
	logger *slog.Logger
}

// NewChain creates a model chain.
// At least one model is required.
func NewChain(models ...Model) (*Chain, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	return &Chain{
		models: models,
		logger: slog.Default().With("component", "detection.chain"),
	}, nil
}

// NewChainWithLogger creates a model chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, models ...Model) (*Chain, error) {
	chain, err := NewChain(models...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "detection.chain")
	return chain, nil
}

// Detect tries each model until one succeeds.
func (c *Chain) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var errs []error

	for i, m := range c.models {
		dets, err := m.Detect(ctx, img)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback model succeeded",
					"model_index", i,
				)
			}
			return dets, nil
		}

		errs = append(errs, err)
		c.logger.Warn("model failed, trying next",
			"model_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, DetectError("chain", ctx.Err())
		}
	}

	return nil, DetectError("chain", &ChainError{Errors: errs})
}

// Close closes all models.
func (c *Chain) Close() error {
	return closeAll(c.models)
}

// Models returns the list of models in the chain.
func (c *Chain) Models() []Model {
	return c.models
}

func closeAll(models []Model) error {
	var lastErr error
	for _, m := range models {
		if err := m.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

var _ Model = (*Chain)(nil)
