// In file: internal/llm/registry.go
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Observer receives the outcome of every routed call.
type Observer interface {
	RecordSuccess(ctx context.Context, model string, latency time.Duration, usage Usage)
	RecordFailure(ctx context.Context, model string)
}

// Registry routes a request to the provider client that serves its model.
type Registry struct {
	catalog  *Catalog
	clients  map[string]LLMClient
	observer Observer
	logger   *zap.Logger
}

var _ LLMClient = (*Registry)(nil)

func NewRegistry(catalog *Catalog, observer Observer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		catalog:  catalog,
		clients:  make(map[string]LLMClient),
		observer: observer,
		logger:   logger,
	}
}

// Register binds a provider name to its (usually guarded) client.
func (r *Registry) Register(provider string, client LLMClient) {
	r.clients[provider] = client
}

// Providers returns the number of registered provider clients.
func (r *Registry) Providers() int {
	return len(r.clients)
}

// Supports reports whether a registered client can serve model.
func (r *Registry) Supports(model string) bool {
	info, ok := r.catalog.Model(model)
	if !ok {
		return false
	}
	_, ok = r.clients[info.Provider]
	return ok
}

// Generate dispatches to the model's provider and reports the outcome to the observer.
func (r *Registry) Generate(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: missing generation config", ErrNoModel)
	}
	info, ok := r.catalog.Model(config.Model)
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", ErrNoModel, config.Model)
	}
	client, ok := r.clients[info.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not configured", ErrNoModel, info.Provider)
	}

	start := time.Now()
	result, err := client.Generate(ctx, messages, config)
	if err != nil {
		r.logger.Warn("upstream call failed",
			zap.String("model", config.Model),
			zap.String("provider", info.Provider),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		if r.observer != nil {
			r.observer.RecordFailure(context.WithoutCancel(ctx), config.Model)
		}
		return nil, err
	}
	if r.observer != nil {
		r.observer.RecordSuccess(context.WithoutCancel(ctx), config.Model, time.Since(start), result.Usage)
	}
	return result, nil
}
