// In file: internal/llm/providers.go
package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ProviderKeys holds the upstream credentials. Empty keys leave the provider unregistered.
type ProviderKeys struct {
	Groq        string
	GroqBaseURL string
	Gemini      string
	Anthropic   string
}

// Providers is the set of guarded provider clients built from ProviderKeys.
type Providers struct {
	Clients map[string]*GuardedClient
	closers []func() error
}

// NewProviders creates one guarded client per configured key.
func NewProviders(ctx context.Context, keys ProviderKeys, guard GuardConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Providers{Clients: make(map[string]*GuardedClient)}

	if keys.Groq != "" {
		c, err := NewOpenAIClient(ProviderGroq, keys.Groq, keys.GroqBaseURL)
		if err != nil {
			return nil, err
		}
		p.Clients[ProviderGroq] = NewGuardedClient(ProviderGroq, c, guard, logger)
	}
	if keys.Gemini != "" {
		c, err := NewGeminiClient(ctx, keys.Gemini)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, c.Close)
		p.Clients[ProviderGemini] = NewGuardedClient(ProviderGemini, c, guard, logger)
	}
	if keys.Anthropic != "" {
		c, err := NewAnthropicClient(keys.Anthropic)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.Clients[ProviderAnthropic] = NewGuardedClient(ProviderAnthropic, c, guard, logger)
	}

	if len(p.Clients) == 0 {
		return nil, errors.New("no upstream provider configured")
	}
	logger.Info("upstream providers initialized", zap.Int("count", len(p.Clients)))
	return p, nil
}

// Register adds every provider client to the registry.
func (p *Providers) Register(r *Registry) {
	for name, c := range p.Clients {
		r.Register(name, c)
	}
}

// Close releases SDK connections.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider: %w", err))
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
