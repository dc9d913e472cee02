// In file: internal/llm/prober.go
package llm

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProbeRecorder caches probe outcomes between runs.
type ProbeRecorder interface {
	RecordProbe(ctx context.Context, modelID string, available bool, latency time.Duration, probeErr error) error
	CachedProbe(ctx context.Context, modelID string) (*ModelProfile, bool)
}

// ProbeResult is the availability verdict for one catalog model.
type ProbeResult struct {
	Model     ModelInfo
	Available bool
	Status    string
	Latency   time.Duration
	Cached    bool
	Err       error
	CheckedAt time.Time
}

// ProbeSummary aggregates a probe run.
type ProbeSummary struct {
	TotalModels      int     `json:"total_models"`
	AvailableModels  int     `json:"available_models"`
	AvailabilityRate float64 `json:"availability_rate"`
}

// Prober checks model availability by sending a one-token request to every
// catalog model.
type Prober struct {
	catalog     *Catalog
	client      LLMClient
	router      Router
	recorder    ProbeRecorder
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewProber creates a prober. recorder may be nil.
func NewProber(catalog *Catalog, client LLMClient, router Router, recorder ProbeRecorder, timeout time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{
		catalog:     catalog,
		client:      client,
		router:      router,
		recorder:    recorder,
		timeout:     timeout,
		concurrency: 4,
		logger:      logger,
	}
}

// ProbeAll probes every catalog model. Fresh cached verdicts are reused unless
// refresh is set. Models without a configured provider are reported as
// unavailable without a network call.
func (p *Prober) ProbeAll(ctx context.Context, refresh bool) []ProbeResult {
	results := make([]ProbeResult, len(p.catalog.Models))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, model := range p.catalog.Models {
		i, model := i, model
		g.Go(func() error {
			results[i] = p.probeOne(ctx, model, refresh)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Prober) probeOne(ctx context.Context, model ModelInfo, refresh bool) ProbeResult {
	if p.router != nil && !p.router.Supports(model.Name) {
		return ProbeResult{Model: model, Status: "not_configured", CheckedAt: time.Now()}
	}

	if !refresh && p.recorder != nil {
		if cached, ok := p.recorder.CachedProbe(ctx, model.Name); ok {
			return ProbeResult{
				Model:     model,
				Available: cached.Status == StatusOnline,
				Status:    cached.Status,
				Latency:   time.Duration(cached.AvgLatencyMS) * time.Millisecond,
				Cached:    true,
				CheckedAt: cached.LastHealthCheck,
			}
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	_, err := p.client.Generate(probeCtx, []Message{{Role: RoleUser, Content: "Hi"}}, &GenerationConfig{Model: model.Name, MaxTokens: 1})
	latency := time.Since(start)

	res := ProbeResult{Model: model, Available: err == nil, Latency: latency, Err: err, CheckedAt: time.Now()}
	if err == nil {
		res.Status = StatusOnline
	} else {
		res.Status = StatusOffline
		p.logger.Info("model probe failed", zap.String("model", model.Name), zap.Error(err))
	}

	if p.recorder != nil {
		if recErr := p.recorder.RecordProbe(context.WithoutCancel(ctx), model.Name, res.Available, latency, err); recErr != nil {
			p.logger.Warn("failed to cache probe result", zap.String("model", model.Name), zap.Error(recErr))
		}
	}
	return res
}

// Summarize counts available models in results.
func Summarize(results []ProbeResult) ProbeSummary {
	s := ProbeSummary{TotalModels: len(results)}
	for _, r := range results {
		if r.Available {
			s.AvailableModels++
		}
	}
	if s.TotalModels > 0 {
		s.AvailabilityRate = math.Round(float64(s.AvailableModels)/float64(s.TotalModels)*1000) / 1000
	}
	return s
}
