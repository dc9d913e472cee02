// In file: internal/llm/guard.go
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GuardConfig tunes the protection wrapped around one upstream API key.
type GuardConfig struct {
	// Timeout bounds a whole Generate call, retries included.
	Timeout time.Duration
	// MaxConcurrency is the number of in-flight calls allowed per key.
	MaxConcurrency int64
	// RatePerMinute is the client-side admission rate. Zero disables it.
	RatePerMinute int
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before a trial call.
	BreakerCooldown time.Duration
	MaxRetries      uint64
	RetryBase       time.Duration
	RetryCap        time.Duration
}

// DefaultGuardConfig returns production defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:         45 * time.Second,
		MaxConcurrency:  8,
		RatePerMinute:   120,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
		MaxRetries:      maxRetries,
		RetryBase:       initialRetryDelay,
		RetryCap:        maxRetryDelay,
	}
}

// GuardedClient wraps a provider client with admission control, a circuit
// breaker, a hard timeout and backoff on rate limiting. Every error it
// returns is an *UpstreamError.
type GuardedClient struct {
	name    string
	next    LLMClient
	cfg     GuardConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ LLMClient = (*GuardedClient)(nil)

func NewGuardedClient(name string, next LLMClient, cfg GuardConfig, logger *zap.Logger) *GuardedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultGuardConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaults.BreakerCooldown
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaults.RetryBase
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = defaults.RetryCap
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.RatePerMinute) / 60.0)
		burst = int(cfg.MaxConcurrency)
	}

	g := &GuardedClient{
		name:    name,
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		logger:  logger.With(zap.String("upstream", name)),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return g
}

// countsAsHealthy keeps caller-side failures from tripping the breaker.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	if ue, ok := AsUpstreamError(err); ok {
		return ue.Kind == KindRejected || ue.Kind == KindCanceled
	}
	return errors.Is(err, context.Canceled)
}

// Generate runs one guarded call.
func (g *GuardedClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	backoff := retry.NewExponential(g.cfg.RetryBase)
	backoff = retry.WithJitterPercent(retryJitterPct, backoff)
	backoff = retry.WithCappedDuration(g.cfg.RetryCap, backoff)
	backoff = retry.WithMaxRetries(g.cfg.MaxRetries, backoff)

	var result *GenerationResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := g.attempt(ctx, messages, config)
		if err != nil {
			if ue, ok := AsUpstreamError(err); ok && ue.Kind == KindRateLimited {
				g.logger.Info("rate limited, backing off", zap.String("model", modelOf(config)))
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, g.normalize(ctx, config, err)
	}
	return result, nil
}

func (g *GuardedClient) attempt(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot accommodate the next token.
		return nil, &UpstreamError{Provider: g.name, Model: modelOf(config), Kind: KindRateLimited, Retryable: true, Err: err}
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, transportError(ctx, g.name, modelOf(config), err)
	}
	defer g.sem.Release(1)

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Generate(ctx, messages, config)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &UpstreamError{Provider: g.name, Model: modelOf(config), Kind: KindCircuitOpen, Retryable: true, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return out.(*GenerationResult), nil
}

// normalize turns whatever ended the call into an *UpstreamError.
func (g *GuardedClient) normalize(ctx context.Context, config *GenerationConfig, err error) error {
	if ue, ok := AsUpstreamError(err); ok {
		if ue.Provider == "" {
			ue.Provider = g.name
		}
		if ue.Model == "" {
			ue.Model = modelOf(config)
		}
		return ue
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transportError(ctx, g.name, modelOf(config), err)
	}
	return &UpstreamError{Provider: g.name, Model: modelOf(config), Kind: KindBadResponse, Err: err}
}

// State exposes the breaker state for health reporting.
func (g *GuardedClient) State() string {
	return g.breaker.State().String()
}

func modelOf(config *GenerationConfig) string {
	if config == nil {
		return ""
	}
	return config.Model
}
