package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// scriptedClient returns errs in order, then succeeds.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls int32
	reply string
}

func (s *scriptedClient) Generate(ctx context.Context, _ []Message, config *GenerationConfig) (*GenerationResult, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &GenerationResult{Content: s.reply, Model: config.Model}, nil
}

func (s *scriptedClient) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

// hangingClient blocks until its context ends.
type hangingClient struct{}

func (hangingClient) Generate(ctx context.Context, _ []Message, _ *GenerationConfig) (*GenerationResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// trackingClient records the peak number of concurrent calls.
type trackingClient struct {
	inFlight int32
	peak     int32
	hold     time.Duration
}

func (c *trackingClient) Generate(ctx context.Context, _ []Message, config *GenerationConfig) (*GenerationResult, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&c.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&c.peak, peak, n) {
			break
		}
	}
	select {
	case <-time.After(c.hold):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &GenerationResult{Content: "ok", Model: config.Model}, nil
}

// perModelClient fails for the listed models.
type perModelClient struct {
	failing map[string]bool
	calls   int32
}

func (c *perModelClient) Generate(_ context.Context, _ []Message, config *GenerationConfig) (*GenerationResult, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.failing[config.Model] {
		return nil, &UpstreamError{Kind: KindUnavailable, StatusCode: 503, Retryable: true, Model: config.Model}
	}
	return &GenerationResult{Content: "ok", Model: config.Model}, nil
}

type staticRouter map[string]bool

func (r staticRouter) Supports(model string) bool { return r[model] }

type staticAvailability map[string]bool

func (a staticAvailability) IsAvailable(_ context.Context, model string) bool {
	available, known := a[model]
	return !known || available
}

func rateLimited() error {
	return &UpstreamError{Kind: KindRateLimited, StatusCode: 429, Retryable: true}
}

func unavailable() error {
	return &UpstreamError{Kind: KindUnavailable, StatusCode: 503, Retryable: true}
}

func fastGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:         2 * time.Second,
		MaxConcurrency:  4,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
		MaxRetries:      3,
		RetryBase:       time.Millisecond,
		RetryCap:        5 * time.Millisecond,
	}
}
