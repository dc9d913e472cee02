// In file: internal/llm/selector.go
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Thresholds that switch between the fast and reasoning preference lists.
const (
	fastScoreThreshold      = 0.3
	reasoningScoreThreshold = 0.7
)

// AvailabilityChecker reports the last known health of a model.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, model string) bool
}

// Router reports whether a model can be served at all.
type Router interface {
	Supports(model string) bool
}

// Selector picks a model for a task from the catalog's preference lists.
type Selector struct {
	catalog      *Catalog
	router       Router
	availability AvailabilityChecker
	logger       *zap.Logger
}

// NewSelector creates a selector. availability may be nil, in which case every
// routable model is treated as available.
func NewSelector(catalog *Catalog, router Router, availability AvailabilityChecker, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{catalog: catalog, router: router, availability: availability, logger: logger}
}

// Select returns the first routable, available model for task. When nothing
// is known to be available it falls back to the first routable candidate, so
// a cold cache never blocks a request.
func (s *Selector) Select(ctx context.Context, task string, score float64, preferSpeed bool) (string, error) {
	candidates := s.candidates(task, score, preferSpeed)

	fallback := ""
	for _, model := range candidates {
		if !s.router.Supports(model) {
			continue
		}
		if fallback == "" {
			fallback = model
		}
		if s.availability == nil || s.availability.IsAvailable(ctx, model) {
			s.logger.Debug("model selected", zap.String("task", task), zap.String("model", model), zap.Float64("score", score))
			return model, nil
		}
	}
	if fallback != "" {
		s.logger.Warn("no model known to be available, using fallback", zap.String("task", task), zap.String("model", fallback))
		return fallback, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoModel, task)
}

// candidates orders the task's preference lists for the given score.
func (s *Selector) candidates(task string, score float64, preferSpeed bool) []string {
	pref := s.catalog.Tasks[task]

	var lists [][]string
	switch {
	case preferSpeed || score < fastScoreThreshold:
		lists = [][]string{pref.Fast, pref.Default, pref.Reasoning}
	case score > reasoningScoreThreshold:
		lists = [][]string{pref.Reasoning, pref.Default, pref.Fast}
	default:
		lists = [][]string{pref.Default, pref.Reasoning, pref.Fast}
	}

	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, model := range list {
			if !seen[model] {
				seen[model] = true
				out = append(out, model)
			}
		}
	}
	return out
}
