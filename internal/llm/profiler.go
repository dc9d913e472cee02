// In file: internal/llm/profiler.go
package llm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusDegraded = "degraded"
)

// ModelProfile tracks health and latency for one model.
type ModelProfile struct {
	ModelID         string    `json:"model_id" redis:"model_id"`
	Status          string    `json:"status" redis:"status"`
	AvgLatencyMS    int64     `json:"avg_latency_ms" redis:"avg_latency_ms"`
	ErrorRate       float64   `json:"error_rate" redis:"error_rate"`
	TotalSuccesses  int64     `json:"total_successes" redis:"total_successes"`
	TotalFailures   int64     `json:"total_failures" redis:"total_failures"`
	LastProbeError  string    `json:"last_probe_error,omitempty" redis:"last_probe_error"`
	LastHealthCheck time.Time `json:"last_health_check" redis:"last_health_check"`
}

// Profiler persists model profiles in redis hashes keyed profile:<model>.
// Probe results older than probeTTL are treated as unknown.
type Profiler struct {
	rdb      *redis.Client
	probeTTL time.Duration
	logger   *zap.Logger
}

var (
	_ Observer            = (*Profiler)(nil)
	_ AvailabilityChecker = (*Profiler)(nil)
	_ ProbeRecorder       = (*Profiler)(nil)
)

func NewProfiler(rdb *redis.Client, probeTTL time.Duration, logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{rdb: rdb, probeTTL: probeTTL, logger: logger}
}

func (p *Profiler) getProfileKey(modelID string) string {
	return fmt.Sprintf("profile:%s", modelID)
}

// GetProfile retrieves a model's profile. It returns (nil, nil) when the model
// has never been seen.
func (p *Profiler) GetProfile(ctx context.Context, modelID string) (*ModelProfile, error) {
	data, err := p.rdb.HGetAll(ctx, p.getProfileKey(modelID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	profile := &ModelProfile{ModelID: modelID, Status: data["status"], LastProbeError: data["last_probe_error"]}
	profile.AvgLatencyMS, _ = strconv.ParseInt(data["avg_latency_ms"], 10, 64)
	profile.ErrorRate, _ = strconv.ParseFloat(data["error_rate"], 64)
	profile.TotalSuccesses, _ = strconv.ParseInt(data["total_successes"], 10, 64)
	profile.TotalFailures, _ = strconv.ParseInt(data["total_failures"], 10, 64)
	profile.LastHealthCheck, _ = time.Parse(time.RFC3339Nano, data["last_health_check"])
	return profile, nil
}

// IsAvailable reports false only for a fresh offline verdict.
func (p *Profiler) IsAvailable(ctx context.Context, modelID string) bool {
	profile, err := p.GetProfile(ctx, modelID)
	if err != nil {
		p.logger.Warn("profile lookup failed", zap.String("model", modelID), zap.Error(err))
		return true
	}
	if profile == nil || p.stale(profile) {
		return true
	}
	return profile.Status != StatusOffline
}

// CachedProbe returns the last probe verdict if it is still fresh.
func (p *Profiler) CachedProbe(ctx context.Context, modelID string) (*ModelProfile, bool) {
	profile, err := p.GetProfile(ctx, modelID)
	if err != nil || profile == nil || profile.LastHealthCheck.IsZero() || p.stale(profile) {
		return nil, false
	}
	return profile, true
}

func (p *Profiler) stale(profile *ModelProfile) bool {
	return p.probeTTL > 0 && time.Since(profile.LastHealthCheck) > p.probeTTL
}

// RecordProbe stores the outcome of an availability probe.
func (p *Profiler) RecordProbe(ctx context.Context, modelID string, available bool, latency time.Duration, probeErr error) error {
	key := p.getProfileKey(modelID)
	status := StatusOffline
	if available {
		status = StatusOnline
	}
	errText := ""
	if probeErr != nil {
		errText = truncate(probeErr.Error(), 256)
	}

	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"model_id", modelID,
		"status", status,
		"last_probe_error", errText,
		"last_health_check", time.Now().Format(time.RFC3339Nano),
	)
	if available {
		pipe.HSet(ctx, key, "avg_latency_ms", latency.Milliseconds())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record probe for %s: %w", modelID, err)
	}
	return nil
}

// RecordSuccess folds a successful call into the latency average.
func (p *Profiler) RecordSuccess(ctx context.Context, modelID string, latency time.Duration, usage Usage) {
	key := p.getProfileKey(modelID)
	const alpha = 0.1

	err := p.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "avg_latency_ms").Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		next := latency.Milliseconds()
		if current > 0 {
			next = int64(alpha*float64(latency.Milliseconds()) + (1.0-alpha)*float64(current))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "avg_latency_ms", next)
			return nil
		})
		return err
	}, key)
	if err != nil {
		p.logger.Warn("failed to update latency", zap.String("model", modelID), zap.Error(err))
	}

	pipe := p.rdb.Pipeline()
	successes := pipe.HIncrBy(ctx, key, "total_successes", 1)
	failures := pipe.HGet(ctx, key, "total_failures")
	pipe.HIncrBy(ctx, key, "total_tokens", int64(usage.TotalTokens))
	pipe.HSet(ctx, key, "model_id", modelID, "status", StatusOnline)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		p.logger.Warn("success update pipeline failed", zap.String("model", modelID), zap.Error(err))
		return
	}

	totalFailures, _ := strconv.ParseInt(failures.Val(), 10, 64)
	p.updateErrorRate(ctx, key, successes.Val(), totalFailures)
}

// RecordFailure marks a model degraded after a failed call.
func (p *Profiler) RecordFailure(ctx context.Context, modelID string) {
	key := p.getProfileKey(modelID)
	pipe := p.rdb.Pipeline()
	failures := pipe.HIncrBy(ctx, key, "total_failures", 1)
	successes := pipe.HGet(ctx, key, "total_successes")
	pipe.HSet(ctx, key, "model_id", modelID, "status", StatusDegraded)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		p.logger.Warn("failure update pipeline failed", zap.String("model", modelID), zap.Error(err))
		return
	}

	totalSuccesses, _ := strconv.ParseInt(successes.Val(), 10, 64)
	p.updateErrorRate(ctx, key, totalSuccesses, failures.Val())
}

func (p *Profiler) updateErrorRate(ctx context.Context, key string, successes, failures int64) {
	total := successes + failures
	if total == 0 {
		return
	}
	if err := p.rdb.HSet(ctx, key, "error_rate", float64(failures)/float64(total)).Err(); err != nil {
		p.logger.Warn("failed to update error rate", zap.String("key", key), zap.Error(err))
	}
}
