package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// isolateEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "GROQ_API_KEY", "GROQ_BASE_URL", "GEMINI_API_KEY", "ANTHROPIC_API_KEY",
		"REDIS_URL", "DATABASE_URL", "PEHANCE_MODELS_FILE", "PEHANCE_CONFIG", "LOG_LEVEL",
		"UPSTREAM_TIMEOUT", "UPSTREAM_MAX_CONCURRENCY", "UPSTREAM_RATE_PER_MINUTE",
		"BREAKER_FAILURES", "BREAKER_COOLDOWN", "CACHE_TTL", "REQUEST_TIMEOUT",
		"PROBE_TTL", "PROBE_INTERVAL", "CORS_ORIGINS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("GIN_MODE", "release")
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8001", cfg.Port)
	assert.Equal(t, "gsk-test", cfg.GroqAPIKey)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.DatabaseURL)

	guard := cfg.GuardConfig()
	assert.Equal(t, cfg.Upstream.Timeout, guard.Timeout)
	assert.Equal(t, int64(cfg.Upstream.MaxConcurrency), guard.MaxConcurrency)
}

func TestLoadConfig_RequiresAnUpstreamKey(t *testing.T) {
	isolateEnv(t)

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("PORT", "9100")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("BREAKER_FAILURES", "7")
	t.Setenv("CACHE_TTL", "60")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 7, cfg.Upstream.BreakerFailures)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, uint32(7), cfg.GuardConfig().BreakerFailures)
}

func TestLoadConfig_YAMLOverlayThenEnv(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "pehance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
log_level: debug
upstream:
  timeout: 20s
  max_concurrency: 3
probe:
  interval: 1m
`), 0o600))
	t.Setenv("PEHANCE_CONFIG", path)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("PORT", "9200")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9200", cfg.Port, "environment wins over the file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Upstream.MaxConcurrency)
	assert.Equal(t, time.Minute, cfg.Probe.Interval)
	assert.Equal(t, 5, cfg.Upstream.BreakerFailures, "unset fields keep their defaults")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("UPSTREAM_MAX_CONCURRENCY", "lots")
	t.Setenv("BREAKER_COOLDOWN", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_MAX_CONCURRENCY")
	assert.Contains(t, err.Error(), "BREAKER_COOLDOWN")
}

func TestLoadConfig_MissingConfigFile(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("PEHANCE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}
