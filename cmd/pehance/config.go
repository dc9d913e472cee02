// In file: cmd/pehance/config.go
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pehance/pehance/internal/cache"
	"github.com/pehance/pehance/internal/llm"
)

// AppConfig holds all configuration for the service: defaults, then the
// optional YAML file named by PEHANCE_CONFIG, then environment variables.
type AppConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	// Secrets are read from the environment only.
	GroqAPIKey      string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GroqBaseURL     string `yaml:"groq_base_url"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"-"`
	ModelsFile  string `yaml:"models_file"`
	LogLevel    string `yaml:"log_level"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Probe    ProbeConfig    `yaml:"probe"`

	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// UpstreamConfig bounds every call to an LLM provider.
type UpstreamConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// ProbeConfig drives the availability prober.
type ProbeConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	TTL      time.Duration `yaml:"ttl"`
	Interval time.Duration `yaml:"interval"`
}

func defaultConfig() *AppConfig {
	guard := llm.DefaultGuardConfig()
	return &AppConfig{
		Port:        "8001",
		GroqBaseURL: llm.DefaultGroqBaseURL,
		LogLevel:    "info",
		Upstream: UpstreamConfig{
			Timeout:         guard.Timeout,
			MaxConcurrency:  int(guard.MaxConcurrency),
			RatePerMinute:   guard.RatePerMinute,
			BreakerFailures: int(guard.BreakerFailures),
			BreakerCooldown: guard.BreakerCooldown,
		},
		Probe: ProbeConfig{
			Timeout:  10 * time.Second,
			TTL:      5 * time.Minute,
			Interval: 5 * time.Minute,
		},
		CacheTTL:       cache.DefaultTTL,
		RequestTimeout: 3 * time.Minute,
		CORSOrigins:    []string{"*"},
	}
}

// LoadConfig loads configuration from a .env file, an optional YAML file and the environment.
func LoadConfig() (*AppConfig, error) {
	// Only load a .env file outside release mode; in containers the
	// environment is provided directly.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := defaultConfig()
	if path := os.Getenv("PEHANCE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	envString("PORT", &cfg.Port)
	envString("GIN_MODE", &cfg.GinMode)
	envString("GROQ_API_KEY", &cfg.GroqAPIKey)
	envString("GROQ_BASE_URL", &cfg.GroqBaseURL)
	envString("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	envString("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	envString("REDIS_URL", &cfg.RedisURL)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("PEHANCE_MODELS_FILE", &cfg.ModelsFile)
	envString("LOG_LEVEL", &cfg.LogLevel)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	return errors.Join(
		envDuration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout),
		envInt("UPSTREAM_MAX_CONCURRENCY", &cfg.Upstream.MaxConcurrency),
		envInt("UPSTREAM_RATE_PER_MINUTE", &cfg.Upstream.RatePerMinute),
		envInt("BREAKER_FAILURES", &cfg.Upstream.BreakerFailures),
		envDuration("BREAKER_COOLDOWN", &cfg.Upstream.BreakerCooldown),
		envDuration("CACHE_TTL", &cfg.CacheTTL),
		envDuration("REQUEST_TIMEOUT", &cfg.RequestTimeout),
		envDuration("PROBE_TTL", &cfg.Probe.TTL),
		envDuration("PROBE_INTERVAL", &cfg.Probe.Interval),
	)
}

func (c *AppConfig) validate() error {
	var errs []error
	if c.GroqAPIKey == "" && c.GeminiAPIKey == "" && c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("at least one of GROQ_API_KEY, GEMINI_API_KEY or ANTHROPIC_API_KEY must be set"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.Upstream.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("UPSTREAM_MAX_CONCURRENCY must be positive"))
	}
	if c.Upstream.RatePerMinute < 0 {
		errs = append(errs, errors.New("UPSTREAM_RATE_PER_MINUTE must not be negative"))
	}
	if c.Upstream.BreakerFailures <= 0 {
		errs = append(errs, errors.New("BREAKER_FAILURES must be positive"))
	}
	return errors.Join(errs...)
}

// GuardConfig converts the upstream settings for llm.NewGuardedClient.
func (c *AppConfig) GuardConfig() llm.GuardConfig {
	g := llm.DefaultGuardConfig()
	g.Timeout = c.Upstream.Timeout
	g.MaxConcurrency = int64(c.Upstream.MaxConcurrency)
	g.RatePerMinute = c.Upstream.RatePerMinute
	g.BreakerFailures = uint32(c.Upstream.BreakerFailures)
	g.BreakerCooldown = c.Upstream.BreakerCooldown
	return g
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are seconds.
		secs, convErr := strconv.Atoi(v)
		if convErr != nil {
			return fmt.Errorf("%s: invalid duration %q", key, v)
		}
		d = time.Duration(secs) * time.Second
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
