// In file: cmd/pehance/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pehance/pehance/internal/cache"
	"github.com/pehance/pehance/internal/classifier"
	"github.com/pehance/pehance/internal/enhance"
	"github.com/pehance/pehance/internal/format"
	"github.com/pehance/pehance/internal/guardrail"
	"github.com/pehance/pehance/internal/llm"
	"github.com/pehance/pehance/internal/store"
	"github.com/pehance/pehance/internal/vision"
)

// main is the composition root: it loads configuration, builds every service,
// wires them together and runs the server until SIGINT/SIGTERM.
func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	logger.Info("starting pehance", GetBuildInfo().fields()...)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("pehance stopped with error", zap.Error(err))
	}
}

func run(cfg *AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. MODEL CATALOG
	catalog, err := llm.LoadCatalog(cfg.ModelsFile)
	if err != nil {
		return err
	}

	// 2. BACKING SERVICES
	var health []HealthCheck

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis is unreachable, cache and availability data will degrade", zap.Error(err))
		}
		health = append(health, HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		logger.Info("REDIS_URL not set, response cache and model profiles disabled")
	}

	var (
		sessions store.SessionSink
		statuses store.StatusStore
	)
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := store.Migrate(ctx, db.DB()); err != nil {
			return err
		}
		sessions, statuses = db, db
		health = append(health, HealthCheck{Name: "database", Check: db.Ping})
		logger.Info("postgres store ready")
	} else {
		mem := store.NewMemory()
		sessions, statuses = mem, mem
		logger.Info("DATABASE_URL not set, using in-memory store")
	}

	// 3. UPSTREAM CLIENTS
	providers, err := llm.NewProviders(ctx, llm.ProviderKeys{
		Groq:        cfg.GroqAPIKey,
		GroqBaseURL: cfg.GroqBaseURL,
		Gemini:      cfg.GeminiAPIKey,
		Anthropic:   cfg.AnthropicAPIKey,
	}, cfg.GuardConfig(), logger)
	if err != nil {
		return err
	}
	defer providers.Close()

	// The profiler needs redis. Interfaces stay nil without it so the
	// registry, selector and prober skip observation.
	var (
		observer     llm.Observer
		availability llm.AvailabilityChecker
		recorder     llm.ProbeRecorder
	)
	if rdb != nil {
		profiler := llm.NewProfiler(rdb, cfg.Probe.TTL, logger)
		observer, availability, recorder = profiler, profiler, profiler
	}

	registry := llm.NewRegistry(catalog, observer, logger)
	providers.Register(registry)
	selector := llm.NewSelector(catalog, registry, availability, logger)
	prober := llm.NewProber(catalog, registry, registry, recorder, cfg.Probe.Timeout, logger)

	// 4. DOMAIN SERVICES
	handler := NewHandler(HandlerDeps{
		Orchestrator:   enhance.NewOrchestrator(classifier.New(), registry, selector, logger),
		Formatter:      format.NewFormatter(registry, selector, logger),
		Analyzer:       vision.NewAnalyzer(registry, selector, logger),
		Prober:         prober,
		Guard:          guardrail.New(),
		Cache:          cache.New(rdb, "enhance", cfg.CacheTTL, logger),
		Sessions:       sessions,
		Statuses:       statuses,
		Health:         health,
		RequestTimeout: cfg.RequestTimeout,
		RetryAfter:     cfg.Upstream.BreakerCooldown,
		Logger:         logger,
	})
	logger.Info("all services initialized", zap.Int("providers", registry.Providers()), zap.Int("models", len(catalog.Models)))

	// 5. BACKGROUND PROCESSES
	// Probe results are only kept in redis, so without it there is nothing to refresh.
	interval := cfg.Probe.Interval
	if recorder == nil {
		interval = 0
	}
	refresherDone := make(chan struct{})
	go func() {
		defer close(refresherDone)
		startAvailabilityRefresher(ctx, prober, interval, logger)
	}()

	// 6. WEB SERVER
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newEngine(handler, cfg.CORSOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err = runServerWithGracefulShutdown(ctx, srv, logger)
	stop()
	<-refresherDone
	return err
}

// startAvailabilityRefresher re-probes every model on a ticker until ctx ends.
// A zero interval disables it.
func startAvailabilityRefresher(ctx context.Context, prober *llm.Prober, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("availability refresher started", zap.Duration("interval", interval))
	refresh := func() {
		summary := llm.Summarize(prober.ProbeAll(ctx, true))
		logger.Info("model availability refreshed",
			zap.Int("available", summary.AvailableModels),
			zap.Int("total", summary.TotalModels))
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			logger.Info("availability refresher stopped")
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// runServerWithGracefulShutdown serves until ctx is cancelled, then drains
// in-flight requests for up to 10 seconds.
func runServerWithGracefulShutdown(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server exited gracefully")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return config.Build()
}
