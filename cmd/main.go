package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/rankready/internal/adapters/generation"
	"github.com/okian/rankready/internal/adapters/http/api"
	"github.com/okian/rankready/internal/adapters/http/site"
	"github.com/okian/rankready/internal/adapters/http/swagger"
	"github.com/okian/rankready/internal/adapters/repository"
	app "github.com/okian/rankready/internal/app"
	"github.com/okian/rankready/internal/config"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/pkg/logger"
	"github.com/okian/rankready/pkg/metrics"
	"github.com/okian/rankready/pkg/retry"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 2 * time.Minute
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to set log level: %w", err)
	}
	log := logger.Get()

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)
	watchConfig(ctx, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// buildService wires the store, scoring engine and optional generator from cfg.
func buildService(ctx context.Context, cfg *config.Config) (*app.Service, error) {
	benchmarks, err := scoring.DefaultBenchmarks.WithDivisors(cfg.BenchmarkDivisors)
	if err != nil {
		return nil, fmt.Errorf("benchmark divisors: %w", err)
	}

	store, err := repository.Open(ctx, repository.Config{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	opts := []app.Option{
		app.WithLogger(logger.Get().Named("service")),
		app.WithStore(store),
		app.WithEngine(scoring.NewEngine(scoring.WithBenchmarks(benchmarks))),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithTopK(cfg.RetrievalTopK),
		app.WithRecommendationCache(cfg.RecommendationCacheTTL(), cfg.CacheMaxEntries),
		app.WithRankingYear(cfg.RankingYear),
		app.WithJobTimeout(cfg.GenerationTimeout() * time.Duration(cfg.GenerationMaxAttempts)),
	}
	if cfg.GenerationEnabled {
		gen, err := buildGenerator(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, app.WithGenerator(gen))
	}
	return app.New(opts...), nil
}

func buildGenerator(cfg *config.Config) (*generation.Client, error) {
	client, err := generation.NewClient(cfg.GenerationBaseURL,
		generation.WithModel(cfg.GenerationModel),
		generation.WithHTTPClient(&http.Client{Timeout: cfg.GenerationTimeout()}),
		generation.WithRateLimit(cfg.GenerationRatePerSecond, cfg.GenerationBurst),
		generation.WithRetryOptions(
			retry.WithMaxAttempts(cfg.GenerationMaxAttempts),
			retry.WithBaseDelay(cfg.GenerationBaseDelay()),
			retry.WithMaxDelay(cfg.GenerationMaxDelay()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	return client, nil
}

// newHandler registers the landing page, docs and business routes.
func newHandler(ctx context.Context, svc *app.Service, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithSearchTopK(cfg.RetrievalTopK),
	)
	apiServer.Register(ctx, mux)
	return mux
}

// watchConfig applies log level changes from the config file while running.
func watchConfig(ctx context.Context, log logger.Logger) {
	path := os.Getenv(config.EnvConfig)
	if path == "" {
		return
	}
	err := config.Watch(ctx, path, func(c *config.Config) {
		if err := logger.SetLevelString(c.LogLevel); err != nil {
			log.Warn(ctx, "ignoring log level", logger.String("log_level", c.LogLevel), logger.Error(err))
		}
	})
	if err != nil {
		log.Warn(ctx, "config watch disabled", logger.Error(err))
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
