package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/analytics"
	"github.com/chronoverse/chronoverse-api/internal/config"
	"github.com/chronoverse/chronoverse-api/internal/directive"
	"github.com/chronoverse/chronoverse-api/internal/llm/openai"
	"github.com/chronoverse/chronoverse-api/internal/platform/logger"
	"github.com/chronoverse/chronoverse-api/internal/platform/otel"
	"github.com/chronoverse/chronoverse-api/internal/poem"
	"github.com/chronoverse/chronoverse-api/internal/pricing"
	"github.com/chronoverse/chronoverse-api/internal/ratelimit"
	"github.com/chronoverse/chronoverse-api/internal/server"
	"github.com/chronoverse/chronoverse-api/internal/store/cache"
	"github.com/chronoverse/chronoverse-api/internal/store/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(logger.DefaultConfig())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := otel.InitTracer("chronoverse-api", zlog, os.Stdout)
	if err != nil {
		zlog.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// Persistence and async event ingestion.
	repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN)
	if err != nil {
		zlog.Fatal("storage init failed", zap.Error(err))
	}
	defer func() { _ = repo.Close() }()

	ingestor := analytics.NewIngestor(zlog, repo)
	ingestor.Start(ctx)
	defer ingestor.Stop()

	// Shared cache/lock store, degrading to in-process when Redis is
	// absent or goes away.
	var cacheStore cache.Store = cache.NewMemoryStore()
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		redisStore, err := cache.NewRedisStore(cfg.Redis.URL, "cv")
		if err != nil {
			zlog.Warn("redis unavailable at startup, using in-process cache", zap.Error(err))
		} else {
			cacheStore = cache.NewFailoverStore(redisStore, zlog)
			if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
				redisClient = redis.NewClient(opt)
			}
		}
	}

	limiter := ratelimit.New(redisClient, ratelimit.Limits{
		UserPerMinute:  cfg.RateLimit.UserPerMinute,
		IPPerMinute:    cfg.RateLimit.IPPerMinute,
		TokenPerMinute: cfg.RateLimit.TokenPerMinute,
	}, zlog)

	// Pricing must cover every model routing can pick, or the budget
	// gate runs blind.
	prices := pricing.NewTable(pricingFromConfig(cfg))
	if err := prices.Validate(cfg.ActiveModels()); err != nil {
		zlog.Fatal("pricing validation failed", zap.Error(err))
	}

	adapter, err := openai.NewAdapter(openai.Options{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Timeout:           time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
		ReasoningFamilies: cfg.OpenAI.ReasoningFamilies,
		Verbosity:         cfg.OpenAI.Verbosity,
		ReasoningEffort:   cfg.OpenAI.ReasoningEffort,
	}, zlog)
	if err != nil {
		zlog.Fatal("adapter init failed", zap.Error(err))
	}

	svc := poem.New(poem.Options{
		Experiment:     cfg.Experiment,
		DailyBudgetUSD: cfg.Budget.DailyUSD,
		CacheTTL:       time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		LockWait:       time.Duration(cfg.Cache.LockWaitSeconds) * time.Second,
		LockTTL:        time.Duration(cfg.Cache.LockTTLSeconds) * time.Second,
	}, adapter, cacheStore, repo.Events(), ingestor, directive.NewSelector(), prices, zlog)

	srv := server.New(cfg, zlog, svc, repo, limiter)

	go CheckForUpdates()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	go func() {
		zlog.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("mode", cfg.Experiment.Mode),
			zap.String("primary_model", cfg.Experiment.PrimaryModel))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}

func pricingFromConfig(cfg *config.Config) map[string]pricing.ModelPrice {
	prices := make(map[string]pricing.ModelPrice, len(cfg.Pricing))
	for name, p := range cfg.Pricing {
		prices[name] = pricing.ModelPrice{
			PromptPerMillion:     p.PromptPerMillion,
			CompletionPerMillion: p.CompletionPerMillion,
		}
	}
	return prices
}
