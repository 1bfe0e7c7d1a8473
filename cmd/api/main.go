package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botforge/botforge/internal/app/migrate"
	httpx "github.com/botforge/botforge/internal/http"
	"github.com/botforge/botforge/internal/repository/postgres"
	"github.com/botforge/botforge/internal/service/bot"
	"github.com/botforge/botforge/internal/service/deploy"
	"github.com/botforge/botforge/internal/service/execution"
	"github.com/botforge/botforge/internal/service/hooks"
	"github.com/botforge/botforge/internal/service/telemetry"
	"github.com/botforge/botforge/internal/service/watchdog"
	"github.com/botforge/botforge/internal/service/webhook"
	"github.com/botforge/botforge/internal/worker"
	"github.com/botforge/botforge/internal/ws"
	"github.com/botforge/botforge/pkg/config"
	"github.com/botforge/botforge/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("botforge-api", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("could not create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("could not build migration runner", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	telemetrySvc := telemetry.NewService(repo, hub, log, cfg.TelemetryBucketSpan, cfg.TelemetryFlushEvery)
	go telemetrySvc.Run(ctx)

	workers := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueDepth, log)
	workers.Start(ctx)
	defer workers.Stop()

	notifier := hooks.NewAsyncNotifier(hooks.NopHook{}, 10*time.Second, log)

	botSvc := bot.NewService(repo, log)
	deploySvc := deploy.NewService(repo, repo, workers, telemetrySvc, notifier, cfg.DeployDomainSuffix, log)
	executionSvc := execution.NewService(
		repo, repo, repo, workers,
		&execution.LocalExecutor{},
		execution.NewLinearPricer(cfg.PricePerThousandTokens, cfg.PricePerAPICall),
		telemetrySvc, notifier, log)
	webhookSvc := webhook.NewService(repo, repo, executionSvc, cfg.SecretEncryptionKey, log)

	dog := watchdog.New(repo, repo, watchdog.Config{
		Interval:             cfg.WatchdogInterval,
		DeploymentQueuedTTL:  cfg.DeploymentQueuedTTL,
		DeploymentRunningTTL: cfg.DeploymentRunningTTL,
		ExecutionQueuedTTL:   cfg.ExecutionQueuedTTL,
		ExecutionRunningTTL:  cfg.ExecutionRunningTTL,
	}, log)
	go dog.Run(ctx)

	var limiter httpx.RateLimiter
	if cfg.RateLimitRedisAddr != "" {
		limiter, err = httpx.NewRedisRateLimiter(cfg.RateLimitRedisAddr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, using in-memory limiter", "error", err)
			limiter = httpx.NewMemoryRateLimiter()
		}
	} else {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, botSvc, deploySvc, executionSvc, telemetrySvc, webhookSvc, limiter, cfg.JWTSecret, pool.Ping)
	defer router.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("shutdown complete")
}
