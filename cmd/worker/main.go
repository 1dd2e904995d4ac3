package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gestao-admin/core"
)

func main() {
	configPath := pflag.String("config", "", "path to YAML config (overrides CONFIG_FILE)")
	pflag.Parse()

	cfg, err := core.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "worker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := core.NewWorkerID()
	logger = logger.With(zap.String("worker_id", workerID))

	state := core.NewHeartbeatState(workerID, concurrency)
	go state.Start(ctx, redisClient, logger)

	worker := core.NewLogoutWorker(
		core.NewRedisQueue(redisClient),
		core.NewHTTPAuthClient(cfg.AuthBaseURL, cfg.AuthTimeout),
		state,
		core.LogoutWorkerOptions{
			Concurrency: concurrency,
			MaxAttempts: cfg.WorkerMaxAttempts,
			CallTimeout: cfg.AuthTimeout,
		},
		logger,
	)

	logger.Info("logout worker started",
		zap.Int("concurrency", concurrency),
		zap.String("queue", core.PendingLogoutKey),
		zap.String("auth_base_url", cfg.AuthBaseURL),
	)
	worker.Run(ctx)
	logger.Info("logout worker stopped")
}
