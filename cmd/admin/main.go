package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
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

	logger, logCloser, err := core.SetupLogging(cfg, "admin.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// Gorilla cookie store for the browser session.
	cookies := sessions.NewCookieStore([]byte(cfg.SessionKey))
	remote := core.NewHTTPAuthClient(cfg.AuthBaseURL, cfg.AuthTimeout)

	var slots core.SlotOpener
	switch cfg.SessionStore {
	case core.SessionStoreRedis:
		slots = core.NewRedisSlots(cfg, cookies, redisClient, logger)
	default:
		slots = core.NewCookieSlots(cfg, cookies, logger)
	}

	var notifier core.LogoutNotifier = core.NopLogoutNotifier{}
	var drain func()
	switch cfg.LogoutNotify {
	case core.LogoutNotifyAsync:
		n := core.NewAsyncLogoutNotifier(remote, cfg.AuthTimeout, logger)
		notifier, drain = n, n.Wait
	case core.LogoutNotifyQueue:
		n := core.NewQueueLogoutNotifier(core.NewRedisQueue(redisClient), logger)
		notifier, drain = n, n.Wait
	}

	deps := core.RouterDeps{
		Cookies: cookies,
		Slots:   slots,
		Remote:  remote,
		Auth: core.AuthOptions{
			Lifetime: cfg.SessionLifetime,
			Notifier: notifier,
			Logger:   logger,
		},
		Logger: logger,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	router := core.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting admin shell",
		zap.String("addr", srv.Addr),
		zap.String("session_store", cfg.SessionStore),
		zap.String("logout_notify", cfg.LogoutNotify),
		zap.String("auth_base_url", cfg.AuthBaseURL),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}

	if drain != nil {
		drain()
	}
	logger.Info("admin shell stopped")
}
