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

	logger, logCloser, err := core.SetupLogging(cfg, "authstub.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	stub, err := core.NewStubAuthServer(cfg.StubSecret, cfg.StubTokenTTL, logger)
	if err != nil {
		logger.Fatal("failed to create stub", zap.Error(err))
	}
	if err := core.BootstrapStubUser(ctx, stub, cfg); err != nil {
		logger.Fatal("bootstrap stub user failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.StubPort),
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting auth stub", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("stub server failed", zap.Error(err))
	}
}
