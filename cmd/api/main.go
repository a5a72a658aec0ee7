package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dropwise/dispatch/internal/config"
	"github.com/dropwise/dispatch/internal/infra"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	backends, err := infra.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	srv, err := server.New(cfg, backends, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		backends.Close()
		os.Exit(1)
	}

	if err := srv.Reconcile(ctx); err != nil {
		logger.Error("reconcile", "error", err)
		backends.Close()
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			backends.Close()
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}

	logger.Info("server exited cleanly")
}
