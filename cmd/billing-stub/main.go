package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexbotov/gaming-billing/internal/config"
	"github.com/alexbotov/gaming-billing/internal/stub"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg := config.Load()
	if len(cfg.Stub.Services) == 0 {
		logger.Error("no services configured, set GAMING_BILLING_STUB_SERVICES=name=secret,...")
		os.Exit(1)
	}

	stubCfg := stub.DefaultConfig()
	stubCfg.Services = cfg.Stub.Services
	stubCfg.Headers = cfg.Client.ToClientConfig().Headers
	stubCfg.Deviation = cfg.Stub.Deviation
	stubCfg.Logger = logger

	billing, err := stub.New(stubCfg)
	if err != nil {
		logger.Error("invalid stub configuration", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Stub.Addr,
		Handler:      billing.SetupRouter(),
		ReadTimeout:  cfg.Stub.ReadTimeout,
		WriteTimeout: cfg.Stub.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("billing stub listening", "addr", srv.Addr, "services", len(stubCfg.Services))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
