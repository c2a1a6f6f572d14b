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

	"github.com/nixpig/buildhook/internal/config"
	"github.com/nixpig/buildhook/internal/httpapi"
	"github.com/nixpig/buildhook/internal/jobs"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func runServer(cfg *config.Config) error {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	registry := jobs.NewRegistry(
		jobs.Options{
			Command:     cfg.Command,
			Workdir:     cfg.Workdir,
			Timeout:     cfg.JobTimeout,
			LogCapacity: cfg.LogCapacity,
		},
		cfg.MaxJobs,
		cfg.GracePeriod,
		logger,
	)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: httpapi.NewRouter(registry, logger),

		// No WriteTimeout: log streams are held open for the lifetime of a
		// job and must not be cut off by the server.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Addr()),
			zap.String("command", cfg.Command),
			zap.String("workdir", cfg.Workdir))

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-done:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	registry.Shutdown()

	logger.Info("stopped")

	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
