package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfbarros/layout-identifier/internal/domain/train"
	"github.com/mfbarros/layout-identifier/pkg/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	deps, err := InitDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to init dependencies", slog.Any("error", err))
		os.Exit(1)
	}

	// Load whatever catalog and artifacts exist; an untrained engine still
	// serves training and catalog endpoints.
	if _, err := deps.Engine.Reload(context.Background()); err != nil {
		logger.Warn("initial model load failed, serving untrained", slog.Any("error", err))
	}

	// Completed runs swap the serving snapshot without manual reloads.
	deps.Trainer.OnSuccess = func(report train.Report) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := deps.Engine.Reload(ctx); err != nil {
			logger.Error("reload after training failed", slog.Any("error", err))
		}
	}

	if err := deps.Scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           deps.Server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Identification can sit behind OCR of several page images.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	<-deps.Scheduler.Stop().Done()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
