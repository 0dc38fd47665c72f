// Kestrel - fraud scoring for benefit disbursement data.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command pipeline runs one batch scoring pass: load the raw dataset,
// derive features, score outliers, match duplicates, aggregate risk and
// persist the results for the query service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/store"
)

func main() {
	cfg := domain.LoadConfig()

	rawPath := flag.String("csv", cfg.Store.RawPath, "path to the raw beneficiary CSV")
	flag.Parse()

	setupLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	p, err := pipeline.New(cfg.Scoring, store.NewCSVStore(*rawPath), repo, eventBus)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	summary, err := p.Run(ctx)
	if err != nil {
		slog.Error("scoring run failed", "error", err)
		os.Exit(1)
	}

	if summary.Status == domain.RunDegraded {
		// Output was persisted, but at least one stage passed its input
		// through unscored.
		os.Exit(2)
	}
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
