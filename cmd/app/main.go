package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"indexwatch/internal/app"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := os.Getenv("INDEXWATCH_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	orch, err := bootstrap.BuildOrchestrator()
	if err != nil {
		slog.Error("Wiring failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Background workers (live feed, inbound listener)
	bootstrap.Start(ctx)
	defer bootstrap.Stop()

	slog.InfoContext(ctx, "Watcher operational. Press Ctrl+C to exit.")

	// 4. Tick loop. Returns once the stop signal has been handled and the
	// orchestrator reaches its terminal state.
	orch.Run(ctx)

	slog.Info("Shutdown complete")
}
