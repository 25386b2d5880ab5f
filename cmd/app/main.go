package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/app"
)

func main() {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing session is not fatal: paper mode trades without one and
	// live mode can log in later through the control surface.
	bootstrap.EstablishSession(ctx)
	bootstrap.Keeper.Start(ctx)
	defer bootstrap.Keeper.Stop()

	go bootstrap.Supervisor.Run(ctx)
	go bootstrap.Hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- bootstrap.Server.Start() }()

	slog.InfoContext(ctx, "✨ BetfairOdds backend operational. Press Ctrl+C to exit.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("❌ Server failed", slog.Any("error", err))
		}
		stop()
	}

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bootstrap.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", slog.Any("error", err))
	}
}
