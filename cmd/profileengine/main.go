// cmd/profileengine runs volume-profile and pivot analytics for one Binance
// symbol.
//
// Reads klines and trades from the Binance public stream, keeps the bar
// buffer, pivots, volume profile and position ledger, and renders a
// snapshot after every trade. Optional sinks: Redis (REDIS_ADDR), SQLite
// journal (SQLITE_PATH), WebSocket gateway and REST API on APP_HTTP_ADDR.
//
// Point FEED_URL at cmd/feedsim to run offline.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trading-profilev1/config"
	"trading-profilev1/internal/app"
	"trading-profilev1/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("profileengine", slog.LevelInfo, os.Stderr)
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	// stdout belongs to the terminal view when it is on.
	var logOut io.Writer = os.Stdout
	if cfg.App.Terminal {
		logOut = os.Stderr
	}
	logger.Init(cfg.App.Name, cfg.Level(), logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg, app.Deps{})
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Run(ctx); err != nil {
		slog.Error("service stopped with error", "error", err)
		svc.Close()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
