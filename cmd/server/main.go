// Command server runs the EscrowPi HTTP API.
package main

import (
	"context"
	"os"

	"github.com/escrowpi/escrowpi/internal/config"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/server"
)

// Stamped with -ldflags "-X main.version=... -X main.commit=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("invalid configuration", "error", err)
		return 1
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	server.Version = version
	logger.Info("escrowpi starting",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
		"env", cfg.Env,
		"storage", cfg.StorageBackend(),
		"demo_mode", cfg.DemoMode,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("server setup failed", "error", err)
		return 1
	}
	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server stopped with error", "error", err)
		return 1
	}
	return 0
}
