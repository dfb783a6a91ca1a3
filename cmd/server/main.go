// Package main is the entry point for the student portal user service.
//
// main stays small: read configuration, build the logger, hand both to
// internal/server and block until shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mipt-portal/userservice/internal/config"
	"github.com/mipt-portal/userservice/internal/server"
)

func main() {
	// -config wins over CONFIG_PATH; with neither, config.yaml is read if present.
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	// === 1. CONFIGURATION ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Validate has already rejected unknown levels.
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// === 3. DATA DIRECTORY ===
	// os.MkdirAll is a no-op when the directory exists (like `mkdir -p`).
	if cfg.Storage.Driver == config.DriverSQLite {
		dbDir := filepath.Dir(cfg.Storage.SQLitePath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
