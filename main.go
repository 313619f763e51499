package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/EPecherkin/catty-bills/config"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/files"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/server"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Printf("{\"error\": \"panic in main: %v\"}\n", err)
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cfg, err := initialize()
	if err != nil {
		deps.Logger.With(logger.ERROR, err).Error("Initialization failed")
		os.Exit(1)
	}
	defer closeDeps(deps)

	raw := string(server.ModeApi)
	if len(os.Args) > 1 {
		raw = os.Args[1]
	}
	mode, err := server.ParseMode(raw)
	if err != nil {
		deps.Logger.With(logger.ERROR, err).Error("Invalid arguments")
		os.Exit(1)
	}
	deps.Logger.Info(fmt.Sprintf("running in '%s' mode", mode))

	srv, err := server.NewServer(ctx, cfg, mode, deps)
	if err != nil {
		deps.Logger.With(logger.ERROR, err).Error("Initialization failed")
		os.Exit(1)
	}
	if err := srv.Run(ctx, mode); err != nil {
		deps.Logger.With(logger.ERROR, err).Error("Server failed")
		os.Exit(1)
	}
}

// initialize always returns deps with a usable logger, even on failure.
func initialize() (deps.Deps, *config.Config, error) {
	result := deps.Deps{Logger: logger.NewLogger("info")}

	cfg, err := config.Load()
	if err != nil {
		return result, nil, fmt.Errorf("loading config: %w", err)
	}
	lgr := logger.NewLogger(cfg.LogLevel)
	result.Logger = lgr

	dbc, err := db.NewConnection(cfg.DatabaseURL, lgr)
	if err != nil {
		return result, nil, fmt.Errorf("initializing database: %w", err)
	}
	bucket, err := files.OpenBucket(cfg.UploadDir)
	if err != nil {
		return result, nil, fmt.Errorf("initializing upload bucket: %w", err)
	}
	return deps.NewDeps(lgr, dbc, bucket), cfg, nil
}

func closeDeps(deps deps.Deps) {
	if deps.Files != nil {
		if err := deps.Files.Close(); err != nil {
			deps.Logger.With(logger.ERROR, err).Warn("Failed to close upload bucket")
		}
	}
	if deps.DBC != nil {
		if sqlDB, err := deps.DBC.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
