// Command orchestrand is the background daemon: it runs the queue
// dispatcher's per-stage worker pools and the lease reclaimer's scan loop
// against a single storage root until signalled to stop.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"jobforge/internal/config"
	"jobforge/internal/core"
	"jobforge/internal/daemon"
	"jobforge/internal/logging"
	"jobforge/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path, exists, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	created := false
	if !exists {
		if err := config.CreateSample(path); err != nil {
			log.Fatalf("write default config: %v", err)
		}
		created = true
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, logPath, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if created {
		logger.Info("wrote default configuration", slog.String("path", path))
	}

	layout := storage.New(cfg.Storage.Root)
	handlers := buildHandlers(cfg, layout, logger)
	c, err := core.New(cfg, logger, handlers)
	if err != nil {
		logger.Error("wire core context", slog.Any("error", err))
		return
	}
	defer c.Close()

	d, err := daemon.New(c, logger, logPath)
	if err != nil {
		logger.Error("construct daemon", slog.Any("error", err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", slog.Any("error", err))
		return
	}
	defer d.Close()

	logger.Info("orchestrand running", slog.String("storageRoot", cfg.Storage.Root))
	<-ctx.Done()
	logger.Info("orchestrand shutting down")
}
