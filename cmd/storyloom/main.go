package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/dispatch"
	"github.com/storyloom/storyloom/internal/ledger"
	ledgermemory "github.com/storyloom/storyloom/internal/ledger/memory"
	ledgersqlite "github.com/storyloom/storyloom/internal/ledger/sqlite"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/provider"
	"github.com/storyloom/storyloom/internal/registry"
	"github.com/storyloom/storyloom/internal/server"
	"github.com/storyloom/storyloom/internal/telemetry"
	"github.com/storyloom/storyloom/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	// A missing config file is fine; defaults plus environment cover it.
	path := *configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("storyloom", cfg.TraceSampleRatio, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store := newStore(cfg, logger)
	defer store.Close()

	counter := tokens.NewRegistry()

	reg, err := registry.New(cfg, provider.New, logger)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	dispatcher := dispatch.New(reg, store, counter,
		dispatch.PolicyFromConfig(cfg.Retry),
		dispatch.WithLogger(logger))

	manager := pipeline.NewManager(dispatcher, cfg.Generation, counter, logger)

	handlers := server.NewHandlers(manager, reg, store)
	srv := server.New(cfg.Server.Port, logger, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchConfig(ctx, path, reg, logger)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newStore(cfg *config.Config, logger *slog.Logger) ledger.Store {
	if cfg.LedgerPath == "" {
		logger.Info("using in-memory ledger")
		return ledgermemory.New()
	}
	store, err := ledgersqlite.New(cfg.LedgerPath)
	if err != nil {
		log.Fatalf("Failed to open ledger database: %v", err)
	}
	logger.Info("using sqlite ledger", slog.String("path", cfg.LedgerPath))
	return store
}

func watchConfig(ctx context.Context, path string, reg *registry.Registry, logger *slog.Logger) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	watcher, err := config.NewWatcher(path, logger)
	if err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		return
	}
	err = watcher.Watch(ctx, func(cfg *config.Config) {
		if err := reg.Reload(cfg); err != nil {
			logger.Error("config reload failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		logger.Warn("config watch failed", slog.String("error", err.Error()))
	}
}
