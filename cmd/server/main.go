package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/payments/internal/config"
	"github.com/JonMunkholm/payments/internal/core"
	"github.com/JonMunkholm/payments/internal/logging"
	"github.com/JonMunkholm/payments/internal/store"
	"github.com/JonMunkholm/payments/internal/web"
)

func main() {
	// Load .env if present; real environment variables win.
	loaded, err := config.LoadDotEnv()
	if err != nil {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"env_files", loaded,
		"port", cfg.Server.Port,
		"database", cfg.Database.Enabled(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"ledger_shards", cfg.Ledger.Shards,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	// Runs are only persisted when a database is configured.
	var runs core.RunStore
	if cfg.Database.Enabled() {
		pool, err := store.Open(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		st := store.New(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
		runs = st

		slog.Info("connected to database", "name", store.DatabaseName(cfg.Database.URL))
	} else {
		slog.Info("no DATABASE_URL set, runs will not be stored")
	}

	service := core.NewService(core.OptionsFromConfig(cfg), runs)
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
