package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sewardrichard/cost2class/internal/config"
	"github.com/sewardrichard/cost2class/internal/core"
	"github.com/sewardrichard/cost2class/internal/gateway"
	apphttp "github.com/sewardrichard/cost2class/internal/http"
	applog "github.com/sewardrichard/cost2class/internal/log"
	"github.com/sewardrichard/cost2class/internal/remote"
	"github.com/sewardrichard/cost2class/internal/remote/github"
	"github.com/sewardrichard/cost2class/internal/storage"
	"github.com/sewardrichard/cost2class/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: "cost2class"})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open local storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Saved sync settings win over environment defaults, so credentials
	// entered through the UI survive restarts without touching the env.
	syncCfg := cfg.SyncConfig()
	if saved, ok, err := repo.LoadSyncConfig(ctx); err != nil {
		logger.Warn("Failed to load saved sync settings", "error", err)
	} else if ok && saved.Configured() {
		syncCfg = saved
	}

	var mirror remote.DocumentStore
	if syncCfg.Configured() {
		mirror = github.New(syncCfg)
		logger.Info("Remote sync enabled", "owner", syncCfg.Owner, "repo", syncCfg.Repo)
	} else {
		logger.Info("Remote sync not configured, running offline")
	}

	gw := gateway.New(repo, mirror, logger)
	st := store.New()

	// Local-first startup: load whatever is on disk, then let the remote
	// reconcile in the background. Remote wins when it answers.
	if state, ok := gw.Load(ctx); ok {
		st.Adopt(state)
	}
	go func() {
		rctx, cancel := context.WithTimeout(ctx, cfg.SyncTimeout)
		defer cancel()
		if state, ok := gw.ReconcileRemote(rctx); ok {
			st.Adopt(state)
		}
	}()

	newMirror := func(c core.SyncConfig) remote.DocumentStore { return github.New(c) }
	srv := apphttp.NewServer(":"+cfg.Port, st, gw, repo, newMirror, logger)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting cost2class server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
