package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cristinecula/knowledge-mcp/internal/config"
	"github.com/cristinecula/knowledge-mcp/internal/lock"
	"github.com/cristinecula/knowledge-mcp/internal/routing"
	"github.com/cristinecula/knowledge-mcp/internal/watch"
)

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the tool server and periodic sync loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	lockPath := lockFilePath(cfg)
	pl, ok, err := lock.AcquireProcessLock(lockPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if !ok {
		return fmt.Errorf("serve: another kbd process already holds %s", lockPath)
	}
	defer func() { _ = pl.Release() }()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.Log.Info("kbd serving", "index", cfg.IndexPath, "sync_interval", cfg.SyncInterval())

	if cfg.RoutingPath != "" {
		watcher, err := watch.Watch(cfg.RoutingPath, func() {
			if _, err := routing.Load(cfg.RoutingPath); err != nil {
				a.Log.Warn("routing config changed but failed to validate; keeping previous table until restart", "error", err)
				return
			}
			a.Log.Warn("routing config changed on disk; restart kbd to pick it up")
		})
		if err != nil {
			a.Log.Warn("routing config file watch unavailable, edits require a restart to be noticed at all", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if interval := cfg.SyncInterval(); interval > 0 {
		ticker = time.NewTicker(interval)
		tickC = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-sigCtx.Done():
			a.Log.Info("kbd shutting down")
			if err := a.Scheduler.Flush(context.Background()); err != nil {
				a.Log.Error("final flush failed", "error", err)
			}
			return nil
		case <-tickC:
			runPeriodicSync(context.Background(), a)
		}
	}
}

func runPeriodicSync(ctx context.Context, a *app) {
	if err := a.Sync.Pull(ctx); err != nil {
		a.Log.Warn("periodic sync pull failed; continuing without sync", "error", err)
		return
	}
	if err := a.Sync.Push(ctx); err != nil {
		a.Log.Warn("periodic sync push failed; continuing without sync", "error", err)
	}
}
