package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiokit/studiokit/internal/config"
	"github.com/studiokit/studiokit/internal/connectivity"
	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/store"
	syncpkg "github.com/studiokit/studiokit/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one pull and drain pass, then exit",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg.Log)

	cache, err := store.NewCacheStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := cmd.Context()

	// One synchronous health probe decides whether the pass can run at
	// all; exiting early beats burning the pull retries on a dead link.
	gw := gateway.New(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	if err := gw.Health(ctx); err != nil {
		return fmt.Errorf("remote unreachable: %w", err)
	}
	monitor := connectivity.NewMonitor(true)

	puller := syncpkg.NewPuller(cache, gw,
		time.Duration(cfg.Sync.AppointmentLookback), uint64(cfg.Sync.PullRetries))
	queue := syncpkg.NewQueueManager(cache, gw, time.Duration(cfg.Sync.QueueRetention))
	orchestrator := syncpkg.NewOrchestrator(cache, puller, queue, monitor,
		time.Duration(cfg.Sync.DrainDebounce))

	stats, err := orchestrator.DrainNow(ctx)
	if err != nil {
		return err
	}
	slog.Info("drain pass finished",
		"attempted", stats.Attempted,
		"settled", stats.Settled,
		"failed", stats.Failed,
	)

	if err := orchestrator.PullNow(ctx, cfg.Remote.OwnerID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"sync complete: %d settled, %d failed, cache refreshed\n",
		stats.Settled, stats.Failed)
	return nil
}
