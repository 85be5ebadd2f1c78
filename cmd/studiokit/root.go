package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/studiokit/studiokit/internal/api"
	"github.com/studiokit/studiokit/internal/config"
	"github.com/studiokit/studiokit/internal/connectivity"
	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/store"
	syncpkg "github.com/studiokit/studiokit/internal/sync"
	"github.com/studiokit/studiokit/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "studiokit",
	Short: "StudioKit - offline-first sync engine",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger before the first log line, so even startup
	// messages honor the configured level, format, and rotation
	initLogger(cfg.Log)
	slog.Info("configuration loaded")
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize the local cache (migrations, WAL mode)
	cache, err := store.NewCacheStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Initialize the remote gateway and connectivity tracking.
	// The process starts offline; the first successful probe flips it.
	gw := gateway.New(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	monitor := connectivity.NewMonitor(false)
	prober := connectivity.NewProber(gw, monitor, time.Duration(cfg.Sync.ProbeInterval))
	slog.Info("gateway initialized", "base_url", cfg.Remote.BaseURL)

	// 6. Wire the sync engine
	puller := syncpkg.NewPuller(cache, gw,
		time.Duration(cfg.Sync.AppointmentLookback), uint64(cfg.Sync.PullRetries))
	queue := syncpkg.NewQueueManager(cache, gw, time.Duration(cfg.Sync.QueueRetention))
	orchestrator := syncpkg.NewOrchestrator(cache, puller, queue, monitor,
		time.Duration(cfg.Sync.DrainDebounce))

	// 7. Initialize HTTP router
	handler := api.NewHandler(cache, orchestrator, cfg.Remote.OwnerID, Version)
	router := api.NewRouter(handler, cfg.Auth.APIKey)
	slog.Info("router initialized")

	// 8. Configure HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "connectivity-prober", prober.Run)
	startWorker(ctx, &wg, "sync-orchestrator", orchestrator.Run)
	retention := worker.NewRetentionCoordinator(cache,
		6*time.Hour, time.Duration(cfg.Sync.QueueRetention))
	startWorker(ctx, &wg, "queue-retention", retention.Run)

	// 10. Initial pull once startup settles. Failure is not fatal; the
	// cache serves stale data and the next manual or probe-triggered
	// sync retries.
	startWorker(ctx, &wg, "initial-pull", func(ctx context.Context) {
		if err := orchestrator.PullNow(ctx, cfg.Remote.OwnerID); err != nil {
			slog.Warn("initial pull did not complete", "error", err)
		}
	})

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Wait for workers to complete
	wg.Wait()

	// 13c. Close the store last; workers may write until they stop
	if err := cache.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// initLogger installs the process-wide slog default. With a file
// configured, output goes through lumberjack rotation; otherwise
// stdout.
func initLogger(cfg config.LogConfig) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

func main() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
