// Package worker contains background coordinators that run alongside
// the sync engine on their own tickers.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// PruneStore defines the operations required for queue retention.
// Implemented by store.CacheStore.
type PruneStore interface {
	PruneSettled(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionCoordinator periodically prunes settled operation records
// older than the retention window. Drains prune opportunistically too;
// this coordinator covers long-idle processes that enqueue nothing and
// would otherwise never prune.
type RetentionCoordinator struct {
	store     PruneStore
	interval  time.Duration
	retention time.Duration
}

// NewRetentionCoordinator creates a coordinator for queue retention.
func NewRetentionCoordinator(store PruneStore, interval, retention time.Duration) *RetentionCoordinator {
	return &RetentionCoordinator{
		store:     store,
		interval:  interval,
		retention: retention,
	}
}

// Run starts the retention loop. It blocks until ctx is cancelled.
//
// The first pass waits for the full ticker interval rather than
// running at startup; the startup path already drains, and that drain
// prunes.
func (c *RetentionCoordinator) Run(ctx context.Context) {
	slog.Info("retention coordinator started",
		"component", "worker",
		"worker", "retention-coordinator",
		"interval", c.interval.String(),
		"retention", c.retention.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention coordinator stopped",
				"component", "worker",
				"worker", "retention-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.prune(ctx)
		}
	}
}

// prune removes settled records past the retention cutoff.
func (c *RetentionCoordinator) prune(ctx context.Context) {
	start := time.Now()
	cutoff := start.UTC().Add(-c.retention)

	pruned, err := c.store.PruneSettled(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Error("retention prune failed",
			"component", "worker",
			"worker", "retention-coordinator",
			"error", err,
		)
		return
	}

	if pruned > 0 {
		slog.Info("retention prune completed",
			"component", "worker",
			"worker", "retention-coordinator",
			"records_pruned", pruned,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
