package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiokit/studiokit/internal/connectivity"
	"github.com/studiokit/studiokit/internal/store"
	"github.com/studiokit/studiokit/internal/types"
)

// Orchestrator is the single entry point for sync work. It owns the
// instance-scoped mutual-exclusion flag (never a shared module-level
// variable, so independent instances do not interfere), the sync
// cursor, and the single-slot drain scheduler: a drain submission while
// the slot is occupied is coalesced, because the busy pass re-reads the
// queue on its next run.
type Orchestrator struct {
	store    *store.CacheStore
	puller   *Puller
	queue    *QueueManager
	monitor  *connectivity.Monitor
	debounce time.Duration

	syncing atomic.Bool
	drainCh chan struct{}

	mu           sync.Mutex
	lastPullTime *time.Time
	timer        *time.Timer
}

// NewOrchestrator wires the sync components together and subscribes to
// the monitor's became-online event.
func NewOrchestrator(cache *store.CacheStore, puller *Puller, queue *QueueManager, monitor *connectivity.Monitor, debounce time.Duration) *Orchestrator {
	o := &Orchestrator{
		store:    cache,
		puller:   puller,
		queue:    queue,
		monitor:  monitor,
		debounce: debounce,
		drainCh:  make(chan struct{}, 1),
	}
	monitor.OnBecameOnline(o.requestDrain)
	return o
}

// Run services coalesced drain requests until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "sync",
		"worker", "orchestrator",
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "sync",
				"worker", "orchestrator",
				"reason", "context_cancelled",
			)
			return
		case <-o.drainCh:
			if _, err := o.DrainNow(ctx); err != nil && !isExpectedSkip(err) {
				slog.Error("scheduled drain failed",
					"component", "sync",
					"action", "drain_failed",
					"error", err,
				)
			}
		}
	}
}

// Enqueue records a local mutation and, when online, schedules a
// debounced drain. It returns as soon as the record is durable,
// regardless of network state.
func (o *Orchestrator) Enqueue(ctx context.Context, opType types.OpType, collection types.Collection, ownerID string, payload json.RawMessage, targetID string) (*types.Operation, error) {
	op, err := o.queue.Enqueue(ctx, opType, collection, ownerID, payload, targetID)
	if err != nil {
		return nil, err
	}

	if o.monitor.IsOnline() {
		o.scheduleDrain()
	}
	return op, nil
}

// scheduleDrain arms (or re-arms) the debounce timer so rapid
// successive writes batch into one drain request.
func (o *Orchestrator) scheduleDrain() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.timer != nil {
		o.timer.Reset(o.debounce)
		return
	}
	o.timer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		o.timer = nil
		o.mu.Unlock()
		o.requestDrain()
	})
}

// requestDrain submits to the single-slot queue; a submission while the
// slot is full is dropped, not queued.
func (o *Orchestrator) requestDrain() {
	select {
	case o.drainCh <- struct{}{}:
	default:
	}
}

// PullNow mirrors the remote state for ownerID into the local cache.
// It no-ops when offline or when another sync pass holds the flag.
func (o *Orchestrator) PullNow(ctx context.Context, ownerID string) error {
	if !o.monitor.IsOnline() {
		slog.Info("pull skipped",
			"component", "sync",
			"action", "pull_skipped",
			"reason", "offline",
		)
		return ErrOffline
	}
	if !o.syncing.CompareAndSwap(false, true) {
		slog.Info("pull skipped",
			"component", "sync",
			"action", "pull_skipped",
			"reason", "sync_in_progress",
		)
		return ErrSyncInProgress
	}
	defer o.syncing.Store(false)

	if err := o.puller.PullAll(ctx, ownerID); err != nil {
		// lastPullTime is left unchanged on failure.
		return err
	}

	now := time.Now().UTC()
	o.mu.Lock()
	o.lastPullTime = &now
	o.mu.Unlock()
	return nil
}

// DrainNow replays the unsettled operation log. It no-ops when offline
// or when another sync pass holds the flag.
func (o *Orchestrator) DrainNow(ctx context.Context) (DrainStats, error) {
	if !o.monitor.IsOnline() {
		slog.Info("drain skipped",
			"component", "sync",
			"action", "drain_skipped",
			"reason", "offline",
		)
		return DrainStats{}, ErrOffline
	}
	if !o.syncing.CompareAndSwap(false, true) {
		slog.Info("drain skipped",
			"component", "sync",
			"action", "drain_skipped",
			"reason", "sync_in_progress",
		)
		return DrainStats{}, ErrSyncInProgress
	}
	defer o.syncing.Store(false)

	return o.queue.Drain(ctx)
}

// PendingOperationsCount reads through to the unsettled record count.
func (o *Orchestrator) PendingOperationsCount(ctx context.Context) (int, error) {
	return o.store.CountUnsettled(ctx)
}

// LastPullTime returns the time of the last successful pull, or nil if
// none has completed since process start or the last ClearAll.
func (o *Orchestrator) LastPullTime() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastPullTime
}

// Online reports the monitor's current state.
func (o *Orchestrator) Online() bool {
	return o.monitor.IsOnline()
}

// ClearAll is the logout path: every cached row and operation record
// scoped to ownerID is removed in one transaction and the sync cursor
// is reset. An in-flight sync pass is not aborted; its late writes are
// owner-scoped and the next login re-pulls.
func (o *Orchestrator) ClearAll(ctx context.Context, ownerID string) error {
	if err := o.store.ClearOwner(ctx, ownerID); err != nil {
		return err
	}

	o.mu.Lock()
	o.lastPullTime = nil
	o.mu.Unlock()

	slog.Info("local data cleared",
		"component", "sync",
		"action", "clear_all",
	)
	return nil
}

func isExpectedSkip(err error) bool {
	return errors.Is(err, ErrSyncInProgress) || errors.Is(err, ErrOffline)
}
