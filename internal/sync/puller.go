package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/store"
	"github.com/studiokit/studiokit/internal/types"
)

// Puller mirrors the authoritative remote state of every entity
// collection into the local cache, in fixed dependency order.
type Puller struct {
	store    *store.CacheStore
	gw       Gateway
	lookback time.Duration
	retries  uint64
}

// NewPuller creates a pull synchronizer. lookback bounds how far back
// appointments are mirrored; retries bounds in-place retry of a
// transient fetch failure before the pull is abandoned.
func NewPuller(cache *store.CacheStore, gw Gateway, lookback time.Duration, retries uint64) *Puller {
	return &Puller{
		store:    cache,
		gw:       gw,
		lookback: lookback,
		retries:  retries,
	}
}

// PullAll fetches each collection for ownerID and overwrites the local
// cache. The first fetch failure aborts the remaining collections;
// collections already pulled in this run are kept (the next successful
// pull self-heals by overwrite). A successful return means the cache is
// a point-in-time mirror of the remote state as of the fetch moments.
func (p *Puller) PullAll(ctx context.Context, ownerID string) error {
	started := time.Now()

	for _, collection := range types.Collections {
		rows, err := p.fetch(ctx, collection, ownerID)
		if err != nil {
			return fmt.Errorf("pull %s: %w", collection, err)
		}
		if len(rows) == 0 {
			continue
		}

		if err := p.store.BulkUpsert(ctx, collection, rows); err != nil {
			return fmt.Errorf("pull %s: %w", collection, err)
		}

		slog.Info("collection pulled",
			"component", "sync",
			"action", "pull_collection",
			"collection", string(collection),
			"rows", len(rows),
		)
	}

	slog.Info("pull completed",
		"component", "sync",
		"action", "pull_complete",
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// fetch performs one collection fetch with bounded backoff on
// transient network failures. Remote rejections are not retried here.
func (p *Puller) fetch(ctx context.Context, collection types.Collection, ownerID string) ([]types.Row, error) {
	opts := gateway.FetchOptions{}
	switch collection {
	case types.CollectionAppointments:
		opts.ScheduledOnOrAfter = time.Now().UTC().Add(-p.lookback).Format("2006-01-02")
	case types.CollectionServices:
		opts.ActiveOnly = true
	}

	var rows []types.Row
	backoff := retry.WithMaxRetries(p.retries, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var ferr error
		rows, ferr = p.gw.FetchAll(ctx, collection, ownerID, opts)
		if errors.Is(ferr, gateway.ErrNetwork) {
			return retry.RetryableError(ferr)
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
