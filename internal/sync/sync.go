// Package sync implements the offline-first synchronization engine:
// the pull synchronizer that mirrors remote collections into the local
// cache, the operation queue manager that records and replays offline
// mutations, and the orchestrator that serializes sync passes and
// exposes sync state to the rest of the application.
package sync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/types"
)

var (
	// ErrSyncInProgress is returned by a sync entry point that found
	// another pass holding the flag. The attempt is delayed, not lost:
	// the next enqueue or online transition re-triggers it.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when a sync pass is requested while the
	// connectivity monitor reports offline.
	ErrOffline = errors.New("offline")
)

// Gateway is the remote surface the engine replays against. Implemented
// by gateway.Client; tests substitute fakes.
type Gateway interface {
	FetchAll(ctx context.Context, collection types.Collection, ownerID string, opts gateway.FetchOptions) ([]types.Row, error)
	Insert(ctx context.Context, collection types.Collection, payload json.RawMessage, idempotencyKey string) (types.Row, error)
	Update(ctx context.Context, collection types.Collection, id, ownerID string, payload json.RawMessage) error
	Delete(ctx context.Context, collection types.Collection, id, ownerID string) error
}
