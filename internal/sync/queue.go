package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/store"
	"github.com/studiokit/studiokit/internal/types"
)

// ErrInvalidOperation marks an enqueue request that fails validation
// before anything is written.
var ErrInvalidOperation = errors.New("invalid operation")

// QueueManager durably records local mutations and replays them against
// the remote system in enqueue order.
type QueueManager struct {
	store     *store.CacheStore
	gw        Gateway
	retention time.Duration
}

// NewQueueManager creates a queue manager. retention bounds how long
// settled records are kept for diagnostics before pruning.
func NewQueueManager(cache *store.CacheStore, gw Gateway, retention time.Duration) *QueueManager {
	return &QueueManager{
		store:     cache,
		gw:        gw,
		retention: retention,
	}
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Attempted int   `json:"attempted"`
	Settled   int   `json:"settled"`
	Failed    int   `json:"failed"`
	Pruned    int64 `json:"pruned"`
}

// Enqueue validates and records one local mutation: the speculative
// write is applied to the cache, then the operation record is durably
// appended. It never touches the network; replay happens on a later
// drain. A storage failure propagates to the caller as-is.
//
// Inserts without an id in the payload are assigned a fresh
// client-generated one, so dependent records enqueued afterwards can
// reference it immediately.
func (q *QueueManager) Enqueue(ctx context.Context, opType types.OpType, collection types.Collection, ownerID string, payload json.RawMessage, targetID string) (*types.Operation, error) {
	if !opType.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, opType)
	}
	if !collection.Valid() {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrInvalidOperation, collection)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidOperation)
	}

	op := types.Operation{
		Type:           opType,
		Collection:     collection,
		TargetID:       targetID,
		OwnerID:        ownerID,
		Payload:        payload,
		IdempotencyKey: types.NewID(),
		QueuedAt:       time.Now().UTC(),
	}

	switch opType {
	case types.OpInsert:
		row, err := prepareInsert(payload, ownerID)
		if err != nil {
			return nil, err
		}
		op.TargetID = row.ID
		op.Payload = row.Payload
		if err := q.store.UpsertRow(ctx, collection, row); err != nil {
			return nil, err
		}

	case types.OpUpdate:
		if targetID == "" {
			return nil, fmt.Errorf("%w: update requires a target id", ErrInvalidOperation)
		}
		if len(payload) == 0 {
			return nil, fmt.Errorf("%w: update requires a payload", ErrInvalidOperation)
		}
		if err := q.applySpeculativeUpdate(ctx, collection, targetID, ownerID, payload); err != nil {
			return nil, err
		}

	case types.OpDelete:
		if targetID == "" {
			return nil, fmt.Errorf("%w: delete requires a target id", ErrInvalidOperation)
		}
		op.Payload = nil
		if err := q.store.DeleteRow(ctx, collection, targetID, ownerID); err != nil {
			return nil, err
		}
	}

	id, err := q.store.Enqueue(ctx, op)
	if err != nil {
		return nil, err
	}
	op.ID = id

	slog.Info("operation enqueued",
		"component", "sync",
		"action", "enqueue",
		"op_id", id,
		"op_type", string(opType),
		"collection", string(collection),
		"target_id", op.TargetID,
	)
	return &op, nil
}

// prepareInsert validates an insert payload and assigns a client
// generated id when absent.
func prepareInsert(payload json.RawMessage, ownerID string) (types.Row, error) {
	if len(payload) == 0 {
		return types.Row{}, fmt.Errorf("%w: insert requires a payload", ErrInvalidOperation)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return types.Row{}, fmt.Errorf("%w: payload is not a JSON object", ErrInvalidOperation)
	}

	switch id := fields["id"].(type) {
	case nil:
		fields["id"] = types.NewID()
	case string:
		if id == "" {
			fields["id"] = types.NewID()
		}
	default:
		return types.Row{}, fmt.Errorf("%w: id must be a string", ErrInvalidOperation)
	}
	fields["user_id"] = ownerID

	raw, err := json.Marshal(fields)
	if err != nil {
		return types.Row{}, fmt.Errorf("encode insert payload: %w", err)
	}
	return types.RowFromJSON(raw)
}

// applySpeculativeUpdate overlays the partial payload on the cached row
// so the change is visible before it settles. A row absent locally is
// not an error; the record is still enqueued and the next pull
// re-mirrors the entity.
func (q *QueueManager) applySpeculativeUpdate(ctx context.Context, collection types.Collection, targetID, ownerID string, payload json.RawMessage) error {
	existing, err := q.store.GetRow(ctx, collection, targetID, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var base, patch map[string]any
	if err := json.Unmarshal(existing.Payload, &base); err != nil {
		return fmt.Errorf("decode cached row: %w", err)
	}
	if err := json.Unmarshal(payload, &patch); err != nil {
		return fmt.Errorf("%w: payload is not a JSON object", ErrInvalidOperation)
	}
	for k, v := range patch {
		base[k] = v
	}
	base["id"] = targetID
	base["user_id"] = ownerID

	raw, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("encode merged row: %w", err)
	}
	row, err := types.RowFromJSON(raw)
	if err != nil {
		return err
	}
	return q.store.UpsertRow(ctx, collection, row)
}

// Drain replays every unsettled operation record in ascending id order,
// strictly sequentially. One record's remote failure is recorded on the
// record and does not block later records; a local storage failure
// aborts the pass, since the sync layer cannot route around the
// on-device store. The unsettled set is read once at entry, so records
// enqueued mid-drain wait for the next pass. After the pass, settled
// records older than the retention cutoff are pruned.
func (q *QueueManager) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	ops, err := q.store.ListUnsettled(ctx)
	if err != nil {
		return stats, err
	}
	stats.Attempted = len(ops)

	for _, op := range ops {
		if err := q.apply(ctx, op); err != nil {
			if isStorageError(err) {
				return stats, err
			}
			if markErr := q.store.MarkFailed(ctx, op.ID, err.Error()); markErr != nil {
				return stats, markErr
			}
			stats.Failed++
			slog.Warn("operation replay failed",
				"component", "sync",
				"action", "drain_op_failed",
				"op_id", op.ID,
				"op_type", string(op.Type),
				"collection", string(op.Collection),
				"error", err,
			)
			continue
		}

		if err := q.store.MarkSettled(ctx, op.ID); err != nil {
			return stats, err
		}
		stats.Settled++
	}

	pruned, err := q.store.PruneSettled(ctx, time.Now().UTC().Add(-q.retention))
	if err != nil {
		return stats, err
	}
	stats.Pruned = pruned

	if stats.Attempted > 0 {
		slog.Info("drain completed",
			"component", "sync",
			"action", "drain_complete",
			"attempted", stats.Attempted,
			"settled", stats.Settled,
			"failed", stats.Failed,
			"pruned", stats.Pruned,
		)
	}
	return stats, nil
}

// apply replays a single operation record against the remote system.
func (q *QueueManager) apply(ctx context.Context, op types.Operation) error {
	switch op.Type {
	case types.OpInsert:
		row, err := q.gw.Insert(ctx, op.Collection, op.Payload, op.IdempotencyKey)
		if err != nil {
			return err
		}
		// Reconcile server-assigned fields back into the cache.
		return q.store.UpsertRow(ctx, op.Collection, row)

	case types.OpUpdate:
		return q.gw.Update(ctx, op.Collection, op.TargetID, op.OwnerID, op.Payload)

	case types.OpDelete:
		err := q.gw.Delete(ctx, op.Collection, op.TargetID, op.OwnerID)
		if errors.Is(err, gateway.ErrNotFound) {
			// Missing on delete is success: the row is already gone.
			return nil
		}
		return err

	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
	}
}

// isStorageError separates local cache failures from remote-call
// failures. Anything not carrying the gateway taxonomy came from the
// local store.
func isStorageError(err error) bool {
	return !errors.Is(err, gateway.ErrNetwork) &&
		!errors.Is(err, gateway.ErrRemoteRejected) &&
		!errors.Is(err, gateway.ErrNotFound)
}
