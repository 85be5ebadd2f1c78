package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/store"
	"github.com/studiokit/studiokit/internal/types"
)

// fakeRemote is an in-memory stand-in for the remote system of record.
// It deduplicates inserts on the idempotency key, the behavior the real
// remote is expected to provide.
type fakeRemote struct {
	mu sync.Mutex

	rows map[types.Collection]map[string]types.Row
	keys map[string]bool // seen idempotency keys

	fetchOrder  []types.Collection
	fetchOpts   map[types.Collection]gateway.FetchOptions
	failFetch   map[types.Collection][]error // consumed front-first
	failMutate  map[string]error             // by target id
	insertCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:       make(map[types.Collection]map[string]types.Row),
		keys:       make(map[string]bool),
		fetchOpts:  make(map[types.Collection]gateway.FetchOptions),
		failFetch:  make(map[types.Collection][]error),
		failMutate: make(map[string]error),
	}
}

func (f *fakeRemote) seed(collection types.Collection, row types.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[collection] == nil {
		f.rows[collection] = make(map[string]types.Row)
	}
	f.rows[collection][row.ID] = row
}

func (f *fakeRemote) get(collection types.Collection, id string) (types.Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[collection][id]
	return row, ok
}

func (f *fakeRemote) FetchAll(ctx context.Context, collection types.Collection, ownerID string, opts gateway.FetchOptions) ([]types.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchOrder = append(f.fetchOrder, collection)
	f.fetchOpts[collection] = opts

	if errs := f.failFetch[collection]; len(errs) > 0 {
		err := errs[0]
		f.failFetch[collection] = errs[1:]
		return nil, err
	}

	var out []types.Row
	for _, row := range f.rows[collection] {
		if row.OwnerID == ownerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeRemote) Insert(ctx context.Context, collection types.Collection, payload json.RawMessage, idempotencyKey string) (types.Row, error) {
	row, err := types.RowFromJSON(payload)
	if err != nil {
		return types.Row{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failMutate[row.ID]; err != nil {
		return types.Row{}, err
	}

	f.insertCalls++
	if f.keys[idempotencyKey] {
		// Duplicate replay of a record whose first attempt landed.
		return f.rows[collection][row.ID], nil
	}
	f.keys[idempotencyKey] = true

	if f.rows[collection] == nil {
		f.rows[collection] = make(map[string]types.Row)
	}
	f.rows[collection][row.ID] = row
	return row, nil
}

func (f *fakeRemote) Update(ctx context.Context, collection types.Collection, id, ownerID string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failMutate[id]; err != nil {
		return err
	}

	existing, ok := f.rows[collection][id]
	if !ok || existing.OwnerID != ownerID {
		return fmt.Errorf("update %s/%s: %w", collection, id, gateway.ErrNotFound)
	}

	var base, patch map[string]any
	if err := json.Unmarshal(existing.Payload, &base); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, &patch); err != nil {
		return err
	}
	for k, v := range patch {
		base[k] = v
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return err
	}
	merged, err := types.RowFromJSON(raw)
	if err != nil {
		return err
	}
	f.rows[collection][id] = merged
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, collection types.Collection, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failMutate[id]; err != nil {
		return err
	}

	existing, ok := f.rows[collection][id]
	if !ok || existing.OwnerID != ownerID {
		return fmt.Errorf("delete %s/%s: %w", collection, id, gateway.ErrNotFound)
	}
	delete(f.rows[collection], id)
	return nil
}

func newTestCache(t *testing.T) *store.CacheStore {
	t.Helper()
	s, err := store.NewCacheStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustRow(t *testing.T, v any) types.Row {
	t.Helper()
	row, err := types.RowFromEntity(v)
	if err != nil {
		t.Fatal(err)
	}
	return row
}
