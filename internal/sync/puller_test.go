package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/studiokit/studiokit/internal/gateway"
	"github.com/studiokit/studiokit/internal/types"
)

const sixMonths = 6 * 30 * 24 * time.Hour

func TestPuller_FixedCollectionOrder(t *testing.T) {
	remote := newFakeRemote()
	cache := newTestCache(t)
	p := NewPuller(cache, remote, sixMonths, 0)

	if err := p.PullAll(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	want := []types.Collection{
		types.CollectionClients,
		types.CollectionAppointments,
		types.CollectionServices,
		types.CollectionServiceCategories,
		types.CollectionServiceAreas,
	}
	if len(remote.fetchOrder) != len(want) {
		t.Fatalf("expected %d fetches, got %d", len(want), len(remote.fetchOrder))
	}
	for i, c := range want {
		if remote.fetchOrder[i] != c {
			t.Errorf("fetch %d: expected %s, got %s", i, c, remote.fetchOrder[i])
		}
	}
}

func TestPuller_Completeness(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(types.CollectionClients, mustRow(t, types.Client{ID: "c1", OwnerID: "u1", Name: "Ana"}))
	remote.seed(types.CollectionClients, mustRow(t, types.Client{ID: "c2", OwnerID: "u1", Name: "Bia"}))
	remote.seed(types.CollectionServices, mustRow(t, types.Service{ID: "s1", OwnerID: "u1", Name: "Makeup", Price: 150, IsActive: true}))

	cache := newTestCache(t)
	p := NewPuller(cache, remote, sixMonths, 0)

	if err := p.PullAll(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	clients, err := cache.ListRows(context.Background(), types.CollectionClients, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 2 {
		t.Errorf("expected every remote client mirrored, got %d", len(clients))
	}
	services, err := cache.ListRows(context.Background(), types.CollectionServices, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 {
		t.Errorf("expected remote service mirrored, got %d", len(services))
	}
}

func TestPuller_AppointmentLookbackAndActiveServices(t *testing.T) {
	remote := newFakeRemote()
	cache := newTestCache(t)
	p := NewPuller(cache, remote, sixMonths, 0)

	if err := p.PullAll(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	apptOpts := remote.fetchOpts[types.CollectionAppointments]
	if apptOpts.ScheduledOnOrAfter == "" {
		t.Error("expected appointments fetched with a look-back bound")
	}
	wantCutoff := time.Now().UTC().Add(-sixMonths).Format("2006-01-02")
	if apptOpts.ScheduledOnOrAfter != wantCutoff {
		t.Errorf("expected cutoff %s, got %s", wantCutoff, apptOpts.ScheduledOnOrAfter)
	}

	if !remote.fetchOpts[types.CollectionServices].ActiveOnly {
		t.Error("expected services fetched active-only")
	}
	if remote.fetchOpts[types.CollectionClients].ActiveOnly {
		t.Error("active-only must not leak to other collections")
	}
}

func TestPuller_AbortsOnFetchFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(types.CollectionClients, mustRow(t, types.Client{ID: "c1", OwnerID: "u1", Name: "Ana"}))
	remote.failFetch[types.CollectionAppointments] = []error{
		fmt.Errorf("fetch: %w", gateway.ErrRemoteRejected),
	}

	cache := newTestCache(t)
	p := NewPuller(cache, remote, sixMonths, 0)

	err := p.PullAll(context.Background(), "u1")
	if !errors.Is(err, gateway.ErrRemoteRejected) {
		t.Fatalf("expected surfaced fetch failure, got %v", err)
	}

	// The collection pulled before the failure is kept (no rollback).
	clients, lerr := cache.ListRows(context.Background(), types.CollectionClients, "u1")
	if lerr != nil {
		t.Fatal(lerr)
	}
	if len(clients) != 1 {
		t.Errorf("expected partially-pulled collection kept, got %d rows", len(clients))
	}

	// Collections after the failing one were never fetched.
	for _, c := range remote.fetchOrder {
		if c == types.CollectionServices {
			t.Error("expected pull aborted before services")
		}
	}
}

func TestPuller_RetriesTransientFetchFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(types.CollectionClients, mustRow(t, types.Client{ID: "c1", OwnerID: "u1", Name: "Ana"}))
	remote.failFetch[types.CollectionClients] = []error{
		fmt.Errorf("fetch: %w", gateway.ErrNetwork),
	}

	cache := newTestCache(t)
	p := NewPuller(cache, remote, sixMonths, 2)

	if err := p.PullAll(context.Background(), "u1"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}

	clients, err := cache.ListRows(context.Background(), types.CollectionClients, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 1 {
		t.Errorf("expected client mirrored after retry, got %d", len(clients))
	}
}

func TestPuller_DoesNotRetryRemoteRejection(t *testing.T) {
	remote := newFakeRemote()
	remote.failFetch[types.CollectionClients] = []error{
		fmt.Errorf("fetch: %w", gateway.ErrRemoteRejected),
	}

	cache := newTestCache(t)
	p := NewPuller(cache, remote, 0, 3)

	if err := p.PullAll(context.Background(), "u1"); !errors.Is(err, gateway.ErrRemoteRejected) {
		t.Fatalf("expected immediate failure, got %v", err)
	}

	var clientFetches int
	for _, c := range remote.fetchOrder {
		if c == types.CollectionClients {
			clientFetches++
		}
	}
	if clientFetches != 1 {
		t.Errorf("expected a single fetch attempt, got %d", clientFetches)
	}
}
