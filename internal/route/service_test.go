package route_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/snapshot"
)

func newService(repo route.Repository, blobs snapshot.Store) *route.Service {
	return route.NewService(route.ServiceConfig{
		Repository: repo,
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
		Now: func() time.Time {
			return time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
		},
	})
}

func TestService_Save(t *testing.T) {
	repo := route.NewInMemoryRepository()
	blobs := snapshot.NewMemoryStore()
	service := newService(repo, blobs)
	ctx := context.Background()

	anchor := "anch_test"
	rt, err := service.Save(ctx, route.SaveInput{
		Items: []route.Item{
			route.Move(2.5, 0),
			route.Event(route.EventDoor),
			route.Move(1.5, math.Pi/2),
		},
		StartHeading: 0.25,
		Snapshot:     []byte("worldmap"),
		AnchorKey:    &anchor,
	})
	if err != nil {
		t.Fatalf("failed to save route: %v", err)
	}

	if !strings.HasPrefix(rt.ID, "rte_") {
		t.Errorf("expected route ID to start with 'rte_', got %q", rt.ID)
	}
	if rt.Name != "Route 2025-06-14 10:30:00" {
		t.Errorf("unexpected generated name %q", rt.Name)
	}
	if rt.TotalDistance != 4.0 {
		t.Errorf("expected total distance 4.0, got %v", rt.TotalDistance)
	}
	if rt.MoveCount() != 2 || rt.EventCount() != 1 {
		t.Errorf("expected 2 moves and 1 event, got %d/%d", rt.MoveCount(), rt.EventCount())
	}
	if rt.SnapshotKey == nil {
		t.Fatal("expected snapshot key to be set")
	}
	if blobs.Len() != 1 {
		t.Errorf("expected 1 stored blob, got %d", blobs.Len())
	}

	// Total distance must be identical after a reload.
	reloaded, err := service.Get(ctx, rt.ID)
	if err != nil {
		t.Fatalf("failed to reload route: %v", err)
	}
	if reloaded.TotalDistance != route.TotalDistanceOf(reloaded.Items) {
		t.Errorf("reloaded total distance %v does not match recomputed %v",
			reloaded.TotalDistance, route.TotalDistanceOf(reloaded.Items))
	}
	if reloaded.TotalDistance != rt.TotalDistance {
		t.Errorf("total distance changed across reload: %v != %v", reloaded.TotalDistance, rt.TotalDistance)
	}
}

func TestService_Save_NoItems(t *testing.T) {
	service := newService(route.NewInMemoryRepository(), snapshot.NewMemoryStore())

	_, err := service.Save(context.Background(), route.SaveInput{})
	if !errors.Is(err, route.ErrNoItems) {
		t.Errorf("expected ErrNoItems, got %v", err)
	}
}

func TestService_Save_WithoutSnapshot(t *testing.T) {
	service := newService(route.NewInMemoryRepository(), snapshot.NewMemoryStore())

	rt, err := service.Save(context.Background(), route.SaveInput{
		Items: []route.Item{route.Move(1, 0)},
	})
	if err != nil {
		t.Fatalf("failed to save route: %v", err)
	}
	if rt.SnapshotKey != nil {
		t.Error("expected no snapshot key for snapshot-less save")
	}
	if rt.AnchorKey != nil {
		t.Error("expected no anchor key")
	}
}

func TestService_Snapshot_RoundTrip(t *testing.T) {
	blobs := snapshot.NewMemoryStore()
	service := newService(route.NewInMemoryRepository(), blobs)
	ctx := context.Background()

	rt, err := service.Save(ctx, route.SaveInput{
		Items:    []route.Item{route.Move(1, 0)},
		Snapshot: []byte("worldmap"),
	})
	if err != nil {
		t.Fatalf("failed to save route: %v", err)
	}

	blob, err := service.Snapshot(ctx, rt)
	if err != nil {
		t.Fatalf("failed to fetch snapshot: %v", err)
	}
	if string(blob) != "worldmap" {
		t.Errorf("unexpected snapshot blob %q", blob)
	}
}

func TestService_Snapshot_AbsentIsNil(t *testing.T) {
	service := newService(route.NewInMemoryRepository(), snapshot.NewMemoryStore())

	blob, err := service.Snapshot(context.Background(), &route.Route{ID: "rte_x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blob != nil {
		t.Errorf("expected nil blob, got %v", blob)
	}
}

func TestService_Delete_PrunesSnapshot(t *testing.T) {
	blobs := snapshot.NewMemoryStore()
	service := newService(route.NewInMemoryRepository(), blobs)
	ctx := context.Background()

	rt, err := service.Save(ctx, route.SaveInput{
		Items:    []route.Item{route.Move(1, 0)},
		Snapshot: []byte("worldmap"),
	})
	if err != nil {
		t.Fatalf("failed to save route: %v", err)
	}

	if err := service.Delete(ctx, rt.ID); err != nil {
		t.Fatalf("failed to delete route: %v", err)
	}

	if _, err := service.Get(ctx, rt.ID); !errors.Is(err, route.ErrRouteNotFound) {
		t.Errorf("expected ErrRouteNotFound after delete, got %v", err)
	}
	if blobs.Len() != 0 {
		t.Errorf("expected snapshot blob to be pruned, %d remain", blobs.Len())
	}
}

func TestService_Delete_NotFound(t *testing.T) {
	service := newService(route.NewInMemoryRepository(), snapshot.NewMemoryStore())

	err := service.Delete(context.Background(), "rte_missing")
	if !errors.Is(err, route.ErrRouteNotFound) {
		t.Errorf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestService_List_NewestFirst(t *testing.T) {
	repo := route.NewInMemoryRepository()
	ctx := context.Background()

	older := &route.Route{ID: "rte_old", Name: "old", Items: []route.Item{route.Move(1, 0)},
		TotalDistance: 1, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &route.Route{ID: "rte_new", Name: "new", Items: []route.Item{route.Move(2, 0)},
		TotalDistance: 2, CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	for _, rt := range []*route.Route{older, newer} {
		if err := repo.Create(ctx, rt); err != nil {
			t.Fatalf("failed to create route: %v", err)
		}
	}

	service := newService(repo, snapshot.NewMemoryStore())
	summaries, err := service.List(ctx)
	if err != nil {
		t.Fatalf("failed to list routes: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != "rte_new" || summaries[1].ID != "rte_old" {
		t.Errorf("expected newest first, got %q then %q", summaries[0].ID, summaries[1].ID)
	}
}
