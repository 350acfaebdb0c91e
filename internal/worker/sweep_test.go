package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/snapshot"
	"github.com/retrace/retrace/internal/worker"
)

func TestDefaultSweepConfig(t *testing.T) {
	cfg := worker.DefaultSweepConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.VerifyDistances)
	assert.True(t, cfg.VerifySnapshots)
	assert.True(t, cfg.PruneOrphans)
}

func seedRoute(t *testing.T, repo route.Repository, id string, items []route.Item, snapshotKey *string) {
	t.Helper()
	err := repo.Create(context.Background(), &route.Route{
		ID:            id,
		Name:          "Route " + id,
		Items:         items,
		TotalDistance: route.TotalDistanceOf(items),
		SnapshotKey:   snapshotKey,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
}

func TestSweepJob_Run_CleanRoutes(t *testing.T) {
	repo := route.NewInMemoryRepository()
	blobs := snapshot.NewMemoryStore()

	key := "snap_a"
	require.NoError(t, blobs.Put(context.Background(), key, []byte("blob")))
	seedRoute(t, repo, "rte_a", []route.Item{route.Move(2, 0)}, &key)
	seedRoute(t, repo, "rte_b", []route.Item{route.Move(1, 0), route.Event(route.EventDoor)}, nil)

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: repo,
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.TotalRoutes)
	assert.Equal(t, 2, result.Audited)
	assert.Equal(t, 0, result.Flagged)
	assert.Empty(t, result.Findings)
	assert.Equal(t, 0, result.OrphansPruned)
	assert.Equal(t, 1, blobs.Len())
}

func TestSweepJob_Run_FlagsDanglingSnapshot(t *testing.T) {
	repo := route.NewInMemoryRepository()
	blobs := snapshot.NewMemoryStore()

	key := "snap_gone"
	seedRoute(t, repo, "rte_a", []route.Item{route.Move(2, 0)}, &key)

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: repo,
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "rte_a", result.Findings[0].RouteID)
	assert.Equal(t, "snapshot", result.Findings[0].Check)
	assert.Equal(t, 1, result.Flagged)
}

func TestSweepJob_Run_PrunesOrphanBlobs(t *testing.T) {
	repo := route.NewInMemoryRepository()
	blobs := snapshot.NewMemoryStore()

	keep := "snap_keep"
	require.NoError(t, blobs.Put(context.Background(), keep, []byte("keep")))
	require.NoError(t, blobs.Put(context.Background(), "snap_orphan", []byte("orphan")))
	seedRoute(t, repo, "rte_a", []route.Item{route.Move(2, 0)}, &keep)

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: repo,
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.OrphansPruned)
	assert.Equal(t, 1, blobs.Len())
	_, err := blobs.Get(context.Background(), keep)
	assert.NoError(t, err)
}

func TestSweepJob_Run_PruneDisabled(t *testing.T) {
	repo := route.NewInMemoryRepository()
	blobs := snapshot.NewMemoryStore()
	require.NoError(t, blobs.Put(context.Background(), "snap_orphan", []byte("orphan")))

	cfg := worker.DefaultSweepConfig()
	cfg.PruneOrphans = false

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Config:     cfg,
		Repository: repo,
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 0, result.OrphansPruned)
	assert.Equal(t, 1, blobs.Len())
}

func TestSweepJob_Run_EmptyRepository(t *testing.T) {
	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: route.NewInMemoryRepository(),
		Snapshots:  snapshot.NewMemoryStore(),
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.NotNil(t, result)
	assert.Equal(t, 0, result.TotalRoutes)
	assert.Equal(t, 0, result.Audited)
}

func TestSweepJob_Run_WithConcurrency(t *testing.T) {
	repo := route.NewInMemoryRepository()
	blobs := snapshot.NewMemoryStore()
	for i := 0; i < 10; i++ {
		seedRoute(t, repo, "rte_"+string(rune('a'+i)), []route.Item{route.Move(1, 0)}, nil)
	}

	cfg := worker.DefaultSweepConfig()
	cfg.Concurrency = 3

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Config:     cfg,
		Repository: repo,
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 10, result.Audited)
	assert.Equal(t, 0, result.Flagged)
}

func TestSweepJob_Run_ContextCancellation(t *testing.T) {
	repo := route.NewInMemoryRepository()
	for i := 0; i < 50; i++ {
		seedRoute(t, repo, "rte_"+string(rune('a'+i%26))+string(rune('a'+i/26)), []route.Item{route.Move(1, 0)}, nil)
	}

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: repo,
		Snapshots:  snapshot.NewMemoryStore(),
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	// Should complete even when most audits were skipped.
	assert.NotNil(t, result)
}

func TestSweepJob_GetMetrics(t *testing.T) {
	repo := route.NewInMemoryRepository()
	seedRoute(t, repo, "rte_a", []route.Item{route.Move(2, 0)}, nil)

	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: repo,
		Snapshots:  snapshot.NewMemoryStore(),
		Logger:     zerolog.Nop(),
	})

	_ = job.Run(context.Background())

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalSweeps)
	assert.Equal(t, int64(1), metrics.RoutesAudited)
	assert.NotZero(t, metrics.LastSweepAt)
}

func TestSweepJob_MetricsSnapshot(t *testing.T) {
	job := worker.NewSweepJob(worker.SweepJobConfig{
		Repository: route.NewInMemoryRepository(),
		Snapshots:  snapshot.NewMemoryStore(),
		Logger:     zerolog.Nop(),
	})

	_ = job.Run(context.Background())

	snap := job.MetricsSnapshot()

	assert.Contains(t, snap, "total_sweeps")
	assert.Contains(t, snap, "routes_audited")
	assert.Contains(t, snap, "orphans_pruned")
	assert.Contains(t, snap, "last_sweep_at")
	assert.Contains(t, snap, "last_sweep_duration")
}

func TestFinding_Fields(t *testing.T) {
	f := worker.Finding{
		RouteID: "rte_a",
		Check:   "total_distance",
		Detail:  "cached total distance does not match items",
	}

	assert.Equal(t, "rte_a", f.RouteID)
	assert.Equal(t, "total_distance", f.Check)
	assert.NotEmpty(t, f.Detail)
}
