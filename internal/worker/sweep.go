package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/snapshot"
)

// SweepJob audits saved routes and prunes snapshot blobs that no route
// references anymore. Route deletes prune their own blob best-effort; this
// job is the backstop for the ones that slipped through.
type SweepJob struct {
	config SweepConfig
	repo   route.Repository
	blobs  snapshot.Store
	logger zerolog.Logger

	metrics *SweepMetrics
}

// SweepMetrics tracks sweep job statistics.
type SweepMetrics struct {
	mu sync.RWMutex

	TotalSweeps      int64
	RoutesAudited    int64
	RoutesFlagged    int64
	OrphansPruned    int64
	DanglingSnapshot int64

	LastSweepAt       time.Time
	LastSweepDuration time.Duration
	TotalDuration     time.Duration
}

// SweepJobConfig holds configuration for creating a SweepJob.
type SweepJobConfig struct {
	Config     SweepConfig
	Repository route.Repository
	Snapshots  snapshot.Store
	Logger     zerolog.Logger
}

// NewSweepJob creates a new maintenance sweep processor.
func NewSweepJob(cfg SweepJobConfig) *SweepJob {
	config := cfg.Config
	if config.Concurrency <= 0 {
		config = DefaultSweepConfig()
	}

	return &SweepJob{
		config:  config,
		repo:    cfg.Repository,
		blobs:   cfg.Snapshots,
		logger:  cfg.Logger,
		metrics: &SweepMetrics{},
	}
}

// SweepResult contains the result of one maintenance sweep.
type SweepResult struct {
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	TotalRoutes   int
	Audited       int
	Flagged       int
	OrphansPruned int
	Findings      []Finding
}

// Finding is one inconsistency discovered during a sweep. Routes are
// immutable, so findings are reported rather than repaired in place.
type Finding struct {
	RouteID string
	Check   string
	Detail  string
}

// Run executes one full sweep: audit every route, then prune orphan blobs.
func (j *SweepJob) Run(ctx context.Context) *SweepResult {
	startTime := time.Now()
	result := &SweepResult{StartTime: startTime}

	summaries, err := j.repo.List(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("sweep aborted, route listing failed")
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		return result
	}
	result.TotalRoutes = len(summaries)

	j.logger.Info().
		Int("total_routes", result.TotalRoutes).
		Int("concurrency", j.config.Concurrency).
		Msg("starting maintenance sweep")

	idsChan := make(chan string, len(summaries))
	resultsChan := make(chan auditResult, len(summaries))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.auditWorker(ctx, idsChan, resultsChan)
		}()
	}

	for _, s := range summaries {
		idsChan <- s.ID
	}
	close(idsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	referenced := make(map[string]bool)
	for ar := range resultsChan {
		result.Audited++
		if len(ar.findings) > 0 {
			result.Flagged++
		}
		result.Findings = append(result.Findings, ar.findings...)
		if ar.snapshotKey != "" {
			referenced[ar.snapshotKey] = true
		}
	}

	if j.config.PruneOrphans {
		result.OrphansPruned = j.pruneOrphans(ctx, referenced)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("audited", result.Audited).
		Int("flagged", result.Flagged).
		Int("orphans_pruned", result.OrphansPruned).
		Msg("maintenance sweep completed")

	return result
}

type auditResult struct {
	routeID     string
	snapshotKey string
	findings    []Finding
}

func (j *SweepJob) auditWorker(ctx context.Context, ids <-chan string, results chan<- auditResult) {
	for id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.auditRoute(ctx, id)
		}
	}
}

// auditRoute checks one route's internal consistency. The cached total
// distance must match its items, and a referenced snapshot blob must still
// exist in the store.
func (j *SweepJob) auditRoute(ctx context.Context, id string) auditResult {
	result := auditResult{routeID: id}

	routeCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	rt, err := j.repo.Get(routeCtx, id)
	if err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			// Deleted between listing and audit.
			return result
		}
		result.findings = append(result.findings, Finding{
			RouteID: id,
			Check:   "load",
			Detail:  err.Error(),
		})
		return result
	}

	if len(rt.Items) == 0 {
		result.findings = append(result.findings, Finding{
			RouteID: id,
			Check:   "items",
			Detail:  "route has no items",
		})
	}

	if j.config.VerifyDistances {
		if got := route.TotalDistanceOf(rt.Items); !closeEnough(got, rt.TotalDistance) {
			result.findings = append(result.findings, Finding{
				RouteID: id,
				Check:   "total_distance",
				Detail:  "cached total distance does not match items",
			})
		}
	}

	if rt.SnapshotKey != nil {
		result.snapshotKey = *rt.SnapshotKey
		if j.config.VerifySnapshots {
			if _, err := j.blobs.Get(routeCtx, *rt.SnapshotKey); err != nil {
				if errors.Is(err, snapshot.ErrSnapshotNotFound) {
					// Replay degrades to fallback placement; worth surfacing.
					result.findings = append(result.findings, Finding{
						RouteID: id,
						Check:   "snapshot",
						Detail:  "referenced snapshot blob is missing",
					})
				} else {
					j.logger.Warn().Err(err).
						Str("route_id", id).
						Msg("snapshot check skipped, store unavailable")
				}
			}
		}
	}

	return result
}

// pruneOrphans deletes blobs whose key no route references. Requires the
// store to enumerate keys; stores that cannot are skipped silently.
func (j *SweepJob) pruneOrphans(ctx context.Context, referenced map[string]bool) int {
	lister, ok := j.blobs.(snapshot.Lister)
	if !ok {
		return 0
	}

	keys, err := lister.Keys(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("orphan prune skipped, key listing failed")
		return 0
	}

	pruned := 0
	for _, key := range keys {
		if referenced[key] {
			continue
		}
		if err := j.blobs.Delete(ctx, key); err != nil {
			j.logger.Warn().Err(err).
				Str("snapshot_key", key).
				Msg("failed to prune orphan blob")
			continue
		}
		j.logger.Info().
			Str("snapshot_key", key).
			Msg("pruned orphan snapshot blob")
		pruned++
	}
	return pruned
}

func closeEnough(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func (j *SweepJob) updateMetrics(result *SweepResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalSweeps++
	j.metrics.RoutesAudited += int64(result.Audited)
	j.metrics.RoutesFlagged += int64(result.Flagged)
	j.metrics.OrphansPruned += int64(result.OrphansPruned)
	for _, f := range result.Findings {
		if f.Check == "snapshot" {
			j.metrics.DanglingSnapshot++
		}
	}
	j.metrics.LastSweepAt = result.EndTime
	j.metrics.LastSweepDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *SweepJob) GetMetrics() SweepMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SweepMetrics{
		TotalSweeps:       j.metrics.TotalSweeps,
		RoutesAudited:     j.metrics.RoutesAudited,
		RoutesFlagged:     j.metrics.RoutesFlagged,
		OrphansPruned:     j.metrics.OrphansPruned,
		DanglingSnapshot:  j.metrics.DanglingSnapshot,
		LastSweepAt:       j.metrics.LastSweepAt,
		LastSweepDuration: j.metrics.LastSweepDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *SweepJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_sweeps":        m.TotalSweeps,
		"routes_audited":      m.RoutesAudited,
		"routes_flagged":      m.RoutesFlagged,
		"orphans_pruned":      m.OrphansPruned,
		"dangling_snapshots":  m.DanglingSnapshot,
		"last_sweep_at":       m.LastSweepAt,
		"last_sweep_duration": m.LastSweepDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
