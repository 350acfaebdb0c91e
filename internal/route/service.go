package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/snapshot"
)

// Service errors.
var (
	// ErrSaveFailed wraps persistence-layer rejections of a route write.
	ErrSaveFailed = errors.New("route save failed")
	// ErrNoItems indicates a save was attempted with zero captured items.
	ErrNoItems = errors.New("route has no items")
)

// SaveInput is the finalized output of a recording session.
type SaveInput struct {
	Items        []Item
	StartHeading float64

	// Snapshot is the opaque environment snapshot blob; nil when capture
	// was unavailable.
	Snapshot []byte

	// AnchorKey is the start anchor placed during capture; nil when no
	// anchor was placed.
	AnchorKey *string
}

// Service provides route persistence operations. Routes become immutable the
// moment Save returns; the repository is their sole owner afterwards.
type Service struct {
	repo   Repository
	blobs  snapshot.Store
	logger zerolog.Logger
	now    func() time.Time
}

// ServiceConfig holds configuration for the route service.
type ServiceConfig struct {
	Repository Repository
	Snapshots  snapshot.Store
	Logger     zerolog.Logger

	// Now overrides the clock; nil uses time.Now. Tests use this to pin
	// generated route names.
	Now func() time.Time
}

// NewService creates a new route service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   cfg.Repository,
		blobs:  cfg.Snapshots,
		logger: cfg.Logger,
		now:    now,
	}
}

// Save atomically creates a route from a finalized recording. The snapshot
// blob, when present, is stored first; a blob-store failure degrades to a
// snapshot-less route rather than failing the save.
func (s *Service) Save(ctx context.Context, input SaveInput) (*Route, error) {
	if len(input.Items) == 0 {
		return nil, ErrNoItems
	}

	now := s.now()
	id := "rte_" + uuid.New().String()[:22]

	var snapshotKey *string
	if input.Snapshot != nil {
		key := "snap_" + uuid.New().String()[:22]
		if err := s.blobs.Put(ctx, key, input.Snapshot); err != nil {
			s.logger.Warn().Err(err).
				Str("route_id", id).
				Msg("snapshot blob store rejected write, saving route without snapshot")
		} else {
			snapshotKey = &key
		}
	}

	rt := &Route{
		ID:            id,
		Name:          "Route " + now.Format("2006-01-02 15:04:05"),
		Items:         append([]Item(nil), input.Items...),
		TotalDistance: TotalDistanceOf(input.Items),
		StartHeading:  input.StartHeading,
		AnchorKey:     input.AnchorKey,
		SnapshotKey:   snapshotKey,
		CreatedAt:     now,
	}

	if err := s.repo.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	s.logger.Info().
		Str("route_id", rt.ID).
		Str("name", rt.Name).
		Float64("total_distance", rt.TotalDistance).
		Int("moves", rt.MoveCount()).
		Int("events", rt.EventCount()).
		Bool("has_snapshot", snapshotKey != nil).
		Msg("route saved")

	return copyRoute(rt), nil
}

// List retrieves summaries of all routes, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.List(ctx)
}

// Get retrieves a route by ID.
func (s *Service) Get(ctx context.Context, id string) (*Route, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes a route and best-effort prunes its snapshot blob. The blob
// delete is allowed to fail; the worker's maintenance job sweeps orphans.
func (s *Service) Delete(ctx context.Context, id string) error {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if rt.SnapshotKey != nil {
		if err := s.blobs.Delete(ctx, *rt.SnapshotKey); err != nil {
			s.logger.Warn().Err(err).
				Str("route_id", id).
				Str("snapshot_key", *rt.SnapshotKey).
				Msg("failed to prune snapshot blob, leaving for maintenance sweep")
		}
	}

	return nil
}

// Snapshot fetches the environment snapshot blob for a route. Returns
// (nil, nil) when the route carries no snapshot.
func (s *Service) Snapshot(ctx context.Context, rt *Route) ([]byte, error) {
	if rt.SnapshotKey == nil {
		return nil, nil
	}
	blob, err := s.blobs.Get(ctx, *rt.SnapshotKey)
	if err != nil {
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			// The blob was pruned out from under the route; replay falls
			// back to approximate placement.
			return nil, nil
		}
		return nil, err
	}
	return blob, nil
}
