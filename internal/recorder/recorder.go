// Package recorder turns a stream of pose samples and discrete user commands
// into route items. It owns the transient recording session; the authoritative
// item sequence only grows through MarkTurn, AddEvent, and FinalizeForSave.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/render"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
	"github.com/retrace/retrace/pkg/geo"
)

// Recorder errors.
var (
	// ErrNotTracking indicates no current pose is available when one is
	// required.
	ErrNotTracking = errors.New("no current pose available")
	// ErrNothingRecorded indicates a save was attempted with zero captured
	// items.
	ErrNothingRecorded = errors.New("nothing recorded")
)

// Distance policy constants, in meters.
const (
	// MinTurnDistance is the minimum leg length for an interactive turn
	// mark to commit a move item. Shorter marks only update the live
	// readout.
	MinTurnDistance = 0.05

	// MinSaveDistance is the minimum residual leg closed out at save time.
	// Finer than MinTurnDistance: the final leg is not interactively
	// confirmed, so this only suppresses sample noise.
	MinSaveDistance = 0.01

	// snapshotTimeout bounds the asynchronous environment snapshot capture.
	snapshotTimeout = 10 * time.Second
)

// Measurement is the non-authoritative live readout for the current leg.
// Angle is radians; conversion to degrees is a presentation concern.
type Measurement struct {
	Distance float64
	Angle    float64
}

// Session is an in-progress recording. It exists only while the phase
// machine is in Recording and is destroyed on cancel, save, or reset.
type Session struct {
	ID           string
	StartPose    geo.Pose
	StartHeading float64
	LastTurnPose geo.Pose
	LastHeading  float64
	Items        []route.Item
	AnchorKey    *string
}

// Finalized is the completed output of FinalizeForSave, delivered through a
// channel once the asynchronous snapshot capture settles.
type Finalized struct {
	Items        []route.Item
	StartHeading float64
	AnchorKey    *string

	// Snapshot is nil when capture failed or returned nothing; the save
	// proceeds without it.
	Snapshot []byte
}

// Recorder consumes pose samples and commands, producing route items.
type Recorder struct {
	sensors  sensor.Layer
	renderer render.Renderer
	logger   zerolog.Logger
}

// Config holds configuration for the recorder.
type Config struct {
	Sensors  sensor.Layer
	Renderer render.Renderer
	Logger   zerolog.Logger
}

// New creates a recorder.
func New(cfg Config) *Recorder {
	return &Recorder{
		sensors:  cfg.Sensors,
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
	}
}

// Begin opens a recording session at the sensor's current pose. It places a
// start anchor in the tracker's map so the route can be re-anchored at
// replay time; anchor placement failure is soft and leaves the session
// without an anchor key.
func (r *Recorder) Begin(ctx context.Context) (*Session, error) {
	pose, ok := r.sensors.CurrentPose()
	if !ok {
		return nil, ErrNotTracking
	}

	heading := geo.Yaw(pose)
	s := &Session{
		ID:           "rec_" + uuid.New().String()[:22],
		StartPose:    pose,
		StartHeading: heading,
		LastTurnPose: pose,
		LastHeading:  heading,
	}

	anchorKey := "anch_" + uuid.New().String()[:22]
	if err := r.sensors.PlaceAnchor(ctx, anchorKey, pose); err != nil {
		r.logger.Warn().Err(err).
			Str("session_id", s.ID).
			Msg("start anchor placement failed, route will replay without relocalization")
	} else {
		s.AnchorKey = &anchorKey
	}

	r.renderer.MarkerAt(render.MarkerStart, pose.Position)

	r.logger.Info().
		Str("session_id", s.ID).
		Float64("start_heading", heading).
		Bool("has_anchor", s.AnchorKey != nil).
		Msg("recording session opened")

	return s, nil
}

// measure computes the current leg's readout against the last committed turn.
func (r *Recorder) measure(s *Session, pose geo.Pose) Measurement {
	return Measurement{
		Distance: geo.PlanarDistance(s.LastTurnPose.Position, pose.Position),
		Angle:    geo.NormalizeAngle(geo.Yaw(pose) - s.LastHeading),
	}
}

// Readout returns the live (distance, angle) pair for the current pose tick.
// Informational only; it never mutates the item sequence.
func (r *Recorder) Readout(s *Session, pose geo.Pose) Measurement {
	return r.measure(s, pose)
}

// MarkTurn commits a move item for the leg since the last turn. Legs shorter
// than MinTurnDistance are a soft no-op: the returned measurement still
// refreshes the live readout but nothing is appended and the last turn pose
// is untouched. The second return reports whether an item was committed.
func (r *Recorder) MarkTurn(s *Session, pose geo.Pose) (Measurement, bool) {
	m := r.measure(s, pose)
	if m.Distance < MinTurnDistance {
		r.logger.Debug().
			Str("session_id", s.ID).
			Float64("distance", m.Distance).
			Msg("turn mark below minimum distance, not committed")
		return m, false
	}

	s.Items = append(s.Items, route.Move(m.Distance, m.Angle))
	prev := s.LastTurnPose.Position
	s.LastTurnPose = pose
	s.LastHeading = geo.Yaw(pose)

	r.renderer.MarkerAt(render.MarkerTurn, pose.Position)
	r.renderer.Ribbon(prev, pose.Position, render.ColorTrail)

	r.logger.Debug().
		Str("session_id", s.ID).
		Float64("distance", m.Distance).
		Float64("angle", m.Angle).
		Int("items", len(s.Items)).
		Msg("turn committed")

	return m, true
}

// AddEvent appends an event item at the current point of the path. A nil
// position records the event without a visual marker; the item sequence is
// positionless, so the event still replays correctly.
func (r *Recorder) AddEvent(s *Session, kind route.EventKind, at *geo.Vec3) {
	s.Items = append(s.Items, route.Event(kind))
	if at != nil {
		r.renderer.EventMarkerAt(string(kind), *at)
	}

	r.logger.Debug().
		Str("session_id", s.ID).
		Str("kind", string(kind)).
		Bool("placed", at != nil).
		Int("items", len(s.Items)).
		Msg("event recorded")
}

// FinalizeForSave closes out the session for persistence. Any residual
// motion since the last turn longer than MinSaveDistance becomes a final
// move item. The environment snapshot is captured asynchronously; the
// finalized tuple arrives on the returned channel once capture settles, so
// this call never blocks on the tracker. Returns ErrNothingRecorded when the
// resulting item list is empty.
func (r *Recorder) FinalizeForSave(ctx context.Context, s *Session, pose geo.Pose) (<-chan Finalized, error) {
	m := r.measure(s, pose)
	items := append([]route.Item(nil), s.Items...)
	if m.Distance >= MinSaveDistance {
		items = append(items, route.Move(m.Distance, m.Angle))
	}

	if len(items) == 0 {
		return nil, ErrNothingRecorded
	}

	r.renderer.MarkerAt(render.MarkerGoal, pose.Position)

	done := make(chan Finalized, 1)
	go func() {
		captureCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
		defer cancel()

		blob, err := r.sensors.CaptureSnapshot(captureCtx)
		if err != nil {
			// Soft condition: the route saves without a snapshot and
			// replays via fallback placement.
			r.logger.Warn().Err(err).
				Str("session_id", s.ID).
				Msg("environment snapshot unavailable")
			blob = nil
		}

		done <- Finalized{
			Items:        items,
			StartHeading: s.StartHeading,
			AnchorKey:    s.AnchorKey,
			Snapshot:     blob,
		}
		close(done)
	}()

	return done, nil
}

// Cancel discards the session and clears the live trail. Always succeeds.
func (r *Recorder) Cancel(s *Session) {
	r.renderer.Clear()
	r.logger.Info().
		Str("session_id", s.ID).
		Int("discarded_items", len(s.Items)).
		Msg("recording session cancelled")
}
