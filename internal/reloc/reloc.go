// Package reloc governs how a replay session re-anchors itself to the
// original physical start point. Routes that carry an environment snapshot
// reseed the tracker and wait for tracking to normalize before looking up
// the start anchor; everything else falls back to an approximate placement
// in front of the live pose.
package reloc

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
	"github.com/retrace/retrace/pkg/geo"
)

// State is the relocalization protocol state.
type State string

// Protocol states. NotStarted advances to AwaitingTrackingNormal only for
// routes with a snapshot; either terminal state is reached exactly once per
// replay request.
const (
	StateNotStarted             State = "not_started"
	StateAwaitingTrackingNormal State = "awaiting_tracking_normal"
	StateResolved               State = "resolved"
	StateFallbackUsed           State = "fallback_used"
)

// Placement policy constants, in meters.
const (
	// AnchorSurfaceOffset lowers a resolved anchor pose to the walking
	// surface, since the anchor was placed at device height.
	AnchorSurfaceOffset = 0.5

	// FallbackForwardOffset places the fallback start in front of the
	// current live pose.
	FallbackForwardOffset = 1.0

	// FallbackVerticalOffset lowers the fallback start below the current
	// live pose.
	FallbackVerticalOffset = 0.5
)

// Start is the resolved replay start pose fed to path reconstruction.
type Start struct {
	Position geo.Vec3
	Heading  float64

	// Fallback reports whether the start is the approximate placement
	// rather than the relocalized original anchor.
	Fallback bool
}

// Request is one replay relocalization attempt. It is transient: it exists
// from the replay command until the start pose has been delivered or the
// replay is stopped, and must not be reused for a second replay.
type Request struct {
	sensors sensor.Layer
	logger  zerolog.Logger

	state     State
	routeID   string
	anchorKey *string

	// pendingFallback marks a fallback deferred because no live pose was
	// available yet; it is retried on subsequent pose ticks.
	pendingFallback bool
}

// Config holds configuration for a relocalization request.
type Config struct {
	Sensors sensor.Layer
	Logger  zerolog.Logger
}

// New creates a relocalization request in NotStarted.
func New(cfg Config) *Request {
	return &Request{
		sensors: cfg.Sensors,
		logger:  cfg.Logger,
		state:   StateNotStarted,
	}
}

// State returns the current protocol state.
func (r *Request) State() State {
	return r.state
}

// Awaiting reports whether the request is waiting on tracking quality or a
// deferred fallback pose.
func (r *Request) Awaiting() bool {
	return r.state == StateAwaitingTrackingNormal || r.pendingFallback
}

// Begin starts relocalization for the route. With a snapshot it reseeds the
// tracker and transitions to AwaitingTrackingNormal, returning no start yet;
// without one it goes directly to the fallback placement, never entering
// AwaitingTrackingNormal. The returned bool reports whether a start pose was
// produced.
func (r *Request) Begin(ctx context.Context, rt *route.Route, snapshot []byte) (Start, bool) {
	if r.state != StateNotStarted {
		return Start{}, false
	}

	r.routeID = rt.ID
	r.anchorKey = rt.AnchorKey

	if snapshot == nil {
		return r.tryFallback()
	}

	if err := r.sensors.StartRun(ctx, snapshot); err != nil {
		r.logger.Warn().Err(err).
			Str("route_id", rt.ID).
			Msg("tracker rejected snapshot seed, using fallback placement")
		return r.tryFallback()
	}

	r.state = StateAwaitingTrackingNormal
	r.logger.Info().
		Str("route_id", rt.ID).
		Msg("re-establishing reference, move the sensor")

	return Start{}, false
}

// OnTrackingQuality feeds a tracking-quality change into the protocol. While
// awaiting, a return to normal quality resolves the start pose: at the
// route's anchor when the tracker re-found it, otherwise via fallback.
func (r *Request) OnTrackingQuality(q sensor.Quality) (Start, bool) {
	if r.state != StateAwaitingTrackingNormal || !q.Normal() {
		return Start{}, false
	}

	if r.anchorKey != nil {
		if pose, ok := r.sensors.FindAnchor(*r.anchorKey); ok {
			// The anchor carries the original start pose in the tracker's
			// new coordinate frame; the route's stored heading belongs to
			// the torn-down session and cannot be used here.
			r.state = StateResolved
			start := Start{
				Position: pose.Position.Sub(geo.Vec3{Y: AnchorSurfaceOffset}),
				Heading:  geo.Yaw(pose),
			}
			r.logger.Info().
				Str("route_id", r.routeID).
				Str("anchor_key", *r.anchorKey).
				Msg("relocalized to original start anchor")
			return start, true
		}
	}

	r.logger.Warn().
		Str("route_id", r.routeID).
		Msg("start anchor not found after relocalization, using fallback placement")
	return r.tryFallback()
}

// OnPoseAvailable retries a fallback that was deferred for lack of a live
// pose.
func (r *Request) OnPoseAvailable() (Start, bool) {
	if !r.pendingFallback {
		return Start{}, false
	}
	return r.tryFallback()
}

// tryFallback computes the approximate placement: a fixed offset in front of
// the current live pose, below it at surface height. Without a live pose the
// placement is deferred, not failed.
func (r *Request) tryFallback() (Start, bool) {
	pose, ok := r.sensors.CurrentPose()
	if !ok {
		r.pendingFallback = true
		r.logger.Debug().
			Str("route_id", r.routeID).
			Msg("no live pose for fallback placement, deferring")
		return Start{}, false
	}

	heading := geo.Yaw(pose)
	pos := pose.Position.
		Add(geo.HeadingVector(heading).Scale(FallbackForwardOffset)).
		Sub(geo.Vec3{Y: FallbackVerticalOffset})

	r.pendingFallback = false
	r.state = StateFallbackUsed

	r.logger.Info().
		Str("route_id", r.routeID).
		Msg("replay start placed in front of current pose")

	return Start{Position: pos, Heading: heading, Fallback: true}, true
}
