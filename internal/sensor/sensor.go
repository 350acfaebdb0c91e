// Package sensor defines the contract with the external spatial-tracking
// layer. The engine never assumes anything about the tracker's internals:
// it consumes poses, a discrete tracking-quality state, opaque environment
// snapshots, and named anchors the tracker can re-find after reseeding.
package sensor

import (
	"context"
	"errors"

	"github.com/retrace/retrace/pkg/geo"
)

// Sensor-layer errors.
var (
	// ErrNoSnapshot indicates the tracker could not produce an environment
	// snapshot. Recoverable: saves proceed without one.
	ErrNoSnapshot = errors.New("environment snapshot unavailable")
)

// TrackingState is the discrete tracking-quality state reported by the
// sensor layer.
type TrackingState string

const (
	// TrackingNormal means the reported pose is trustworthy.
	TrackingNormal TrackingState = "normal"
	// TrackingLimited means tracking is degraded; Quality.Reason says why.
	TrackingLimited TrackingState = "limited"
	// TrackingUnavailable means no pose is available at all.
	TrackingUnavailable TrackingState = "unavailable"
)

// Quality is a tracking-quality report.
type Quality struct {
	State  TrackingState
	Reason string
}

// Normal reports whether tracking quality is normal.
func (q Quality) Normal() bool { return q.State == TrackingNormal }

// PoseSink accepts pose samples pushed from outside the process. The HTTP
// sensor bridge feeds the device's pose stream through it so the Layer's
// CurrentPose stays current.
type PoseSink interface {
	// SetPose records the most recent pose.
	SetPose(p geo.Pose)

	// ClearPose marks the current pose as unavailable.
	ClearPose()
}

// Layer is the command interface to the spatial tracker.
type Layer interface {
	// CurrentPose returns the most recent pose, and false when the tracker
	// has none (not started, or tracking unavailable).
	CurrentPose() (geo.Pose, bool)

	// StartRun begins a fresh tracking run. A non-nil snapshot seeds the
	// tracker's internal map so previously placed anchors can be re-found;
	// pose output is untrustworthy until quality returns to normal.
	StartRun(ctx context.Context, snapshot []byte) error

	// CaptureSnapshot serializes the tracker's current environment map.
	// May take hundreds of milliseconds. Returns ErrNoSnapshot when the
	// tracker has nothing useful to serialize.
	CaptureSnapshot(ctx context.Context) ([]byte, error)

	// PlaceAnchor records a named marker at the given pose inside the
	// tracker's map, so it is carried by subsequent snapshots.
	PlaceAnchor(ctx context.Context, key string, pose geo.Pose) error

	// FindAnchor looks up a named marker among the anchors the tracker
	// currently reports. Only meaningful after relocalization.
	FindAnchor(key string) (geo.Pose, bool)
}
