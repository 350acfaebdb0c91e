package sensor

import (
	"context"
	"sync"

	"github.com/retrace/retrace/pkg/geo"
)

// Sim is an in-memory sensor layer for tests and the dev loop. Poses are set
// explicitly; snapshots are whatever bytes the test scripts in; anchors
// survive a StartRun only when the run is seeded with the snapshot that was
// current when they were placed.
type Sim struct {
	mu sync.Mutex

	pose    geo.Pose
	hasPose bool

	snapshot    []byte
	anchors     map[string]geo.Pose
	seededKeys  map[string]bool
	runStarted  bool
	snapshotErr error
}

// NewSim creates a simulated sensor layer with no pose and no anchors.
func NewSim() *Sim {
	return &Sim{
		anchors:    make(map[string]geo.Pose),
		seededKeys: make(map[string]bool),
	}
}

// SetPose sets the current pose reported by the simulator.
func (s *Sim) SetPose(p geo.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = p
	s.hasPose = true
}

// ClearPose makes the simulator report no current pose.
func (s *Sim) ClearPose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasPose = false
}

// SetSnapshot sets the blob returned by CaptureSnapshot.
func (s *Sim) SetSnapshot(blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append([]byte(nil), blob...)
	s.snapshotErr = nil
}

// FailSnapshot makes CaptureSnapshot return the given error.
func (s *Sim) FailSnapshot(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotErr = err
}

// CurrentPose returns the scripted pose.
func (s *Sim) CurrentPose() (geo.Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose, s.hasPose
}

// StartRun begins a simulated tracking run. Seeding with the snapshot bytes
// previously set via SetSnapshot makes placed anchors findable again;
// seeding with nil or different bytes hides them, mimicking a tracker that
// lost its map.
func (s *Sim) StartRun(_ context.Context, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runStarted = true
	seeded := snapshot != nil && string(snapshot) == string(s.snapshot)
	for key := range s.anchors {
		s.seededKeys[key] = seeded
	}
	return nil
}

// CaptureSnapshot returns the scripted snapshot blob.
func (s *Sim) CaptureSnapshot(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	if s.snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), s.snapshot...), nil
}

// PlaceAnchor records a named marker at the given pose.
func (s *Sim) PlaceAnchor(_ context.Context, key string, pose geo.Pose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchors[key] = pose
	s.seededKeys[key] = true
	return nil
}

// FindAnchor looks up a named marker.
func (s *Sim) FindAnchor(key string) (geo.Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seededKeys[key] {
		return geo.Pose{}, false
	}
	pose, ok := s.anchors[key]
	return pose, ok
}

// Ensure Sim implements Layer and PoseSink interfaces.
var (
	_ Layer    = (*Sim)(nil)
	_ PoseSink = (*Sim)(nil)
)
