// Package render defines the fire-and-forget contract with the external 3-D
// scene renderer. The engine emits draw commands and never depends on
// rendering completing or succeeding.
package render

import (
	"sync"

	"github.com/retrace/retrace/pkg/geo"
)

// MarkerKind identifies the kind of a path marker.
type MarkerKind string

// Path marker kinds.
const (
	MarkerStart MarkerKind = "start"
	MarkerGoal  MarkerKind = "goal"
	MarkerTurn  MarkerKind = "turn"
)

// Color is a renderer hint for ribbon segments.
type Color string

// Ribbon colors.
const (
	ColorTrail  Color = "trail"
	ColorReplay Color = "replay"
)

// Renderer receives draw commands for the current session. Implementations
// must tolerate commands at pose-tick rate.
type Renderer interface {
	// MarkerAt draws a start/goal/turn marker at a position.
	MarkerAt(kind MarkerKind, pos geo.Vec3)

	// Ribbon draws a ribbon between two positions.
	Ribbon(a, b geo.Vec3, color Color)

	// EventMarkerAt draws an event marker of the given kind at a position.
	// The kind string is the route event kind.
	EventMarkerAt(kind string, pos geo.Vec3)

	// Clear removes all markers and ribbons created by this session.
	Clear()
}

// Nop is a Renderer that discards all commands.
type Nop struct{}

func (Nop) MarkerAt(MarkerKind, geo.Vec3)       {}
func (Nop) Ribbon(geo.Vec3, geo.Vec3, Color)    {}
func (Nop) EventMarkerAt(string, geo.Vec3)      {}
func (Nop) Clear()                              {}

// Recorder is a Renderer that records commands for test assertions.
type Recorder struct {
	mu sync.Mutex

	Markers      []RecordedMarker
	Ribbons      []RecordedRibbon
	EventMarkers []RecordedEventMarker
	Clears       int
}

// RecordedMarker is one MarkerAt call.
type RecordedMarker struct {
	Kind MarkerKind
	Pos  geo.Vec3
}

// RecordedRibbon is one Ribbon call.
type RecordedRibbon struct {
	A, B  geo.Vec3
	Color Color
}

// RecordedEventMarker is one EventMarkerAt call.
type RecordedEventMarker struct {
	Kind string
	Pos  geo.Vec3
}

func (r *Recorder) MarkerAt(kind MarkerKind, pos geo.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Markers = append(r.Markers, RecordedMarker{Kind: kind, Pos: pos})
}

func (r *Recorder) Ribbon(a, b geo.Vec3, color Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ribbons = append(r.Ribbons, RecordedRibbon{A: a, B: b, Color: color})
}

func (r *Recorder) EventMarkerAt(kind string, pos geo.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EventMarkers = append(r.EventMarkers, RecordedEventMarker{Kind: kind, Pos: pos})
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Clears++
}

var (
	_ Renderer = Nop{}
	_ Renderer = (*Recorder)(nil)
)
