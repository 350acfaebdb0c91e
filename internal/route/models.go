// Package route provides the captured-path data model and its persistence.
package route

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrRouteNotFound = errors.New("route not found")
)

// ItemType discriminates the route item union.
type ItemType string

const (
	// ItemMove is a straight leg: walk Distance meters after turning by Angle.
	ItemMove ItemType = "move"
	// ItemEvent marks a point of interest without displacement.
	ItemEvent ItemType = "event"
)

// EventKind identifies the kind of a point-of-interest event.
type EventKind string

// Event kinds recordable during capture.
const (
	EventStairsUp   EventKind = "stairs_up"
	EventStairsDown EventKind = "stairs_down"
	EventElevator   EventKind = "elevator"
	EventDoor       EventKind = "door"
)

// ValidEventKind reports whether k is one of the recordable event kinds.
func ValidEventKind(k EventKind) bool {
	switch k {
	case EventStairsUp, EventStairsDown, EventElevator, EventDoor:
		return true
	}
	return false
}

// Item is one element of a captured path. Exactly one arm of the union is
// populated, selected by Type.
//
// For moves, Distance is the planar separation between two pose samples in
// meters and Angle is the relative heading change in radians, normalized to
// (-pi, pi], positive clockwise. Angle is never an absolute heading.
type Item struct {
	Type ItemType `json:"type"`

	// Move fields.
	Distance float64 `json:"distance,omitempty"`
	Angle    float64 `json:"angle,omitempty"`

	// Event fields.
	Kind EventKind `json:"kind,omitempty"`
}

// Move constructs a move item.
func Move(distance, angle float64) Item {
	return Item{Type: ItemMove, Distance: distance, Angle: angle}
}

// Event constructs an event item.
func Event(kind EventKind) Item {
	return Item{Type: ItemEvent, Kind: kind}
}

// IsMove reports whether the item is a move leg.
func (i Item) IsMove() bool { return i.Type == ItemMove }

// IsEvent reports whether the item is an event marker.
func (i Item) IsEvent() bool { return i.Type == ItemEvent }

// Route is a captured path. Routes are immutable once saved: the repository
// is the sole owner and callers only ever hold copies.
type Route struct {
	ID            string
	Name          string
	Items         []Item
	TotalDistance float64
	StartHeading  float64

	// AnchorKey correlates the route to a marker placed in the environment
	// snapshot by the sensor layer; nil when no anchor was captured.
	AnchorKey *string

	// SnapshotKey references the opaque environment snapshot blob in the
	// snapshot store; nil when capture yielded no snapshot.
	SnapshotKey *string

	CreatedAt time.Time
}

// MoveCount returns the number of move legs in the route.
func (r *Route) MoveCount() int {
	n := 0
	for _, it := range r.Items {
		if it.IsMove() {
			n++
		}
	}
	return n
}

// EventCount returns the number of event markers in the route.
func (r *Route) EventCount() int {
	n := 0
	for _, it := range r.Items {
		if it.IsEvent() {
			n++
		}
	}
	return n
}

// TotalDistanceOf recomputes the summed move distance for a sequence of
// items. Route.TotalDistance caches this value at save time.
func TotalDistanceOf(items []Item) float64 {
	var total float64
	for _, it := range items {
		if it.IsMove() {
			total += it.Distance
		}
	}
	return total
}

// Summary is the listing projection of a route.
type Summary struct {
	ID            string
	Name          string
	TotalDistance float64
	MoveCount     int
	EventCount    int
	CreatedAt     time.Time
}

// Summarize derives the listing projection from a route.
func (r *Route) Summarize() Summary {
	return Summary{
		ID:            r.ID,
		Name:          r.Name,
		TotalDistance: r.TotalDistance,
		MoveCount:     r.MoveCount(),
		EventCount:    r.EventCount(),
		CreatedAt:     r.CreatedAt,
	}
}
