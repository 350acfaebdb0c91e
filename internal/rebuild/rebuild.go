// Package rebuild reconstructs spatial coordinates from a captured route
// under an arbitrary start pose. Both functions are pure: identical inputs
// yield identical outputs, which keeps the live trail preview and the replay
// rendering visually consistent.
package rebuild

import (
	"math"

	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/pkg/geo"
)

// Waypoint pairs a reconstructed position with the item that produced it.
// Event waypoints share the position of the preceding move.
type Waypoint struct {
	Position geo.Vec3
	Item     route.Item
}

// Reconstruct walks the item sequence from the given start position and
// heading and emits one waypoint per item. Moves rotate the heading by the
// item's relative angle and advance the position along it; events emit at
// the current position without moving.
func Reconstruct(items []route.Item, startPos geo.Vec3, startHeading float64) []Waypoint {
	waypoints := make([]Waypoint, 0, len(items))

	heading := startHeading
	pos := startPos

	for _, it := range items {
		if it.IsMove() {
			heading += it.Angle
			pos = pos.Add(geo.Vec3{
				X: math.Sin(heading) * it.Distance,
				Z: -math.Cos(heading) * it.Distance,
			})
		}
		waypoints = append(waypoints, Waypoint{Position: pos, Item: it})
	}

	return waypoints
}

// Centerline returns only the positions after move items, for consumers that
// draw the bare path without event markers.
func Centerline(items []route.Item, startPos geo.Vec3, startHeading float64) []geo.Vec3 {
	var positions []geo.Vec3
	for _, wp := range Reconstruct(items, startPos, startHeading) {
		if wp.Item.IsMove() {
			positions = append(positions, wp.Position)
		}
	}
	return positions
}
