// Package polyline provides a compact string encoding for planar paths.
// It uses the delta + varint scheme from Google's polyline algorithm
// (https://developers.google.com/maps/documentation/utilities/polylinealgorithm)
// but carries local x/z coordinates in meters instead of lat/lon, at
// millimeter precision.
package polyline

import (
	"math"
)

// Point is a planar position in route-local coordinates, in meters.
type Point struct {
	X float64
	Z float64
}

// precision scales meters to integer millimeters before encoding.
const precision = 1e3

// Decode decodes a polyline-encoded string into a slice of points.
func Decode(encoded string) []Point {
	if encoded == "" {
		return nil
	}

	var points []Point
	index := 0
	x := 0
	z := 0

	for index < len(encoded) {
		xDelta, newIndex := decodeValue(encoded, index)
		index = newIndex
		x += xDelta

		zDelta, newIndex := decodeValue(encoded, index)
		index = newIndex
		z += zDelta

		points = append(points, Point{
			X: float64(x) / precision,
			Z: float64(z) / precision,
		})
	}

	return points
}

// decodeValue decodes a single value from the polyline at the given index.
// Returns the decoded delta value and the new index position.
func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	// Apply two's complement for negative values
	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// Encode encodes a slice of points into a polyline-encoded string.
func Encode(points []Point) string {
	if len(points) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(points)*4)
	prevX := 0
	prevZ := 0

	for _, p := range points {
		x := int(math.Round(p.X * precision))
		z := int(math.Round(p.Z * precision))

		encoded = encodeValue(encoded, x-prevX)
		encoded = encodeValue(encoded, z-prevZ)

		prevX = x
		prevZ = z
	}

	return string(encoded)
}

// encodeValue encodes a single integer value using the polyline algorithm.
func encodeValue(buf []byte, value int) []byte {
	// Invert if negative
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	// Encode in 5-bit chunks
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}

// Length calculates the total length of a path in meters.
func Length(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += distance(points[i-1], points[i])
	}
	return total
}

// Sample returns points sampled at approximately the specified interval along
// the path. Useful for densifying a sparse turn-to-turn centerline into
// evenly spaced guidance markers.
func Sample(points []Point, intervalMeters float64) []Point {
	if len(points) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return points
	}

	sampled := []Point{points[0]}
	accumulated := 0.0

	for i := 1; i < len(points); i++ {
		segmentDist := distance(points[i-1], points[i])

		for accumulated+segmentDist >= intervalMeters {
			remaining := intervalMeters - accumulated
			fraction := remaining / segmentDist

			newX := points[i-1].X + fraction*(points[i].X-points[i-1].X)
			newZ := points[i-1].Z + fraction*(points[i].Z-points[i-1].Z)
			sampled = append(sampled, Point{X: newX, Z: newZ})

			segmentDist -= remaining
			accumulated = 0
		}

		accumulated += segmentDist
	}

	// Always include the last point if it's not already included
	last := points[len(points)-1]
	if len(sampled) == 0 || sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}

	return sampled
}

func distance(a, b Point) float64 {
	dx := b.X - a.X
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dz*dz)
}
