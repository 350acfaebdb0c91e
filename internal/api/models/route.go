package models

// RouteSummary is the listing projection of a saved route.
type RouteSummary struct {
	ID            string    `json:"routeId"`
	Name          string    `json:"name"`
	TotalDistance float64   `json:"totalDistanceMeters"`
	MoveCount     int       `json:"moveCount"`
	EventCount    int       `json:"eventCount"`
	CreatedAt     Timestamp `json:"createdAt"`
}

// RouteList is the response for listing saved routes.
type RouteList struct {
	Items []RouteSummary `json:"items"`
}

// RouteItem is one element of a route's item sequence.
type RouteItem struct {
	Type     string  `json:"type"`
	Distance float64 `json:"distance,omitempty"`
	Angle    float64 `json:"angle,omitempty"`
	Kind     string  `json:"kind,omitempty"`
}

// RouteDetail is the full representation of a saved route.
type RouteDetail struct {
	ID            string      `json:"routeId"`
	Name          string      `json:"name"`
	Items         []RouteItem `json:"items"`
	TotalDistance float64     `json:"totalDistanceMeters"`
	StartHeading  float64     `json:"startHeading"`
	HasSnapshot   bool        `json:"hasSnapshot"`
	HasAnchor     bool        `json:"hasAnchor"`
	CreatedAt     Timestamp   `json:"createdAt"`
}

// Waypoint is one reconstructed point of a route.
type Waypoint struct {
	Position Vec3   `json:"position"`
	Type     string `json:"type"`
	Kind     string `json:"kind,omitempty"`
}

// WaypointList is the response for route reconstruction. Polyline is the
// planar centerline (start plus every turn point) in compact encoding.
type WaypointList struct {
	RouteID   string     `json:"routeId"`
	Start     Vec3       `json:"start"`
	Heading   float64    `json:"heading"`
	Waypoints []Waypoint `json:"waypoints"`
	Polyline  string     `json:"polyline,omitempty"`
}
