package models

// PhaseResponse describes the engine's current session phase.
type PhaseResponse struct {
	Phase string `json:"phase"`

	// RouteName is set only while replaying.
	RouteName string `json:"routeName,omitempty"`

	// SensorReady reports whether tracking quality permits recording.
	SensorReady bool `json:"sensorReady"`
}

// MeasurementResponse is the live readout for the current leg.
type MeasurementResponse struct {
	DistanceMeters float64 `json:"distanceMeters"`
	AngleDegrees   float64 `json:"angleDegrees"`

	// Committed reports whether a turn mark appended a move item.
	Committed bool `json:"committed"`
}

// EventRequest asks the engine to record an event at the current point.
type EventRequest struct {
	Kind string `json:"kind"`
}

// Validate validates the event request.
func (r *EventRequest) Validate() []FieldError {
	var errors []FieldError
	if r.Kind == "" {
		errors = append(errors, FieldError{
			Field:   "kind",
			Message: "event kind is required",
			Code:    "REQUIRED",
		})
	}
	return errors
}

// ReplayRequest asks the engine to replay a saved route.
type ReplayRequest struct {
	RouteID string `json:"routeId"`
}

// Validate validates the replay request.
func (r *ReplayRequest) Validate() []FieldError {
	var errors []FieldError
	if r.RouteID == "" {
		errors = append(errors, FieldError{
			Field:   "routeId",
			Message: "route ID is required",
			Code:    "REQUIRED",
		})
	}
	return errors
}

// PoseRequest is one pose sample from the sensor bridge.
type PoseRequest struct {
	Position Vec3 `json:"position"`
	Forward  Vec3 `json:"forward"`
}

// QualityRequest is a tracking-quality change from the sensor bridge.
type QualityRequest struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Validate validates the quality request.
func (r *QualityRequest) Validate() []FieldError {
	switch r.State {
	case "normal", "limited", "unavailable":
		return nil
	}
	return []FieldError{{
		Field:   "state",
		Message: "state must be one of normal, limited, unavailable",
		Code:    "INVALID",
	}}
}
