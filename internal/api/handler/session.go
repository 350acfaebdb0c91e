package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/retrace/retrace/internal/api/models"
	"github.com/retrace/retrace/internal/api/response"
	"github.com/retrace/retrace/internal/nav"
	"github.com/retrace/retrace/internal/recorder"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
	"github.com/retrace/retrace/pkg/geo"
)

// SessionHandler exposes the navigation engine's commands over HTTP. The
// engine itself serializes all state mutation; handlers only translate
// requests and sentinel errors.
type SessionHandler struct {
	engine *nav.Engine
	poses  sensor.PoseSink
}

// NewSessionHandler creates a new SessionHandler. poses receives streamed
// pose samples so the sensor layer stays current; nil skips that.
func NewSessionHandler(engine *nav.Engine, poses sensor.PoseSink) *SessionHandler {
	return &SessionHandler{engine: engine, poses: poses}
}

// phaseResponse builds the phase payload from the engine's current state.
func (h *SessionHandler) phaseResponse() models.PhaseResponse {
	p := h.engine.Phase()
	return models.PhaseResponse{
		Phase:       string(p.Kind),
		RouteName:   p.RouteName,
		SensorReady: h.engine.SensorReady(),
	}
}

// GetPhase handles GET /v1/session/phase.
func (h *SessionHandler) GetPhase(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.phaseResponse())
}

// StartRecording handles POST /v1/session/recording:start.
func (h *SessionHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	err := h.engine.StartRecording(r.Context())
	switch {
	case errors.Is(err, nav.ErrSensorNotReady):
		response.Conflict(w, r, "tracking has not normalized yet")
		return
	case errors.Is(err, recorder.ErrNotTracking):
		response.Conflict(w, r, "no pose available")
		return
	case err != nil:
		response.InternalError(w, r, "failed to start recording")
		return
	}
	response.JSON(w, r, http.StatusOK, h.phaseResponse())
}

// MarkTurn handles POST /v1/session/recording:turn.
func (h *SessionHandler) MarkTurn(w http.ResponseWriter, r *http.Request) {
	m, committed := h.engine.MarkTurn()
	response.JSON(w, r, http.StatusOK, models.MeasurementResponse{
		DistanceMeters: m.Distance,
		AngleDegrees:   geo.Degrees(m.Angle),
		Committed:      committed,
	})
}

// AddEvent handles POST /v1/session/recording:event.
func (h *SessionHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid event", errs)
		return
	}

	if err := h.engine.AddEvent(route.EventKind(req.Kind)); err != nil {
		response.BadRequest(w, r, "unrecognized event kind", []models.FieldError{{
			Field:   "kind",
			Message: "kind must be one of stairs_up, stairs_down, elevator, door",
			Code:    "INVALID",
		}})
		return
	}
	response.NoContent(w, r)
}

// SaveRoute handles POST /v1/session/recording:save. Persistence completes
// asynchronously, so success is 202.
func (h *SessionHandler) SaveRoute(w http.ResponseWriter, r *http.Request) {
	err := h.engine.SaveRoute(r.Context())
	if errors.Is(err, recorder.ErrNothingRecorded) {
		response.Conflict(w, r, "nothing recorded yet")
		return
	}
	if err != nil {
		response.InternalError(w, r, "failed to save route")
		return
	}
	response.Accepted(w, r, "/v1/routes", h.phaseResponse())
}

// CancelRecording handles POST /v1/session/recording:cancel.
func (h *SessionHandler) CancelRecording(w http.ResponseWriter, r *http.Request) {
	h.engine.CancelRecording()
	response.NoContent(w, r)
}

// StartReplay handles POST /v1/session/replay:start.
func (h *SessionHandler) StartReplay(w http.ResponseWriter, r *http.Request) {
	var req models.ReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid replay request", errs)
		return
	}

	err := h.engine.StartReplay(r.Context(), req.RouteID)
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		response.NotFound(w, r, "route not found")
		return
	case err != nil:
		response.InternalError(w, r, "failed to start replay")
		return
	}
	response.JSON(w, r, http.StatusOK, h.phaseResponse())
}

// StopReplay handles POST /v1/session/replay:stop.
func (h *SessionHandler) StopReplay(w http.ResponseWriter, r *http.Request) {
	h.engine.StopReplay()
	response.NoContent(w, r)
}

// PoseTick handles POST /v1/sensor/pose - one pose sample from the sensor
// bridge. Always 202: pose samples are advisory and never fail.
func (h *SessionHandler) PoseTick(w http.ResponseWriter, r *http.Request) {
	var req models.PoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	pose := geo.Pose{
		Position: geo.Vec3{X: req.Position.X, Y: req.Position.Y, Z: req.Position.Z},
		Forward:  geo.Vec3{X: req.Forward.X, Y: req.Forward.Y, Z: req.Forward.Z},
	}
	if h.poses != nil {
		h.poses.SetPose(pose)
	}
	h.engine.OnPoseTick(pose)
	response.Accepted(w, r, "", nil)
}

// TrackingQuality handles POST /v1/sensor/quality - a tracking-quality
// change from the sensor bridge.
func (h *SessionHandler) TrackingQuality(w http.ResponseWriter, r *http.Request) {
	var req models.QualityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid tracking quality", errs)
		return
	}

	q := sensor.Quality{
		State:  sensor.TrackingState(req.State),
		Reason: req.Reason,
	}
	if h.poses != nil && q.State == sensor.TrackingUnavailable {
		h.poses.ClearPose()
	}
	h.engine.OnTrackingQualityChanged(q)
	response.Accepted(w, r, "", nil)
}
