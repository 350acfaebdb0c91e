package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/retrace/retrace/internal/api/models"
	"github.com/retrace/retrace/internal/api/response"
	"github.com/retrace/retrace/internal/rebuild"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/pkg/geo"
	"github.com/retrace/retrace/pkg/polyline"
)

// RoutesHandler handles saved-route endpoints.
type RoutesHandler struct {
	routes *route.Service
}

// NewRoutesHandler creates a new RoutesHandler.
func NewRoutesHandler(routes *route.Service) *RoutesHandler {
	return &RoutesHandler{routes: routes}
}

// List handles GET /v1/routes.
func (h *RoutesHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.routes.List(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list routes")
		return
	}

	items := make([]models.RouteSummary, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, models.RouteSummary{
			ID:            s.ID,
			Name:          s.Name,
			TotalDistance: s.TotalDistance,
			MoveCount:     s.MoveCount,
			EventCount:    s.EventCount,
			CreatedAt:     models.Timestamp(s.CreatedAt),
		})
	}
	response.JSON(w, r, http.StatusOK, models.RouteList{Items: items})
}

// Get handles GET /v1/routes/{routeId}.
func (h *RoutesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rt, err := h.routes.Get(r.Context(), chi.URLParam(r, "routeId"))
	if err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			response.NotFound(w, r, "route not found")
			return
		}
		response.InternalError(w, r, "failed to load route")
		return
	}

	items := make([]models.RouteItem, 0, len(rt.Items))
	for _, item := range rt.Items {
		items = append(items, models.RouteItem{
			Type:     string(item.Type),
			Distance: item.Distance,
			Angle:    item.Angle,
			Kind:     string(item.Kind),
		})
	}

	response.JSON(w, r, http.StatusOK, models.RouteDetail{
		ID:            rt.ID,
		Name:          rt.Name,
		Items:         items,
		TotalDistance: rt.TotalDistance,
		StartHeading:  rt.StartHeading,
		HasSnapshot:   rt.SnapshotKey != nil,
		HasAnchor:     rt.AnchorKey != nil,
		CreatedAt:     models.Timestamp(rt.CreatedAt),
	})
}

// Delete handles DELETE /v1/routes/{routeId}.
func (h *RoutesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.routes.Delete(r.Context(), chi.URLParam(r, "routeId"))
	if err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			response.NotFound(w, r, "route not found")
			return
		}
		response.InternalError(w, r, "failed to delete route")
		return
	}
	response.NoContent(w, r)
}

// Waypoints handles GET /v1/routes/{routeId}/waypoints. The start pose is
// taken from query parameters (x, y, z, heading) so clients can preview the
// route under any origin; all default to zero.
func (h *RoutesHandler) Waypoints(w http.ResponseWriter, r *http.Request) {
	rt, err := h.routes.Get(r.Context(), chi.URLParam(r, "routeId"))
	if err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			response.NotFound(w, r, "route not found")
			return
		}
		response.InternalError(w, r, "failed to load route")
		return
	}

	start := geo.Vec3{
		X: queryFloat(r, "x"),
		Y: queryFloat(r, "y"),
		Z: queryFloat(r, "z"),
	}
	heading := queryFloat(r, "heading")

	waypoints := rebuild.Reconstruct(rt.Items, start, heading)
	out := make([]models.Waypoint, 0, len(waypoints))
	line := []polyline.Point{{X: start.X, Z: start.Z}}
	for _, wp := range waypoints {
		out = append(out, models.Waypoint{
			Position: models.Vec3{X: wp.Position.X, Y: wp.Position.Y, Z: wp.Position.Z},
			Type:     string(wp.Item.Type),
			Kind:     string(wp.Item.Kind),
		})
		if wp.Item.IsMove() {
			line = append(line, polyline.Point{X: wp.Position.X, Z: wp.Position.Z})
		}
	}

	response.JSON(w, r, http.StatusOK, models.WaypointList{
		RouteID:   rt.ID,
		Start:     models.Vec3{X: start.X, Y: start.Y, Z: start.Z},
		Heading:   heading,
		Waypoints: out,
		Polyline:  polyline.Encode(line),
	})
}

// queryFloat parses a float query parameter, defaulting to zero.
func queryFloat(r *http.Request, name string) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil {
		return 0
	}
	return v
}
