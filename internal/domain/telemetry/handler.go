package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/amb/amb/internal/platform/auth"
	"github.com/amb/amb/pkg/geo"
)

// WaypointSource resolves a destination id into the waypoints a simulated
// vehicle should follow.
type WaypointSource interface {
	RouteWaypoints(destinationID string) ([]geo.Point, bool)
}

// Handler exposes GPS ingest, lookup and the demo simulator.
type Handler struct {
	store     *Store
	simulator *Simulator
	waypoints WaypointSource
	// runCtx scopes simulation runs to the server lifetime rather than the
	// HTTP request that started them.
	runCtx context.Context
}

func NewHandler(store *Store, simulator *Simulator, waypoints WaypointSource, runCtx context.Context) *Handler {
	return &Handler{store: store, simulator: simulator, waypoints: waypoints, runCtx: runCtx}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("", auth.RequireRole("admin", "dispatcher", "ambulance"))
	group.POST("/gps", h.IngestSample)
	group.GET("/gps/:vehicle_id", h.GetCurrent)
	group.POST("/gps/simulate", h.StartSimulation)
	group.DELETE("/gps/simulate/:vehicle_id", h.StopSimulation)
}

type ingestRequest struct {
	VehicleID string  `json:"vehicle_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	SpeedKmh  float64 `json:"speed_kmh"`
}

func (h *Handler) IngestSample(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	vehicleID := req.VehicleID
	if own := auth.AmbulanceIDFromContext(c.Request().Context()); own != "" {
		vehicleID = own
	}
	if vehicleID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "vehicle_id is required")
	}
	if req.SpeedKmh < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "speed_kmh must not be negative")
	}

	sample := Sample{
		VehicleID:  vehicleID,
		Position:   geo.Point{Lat: req.Lat, Lng: req.Lng},
		SpeedKmh:   req.SpeedKmh,
		RecordedAt: time.Now(),
	}
	h.store.Update(sample)
	return c.JSON(http.StatusOK, sample)
}

func (h *Handler) GetCurrent(c echo.Context) error {
	sample, ok := h.store.Latest(c.Param("vehicle_id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no position sample for vehicle")
	}
	return c.JSON(http.StatusOK, sample)
}

type simulateRequest struct {
	VehicleID     string  `json:"vehicle_id"`
	DestinationID string  `json:"destination_id"`
	SpeedKmh      float64 `json:"speed_kmh"`
	StepSeconds   float64 `json:"step_seconds"`
}

func (h *Handler) StartSimulation(c echo.Context) error {
	var req simulateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	vehicleID := req.VehicleID
	if own := auth.AmbulanceIDFromContext(c.Request().Context()); own != "" {
		vehicleID = own
	}
	if vehicleID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "vehicle_id is required")
	}
	if req.SpeedKmh == 0 {
		req.SpeedKmh = 40
	}
	if req.StepSeconds == 0 {
		req.StepSeconds = 3
	}

	waypoints, ok := h.waypoints.RouteWaypoints(req.DestinationID)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown destination_id")
	}

	step := time.Duration(req.StepSeconds * float64(time.Second))
	if err := h.simulator.Start(h.runCtx, vehicleID, waypoints, req.SpeedKmh, step); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started", "vehicle_id": vehicleID})
}

func (h *Handler) StopSimulation(c echo.Context) error {
	h.simulator.Stop(c.Param("vehicle_id"))
	return c.NoContent(http.StatusNoContent)
}
