package corridor

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amb/amb/internal/platform/auth"
)

// Handler exposes corridor activation and status.
type Handler struct {
	planner *Planner
}

func NewHandler(planner *Planner) *Handler {
	return &Handler{planner: planner}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("", auth.RequireRole("admin", "dispatcher", "ambulance"))
	group.POST("/corridor/update", h.UpdateCorridor)
	group.GET("/corridor/:vehicle_id", h.GetCorridorStatus)
}

type updateRequest struct {
	VehicleID string `json:"vehicle_id"`
	Severity  string `json:"severity"`
}

type updateResponse struct {
	VehicleID       string   `json:"vehicle_id"`
	Severity        string   `json:"severity"`
	CorridorSignals []string `json:"corridor_signals"`
}

func (h *Handler) UpdateCorridor(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	vehicleID := req.VehicleID
	if own := auth.AmbulanceIDFromContext(c.Request().Context()); own != "" {
		// An ambulance token can only ever drive its own corridor.
		vehicleID = own
	}
	if vehicleID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "vehicle_id is required")
	}

	corridor, err := h.planner.Activate(vehicleID, req.Severity)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updateResponse{
		VehicleID:       vehicleID,
		Severity:        req.Severity,
		CorridorSignals: corridor,
	})
}

func (h *Handler) GetCorridorStatus(c echo.Context) error {
	vehicleID := c.Param("vehicle_id")
	if own := auth.AmbulanceIDFromContext(c.Request().Context()); own != "" && own != vehicleID {
		return echo.NewHTTPError(http.StatusForbidden, "ambulances may only view their own corridor")
	}
	return c.JSON(http.StatusOK, h.planner.Status(vehicleID))
}
