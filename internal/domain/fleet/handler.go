package fleet

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/amb/amb/internal/platform/auth"
	"github.com/amb/amb/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Roster and read endpoints
	readGroup := api.Group("", auth.RequireRole("admin", "dispatcher", "ambulance"))
	readGroup.GET("/hospitals", h.ListHospitals)
	readGroup.GET("/ambulances", h.ListAmbulances)
	readGroup.GET("/emergencies", h.ListEmergencies)
	readGroup.GET("/emergencies/:id", h.GetEmergency)
	readGroup.GET("/trips", h.ListTrips)
	readGroup.GET("/trips/:id", h.GetTrip)

	// Dispatch endpoints
	dispatchGroup := api.Group("", auth.RequireRole("admin", "dispatcher"))
	dispatchGroup.POST("/emergencies", h.CreateEmergency)
	dispatchGroup.POST("/trips", h.CreateTrip)

	// Crews advance their own trip; dispatch can advance any.
	crewGroup := api.Group("", auth.RequireRole("admin", "dispatcher", "ambulance"))
	crewGroup.POST("/trips/:id/transition", h.TransitionTrip)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.registry.Hospitals())
}

func (h *Handler) ListAmbulances(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.registry.Ambulances())
}

func (h *Handler) CreateEmergency(c echo.Context) error {
	var e Emergency
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateEmergency(c.Request().Context(), &e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEmergency(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetEmergency(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "emergency not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEmergencies(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListEmergencies(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateTrip(c echo.Context) error {
	var t Trip
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateTrip(c.Request().Context(), &t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTrip(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetTrip(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "trip not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTrips(c echo.Context) error {
	pg := pagination.FromContext(c)
	if ambulanceID := c.QueryParam("ambulance_id"); ambulanceID != "" {
		items, total, err := h.svc.ListTripsByAmbulance(c.Request().Context(), ambulanceID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	items, total, err := h.svc.ListTrips(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type transitionRequest struct {
	State string `json:"state"`
}

func (h *Handler) TransitionTrip(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next, err := ParseTripState(req.State)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if own := auth.AmbulanceIDFromContext(ctx); own != "" {
		t, err := h.svc.GetTrip(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "trip not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if t.AmbulanceID != own {
			return echo.NewHTTPError(http.StatusForbidden, "trip belongs to another ambulance")
		}
	}

	t, err := h.svc.TransitionTrip(ctx, id, next)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "trip not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}
