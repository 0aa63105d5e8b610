package signal

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/amb/amb/internal/platform/auth"
)

const defaultHistoryTail = 10

// Handler serves read-only signal projections for monitoring collaborators.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "dispatcher", "ambulance"))
	readGroup.GET("/signals", h.ListSignals)
	readGroup.GET("/signals/:id", h.GetSignal)
	readGroup.GET("/signals/:id/history", h.GetSignalHistory)
}

func (h *Handler) ListSignals(c echo.Context) error {
	ids := h.store.IDs()
	sort.Strings(ids)
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if sig, ok := h.store.Get(id); ok {
			out = append(out, sig.Snapshot(0))
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetSignal(c echo.Context) error {
	sig, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "signal not found")
	}
	tail := defaultHistoryTail
	if v := c.QueryParam("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tail")
		}
		tail = n
	}
	return c.JSON(http.StatusOK, sig.Snapshot(tail))
}

func (h *Handler) GetSignalHistory(c echo.Context) error {
	sig, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "signal not found")
	}
	return c.JSON(http.StatusOK, sig.History())
}
