package arbitration

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amb/amb/internal/platform/auth"
	"github.com/amb/amb/pkg/pagination"
)

// Handler exposes the arbitration audit surface for dashboards.
type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "dispatcher"))
	readGroup.GET("/traffic/decisions", h.ListDecisions)
	readGroup.GET("/traffic/locks", h.ListLocks)
}

func (h *Handler) ListDecisions(c echo.Context) error {
	pg := pagination.FromContext(c)
	decisions, total := h.resolver.Decisions(pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, pagination.NewResponse(decisions, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListLocks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resolver.Locks())
}
