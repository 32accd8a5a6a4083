package http

import (
	"net/http"

	"sapas/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupSync(base *echo.Group) {
	syncGroup := base.Group("/sync")
	syncGroup.POST("/daily-bars", h.runDailyBarSync)
}

// runDailyBarSync triggers the same refresh the cron schedule runs, for
// operators who need data sooner than the next tick.
func (h *HttpAPIHandler) runDailyBarSync(c echo.Context) error {
	response := dto.NewSuccessResponse("daily bar sync finished", nil)
	if err := h.service.SchedulerService.SyncDailyBars(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}
