package http

import (
	"errors"
	"net/http"
	"strconv"

	"sapas/internal/backtest"
	"sapas/internal/dto"
	"sapas/internal/model"
	"sapas/internal/service"

	"sapas/pkg/utils"

	"github.com/labstack/echo/v4"
)

var runStatusFilters = []string{
	string(dto.RunStatusPending),
	string(dto.RunStatusRunning),
	string(dto.RunStatusCompleted),
	string(dto.RunStatusFailed),
	string(dto.RunStatusCancelled),
}

func (h *HttpAPIHandler) SetupBacktest(base *echo.Group) {
	backtestGroup := base.Group("/backtest")
	backtestGroup.POST("", h.submitBacktest)
	backtestGroup.GET("", h.listBacktests)
	backtestGroup.GET("/strategies", h.listStrategies)
	backtestGroup.GET("/:id", h.getBacktest)
	backtestGroup.POST("/:id/cancel", h.cancelBacktest)
}

func (h *HttpAPIHandler) submitBacktest(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.BacktestConfigRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	resp, err := h.service.BacktestService.Submit(ctx, *req)
	if err != nil {
		if backtest.IsConfigValidation(err) {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to submit backtest", nil))
	}

	return c.JSON(http.StatusAccepted, dto.NewBaseResponse(http.StatusAccepted, "backtest submitted", resp))
}

func (h *HttpAPIHandler) getBacktest(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid run id"))
	}

	withTrades := c.QueryParam("trades") != "false"

	resp, err := h.service.BacktestService.Get(ctx, uint(id), withTrades)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to get backtest", nil))
	}
	if resp == nil {
		return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, "backtest run not found", nil))
	}

	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", resp))
}

func (h *HttpAPIHandler) listBacktests(c echo.Context) error {
	ctx := c.Request().Context()

	param := model.GetBacktestRunParam{}
	if status := c.QueryParam("status"); status != "" {
		if !utils.ContainsString(runStatusFilters, status) {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid status filter"))
		}
		param.Statuses = []string{status}
	}
	if name := c.QueryParam("strategy"); name != "" {
		param.StrategyName = &name
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid limit"))
		}
		limit = parsed
	}
	param.Limit = &limit

	items, err := h.service.BacktestService.List(ctx, param)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to list backtests", nil))
	}

	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", items))
}

func (h *HttpAPIHandler) cancelBacktest(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid run id"))
	}

	if err := h.service.BacktestService.Cancel(ctx, uint(id)); err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound):
			return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil))
		case errors.Is(err, service.ErrRunNotCancellable):
			return c.JSON(http.StatusConflict, dto.NewBaseResponse(http.StatusConflict, err.Error(), nil))
		}
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to cancel backtest", nil))
	}

	return c.JSON(http.StatusOK, dto.NewSuccessResponse("cancellation requested", nil))
}

func (h *HttpAPIHandler) listStrategies(c echo.Context) error {
	infos := h.service.BacktestService.ListStrategies(c.Request().Context())
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", infos))
}
