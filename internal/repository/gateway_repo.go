package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sapas/config"
	"sapas/internal/dto"
	"sapas/pkg/common"
	"sapas/pkg/httpclient"
	"sapas/pkg/logger"
	"sapas/pkg/ratelimit"
	"sapas/pkg/utils"

	"golang.org/x/time/rate"
)

type GatewayRepository interface {
	GetDailyBars(ctx context.Context, param dto.GetDailyBarsParam) ([]dto.PriceBar, error)
	GetStockList(ctx context.Context, sector string) ([]dto.GatewayStock, error)
}

// gatewayRepository talks to the market-data gateway that fronts the
// upstream quote providers. The gateway enforces its quota per endpoint,
// so each endpoint gets its own limiter.
type gatewayRepository struct {
	httpClient httpclient.HTTPClient
	cfg        *config.Config
	logger     *logger.Logger
	limiters   *ratelimit.LimiterStore
}

func NewGatewayRepository(cfg *config.Config, log *logger.Logger) GatewayRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.Gateway.MaxRequestPerMin)

	return &gatewayRepository{
		httpClient: httpclient.New(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, cfg.Gateway.Token),
		cfg:        cfg,
		logger:     log,
		limiters:   ratelimit.NewLimiterStore(rate.Every(secondsPerRequest), 1),
	}
}

func (r *gatewayRepository) GetDailyBars(ctx context.Context, param dto.GetDailyBarsParam) ([]dto.PriceBar, error) {
	if err := r.limiters.GetLimiter("klines").Wait(ctx); err != nil {
		return nil, err
	}

	adjust := param.Adjust
	if adjust == "" {
		adjust = common.ADJUST_FORWARD
	}

	endpoint := fmt.Sprintf("/api/v1/klines/%s", param.Code)
	queryParams := map[string]string{
		"start_date": utils.FormatDate(param.StartDate),
		"end_date":   utils.FormatDate(param.EndDate),
		"period":     "daily",
		"adjust":     adjust,
	}

	var barsResp dto.GatewayBarsResponse
	resp, err := r.httpClient.Get(ctx, endpoint, queryParams, nil, &barsResp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines from gateway: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		r.logger.ErrorContext(ctx, "Gateway returned Non-OK status for klines",
			logger.StringField("code", param.Code),
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("body", string(resp.Body)))
		return nil, fmt.Errorf("gateway klines returned status: %d", resp.StatusCode)
	}

	bars := make([]dto.PriceBar, 0, len(barsResp.Items))
	for _, item := range barsResp.Items {
		date, err := utils.ParseDate(item.Date)
		if err != nil {
			return nil, fmt.Errorf("gateway returned malformed date %q for %s: %w", item.Date, param.Code, err)
		}
		bars = append(bars, dto.PriceBar{
			Code:   param.Code,
			Date:   date,
			Open:   item.Open,
			High:   item.High,
			Low:    item.Low,
			Close:  item.Close,
			Volume: item.Volume,
			Amount: item.Amount,
			Adjust: adjust,
		})
	}

	return bars, nil
}

func (r *gatewayRepository) GetStockList(ctx context.Context, sector string) ([]dto.GatewayStock, error) {
	if err := r.limiters.GetLimiter("stocks").Wait(ctx); err != nil {
		return nil, err
	}

	queryParams := map[string]string{}
	if sector != "" {
		queryParams["industry"] = sector
	}

	var listResp dto.GatewayStockListResponse
	resp, err := r.httpClient.Get(ctx, "/api/v1/stocks", queryParams, nil, &listResp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock list from gateway: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		r.logger.ErrorContext(ctx, "Gateway returned Non-OK status for stock list",
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("body", string(resp.Body)))
		return nil, fmt.Errorf("gateway stock list returned status: %d", resp.StatusCode)
	}

	return listResp.Items, nil
}
