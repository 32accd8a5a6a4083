package repository

import (
	"context"
	"fmt"
	"time"

	"sapas/config"
	"sapas/internal/dto"
	"sapas/internal/model"
	"sapas/pkg/cache"
	"sapas/pkg/common"
	"sapas/pkg/logger"
	"sapas/pkg/utils"

	"golang.org/x/sync/errgroup"
)

type PriceProviderRepository interface {
	GetSeries(ctx context.Context, codes []string, startDate, endDate time.Time) (map[string][]dto.PriceBar, error)
}

// priceProvider is the read path for backtest runs: per-code series come
// from the in-memory cache, then the local daily_bars store, then the
// gateway. Gateway hits are written back to the store so the next run over
// the same range never leaves the process.
type priceProvider struct {
	cfg          *config.Config
	logger       *logger.Logger
	cache        cache.Cache
	dailyBarRepo DailyBarRepository
	gatewayRepo  GatewayRepository
}

func NewPriceProvider(cfg *config.Config, log *logger.Logger, c cache.Cache, dailyBarRepo DailyBarRepository, gatewayRepo GatewayRepository) PriceProviderRepository {
	return &priceProvider{
		cfg:          cfg,
		logger:       log,
		cache:        c,
		dailyBarRepo: dailyBarRepo,
		gatewayRepo:  gatewayRepo,
	}
}

func (p *priceProvider) GetSeries(ctx context.Context, codes []string, startDate, endDate time.Time) (map[string][]dto.PriceBar, error) {
	perCode := make([][]dto.PriceBar, len(codes))

	// Cache and store reads are cheap, only gateway misses block; the
	// gateway client applies its own rate limit.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, code := range codes {
		g.Go(func() error {
			bars, err := p.getCodeSeries(gctx, code, startDate, endDate)
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				return fmt.Errorf("no price data for %s between %s and %s",
					code, utils.FormatDate(startDate), utils.FormatDate(endDate))
			}
			perCode[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := make(map[string][]dto.PriceBar, len(codes))
	for i, code := range codes {
		series[code] = perCode[i]
	}
	return series, nil
}

func (p *priceProvider) getCodeSeries(ctx context.Context, code string, startDate, endDate time.Time) ([]dto.PriceBar, error) {
	cacheKey := fmt.Sprintf(common.KEY_DAILY_BARS, code, utils.FormatDate(startDate), utils.FormatDate(endDate))
	if bars, ok := cache.GetTyped[[]dto.PriceBar](p.cache, cacheKey); ok {
		return bars, nil
	}

	param := dto.GetDailyBarsParam{
		Code:      code,
		StartDate: startDate,
		EndDate:   endDate,
		Adjust:    common.ADJUST_FORWARD,
	}

	rows, err := p.dailyBarRepo.Get(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("failed to read local bars for %s: %w", code, err)
	}

	var bars []dto.PriceBar
	if len(rows) > 0 && p.coversRange(ctx, code, endDate) {
		bars = rowsToBars(rows)
	} else {
		fetched, err := p.gatewayRepo.GetDailyBars(ctx, param)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch bars for %s: %w", code, err)
		}
		bars = fetched

		if err := p.dailyBarRepo.Upsert(ctx, barsToRows(fetched)); err != nil {
			// Persisting is best effort, the run still has its data.
			p.logger.WarnContext(ctx, "Failed to persist fetched bars",
				logger.StringField("code", code),
				logger.ErrorField(err))
		}
	}

	p.cache.Set(cacheKey, bars, p.cfg.Cache.DefaultExpiration)
	return bars, nil
}

// coversRange reports whether the local store is fresh enough to serve a
// series ending at endDate without a gateway round trip. Weekends and
// holidays make exact coverage unknowable locally, so anything within five
// calendar days of the latest stored bar counts as covered.
func (p *priceProvider) coversRange(ctx context.Context, code string, endDate time.Time) bool {
	latest, err := p.dailyBarRepo.LatestDate(ctx, code, common.ADJUST_FORWARD)
	if err != nil || latest == nil {
		return false
	}
	return utils.DaysBetween(*latest, endDate) <= 5
}

func rowsToBars(rows []model.DailyBar) []dto.PriceBar {
	bars := make([]dto.PriceBar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, dto.PriceBar{
			Code:   row.StockCode,
			Date:   utils.Date(row.TradeDate),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
			Amount: row.Amount,
			Adjust: row.Adjust,
		})
	}
	return bars
}

func barsToRows(bars []dto.PriceBar) []model.DailyBar {
	rows := make([]model.DailyBar, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, model.DailyBar{
			StockCode: bar.Code,
			TradeDate: bar.Date,
			Adjust:    bar.Adjust,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
			Amount:    bar.Amount,
		})
	}
	return rows
}
