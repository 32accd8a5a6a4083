package service

import (
	"context"
	"fmt"
	"time"

	"sapas/config"
	"sapas/internal/dto"
	"sapas/internal/model"
	"sapas/internal/repository"
	"sapas/pkg/cache"
	"sapas/pkg/common"
	"sapas/pkg/logger"
	"sapas/pkg/utils"

	"github.com/robfig/cron/v3"
)

type SchedulerService interface {
	Start() error
	Stop()
	SyncDailyBars(ctx context.Context) error
}

// schedulerService keeps the local daily-bar store warm. On each tick it
// refreshes every instrument already present in the store from its latest
// stored bar up to today.
type schedulerService struct {
	cfg          *config.Config
	log          *logger.Logger
	dailyBarRepo repository.DailyBarRepository
	gatewayRepo  repository.GatewayRepository
	cache        cache.Cache
	cron         *cron.Cron
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	c cache.Cache,
) SchedulerService {
	return &schedulerService{
		cfg:          cfg,
		log:          log,
		dailyBarRepo: repo.DailyBarRepo,
		gatewayRepo:  repo.GatewayRepo,
		cache:        c,
		cron:         cron.New(),
	}
}

func (s *schedulerService) Start() error {
	if !s.cfg.Sync.Enabled {
		s.log.Info("Daily bar sync disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.Sync.CronSpec, func() {
		ctx := context.Background()
		if err := s.SyncDailyBars(ctx); err != nil {
			s.log.ErrorContextWithAlert(ctx, "Daily bar sync failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule daily bar sync: %w", err)
	}

	s.cron.Start()
	s.log.Info("Daily bar sync scheduled", logger.StringField("cron_spec", s.cfg.Sync.CronSpec))
	return nil
}

func (s *schedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *schedulerService) SyncDailyBars(ctx context.Context) error {
	codes, err := s.dailyBarRepo.DistinctCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list codes to sync: %w", err)
	}
	if len(codes) == 0 {
		s.log.InfoContext(ctx, "No instruments in local store, nothing to sync")
		return nil
	}

	s.log.InfoContext(ctx, "Starting daily bar sync", logger.IntField("code_count", len(codes)))

	today := utils.Date(time.Now())
	var failed, synced int
	for _, code := range codes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.syncCode(ctx, code, today)
		if err != nil {
			failed++
			s.log.WarnContext(ctx, "Failed to sync instrument",
				logger.StringField("code", code),
				logger.ErrorField(err))
			continue
		}
		synced += n
	}

	// Cached price series are stale once new bars land.
	if synced > 0 {
		s.cache.Flush()
	}

	s.log.InfoContext(ctx, "Daily bar sync finished",
		logger.IntField("code_count", len(codes)),
		logger.IntField("bar_count", synced),
		logger.IntField("failed", failed))
	if failed == len(codes) {
		return fmt.Errorf("sync failed for all %d instruments", failed)
	}
	return nil
}

func (s *schedulerService) syncCode(ctx context.Context, code string, today time.Time) (int, error) {
	latest, err := s.dailyBarRepo.LatestDate(ctx, code, common.ADJUST_FORWARD)
	if err != nil {
		return 0, err
	}

	start := today.AddDate(0, 0, -s.cfg.Backtest.LookbackDays)
	if latest != nil && latest.After(start) {
		start = latest.AddDate(0, 0, 1)
	}
	if !start.Before(today) {
		return 0, nil
	}

	bars, err := s.gatewayRepo.GetDailyBars(ctx, dto.GetDailyBarsParam{
		Code:      code,
		StartDate: start,
		EndDate:   today,
		Adjust:    common.ADJUST_FORWARD,
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

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
	if err := s.dailyBarRepo.Upsert(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
