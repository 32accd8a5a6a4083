package service

import (
	"sapas/config"
	"sapas/internal/backtest"
	"sapas/internal/repository"
	"sapas/internal/strategy"
	"sapas/pkg/cache"
	"sapas/pkg/logger"
	"sapas/pkg/telegram"
)

type Service struct {
	BacktestService  BacktestService
	SchedulerService SchedulerService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	inmemoryCache cache.Cache,
	notifier *telegram.Notifier,
) *Service {
	registry := strategy.NewDefaultRegistry()
	runner := backtest.NewRunner(log, repo.PriceProvider, registry)

	return &Service{
		BacktestService:  NewBacktestService(cfg, log, inmemoryCache, repo, runner, registry, notifier),
		SchedulerService: NewSchedulerService(cfg, log, repo, inmemoryCache),
	}
}
