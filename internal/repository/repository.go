package repository

import (
	"sapas/config"
	"sapas/pkg/cache"
	"sapas/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	BacktestRepo  BacktestRepository
	DailyBarRepo  DailyBarRepository
	GatewayRepo   GatewayRepository
	PriceProvider PriceProviderRepository
	GeminiAIRepo  AIRepository
}

func NewRepository(cfg *config.Config, db *gorm.DB, c cache.Cache, log *logger.Logger) (*Repository, error) {
	var geminiAIRepo AIRepository
	if cfg.Gemini.Enabled {
		repo, err := NewGeminiAIRepository(cfg, log)
		if err != nil {
			return nil, err
		}
		geminiAIRepo = repo
	}

	dailyBarRepo := NewDailyBarRepository(db)
	gatewayRepo := NewGatewayRepository(cfg, log)

	return &Repository{
		BacktestRepo:  NewBacktestRepository(db),
		DailyBarRepo:  dailyBarRepo,
		GatewayRepo:   gatewayRepo,
		PriceProvider: NewPriceProvider(cfg, log, c, dailyBarRepo, gatewayRepo),
		GeminiAIRepo:  geminiAIRepo,
	}, nil
}
