package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"sapas/config"
	"sapas/internal/backtest"
	"sapas/internal/dto"
	"sapas/internal/model"
	"sapas/internal/repository"
	"sapas/internal/strategy"
	"sapas/pkg/cache"
	"sapas/pkg/common"
	"sapas/pkg/logger"
	"sapas/pkg/telegram"
	"sapas/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrRunNotFound reports a run id with no row behind it.
	ErrRunNotFound = errors.New("backtest run not found")
	// ErrRunNotCancellable reports a cancel on a run that is already terminal
	// or otherwise out of reach.
	ErrRunNotCancellable = errors.New("backtest run cannot be cancelled")
)

// Defaults applied to a run request when the caller leaves the field zero.
const (
	defaultInitialCash    = 100000.0
	defaultCommissionRate = 0.0003
	defaultSlippage       = 0.001
	defaultMaxPositions   = 10
	defaultPositionSize   = 0.1
	defaultHoldDays       = 20
	defaultRebalanceFreq  = dto.RebalanceWeekly
)

type BacktestService interface {
	Submit(ctx context.Context, req dto.BacktestConfigRequest) (*dto.BacktestRunResponse, error)
	Get(ctx context.Context, id uint, withTrades bool) (*dto.BacktestResultResponse, error)
	List(ctx context.Context, param model.GetBacktestRunParam) ([]dto.BacktestRunListItem, error)
	Cancel(ctx context.Context, id uint) error
	ListStrategies(ctx context.Context) []dto.StrategyInfo
}

type backtestService struct {
	cfg          *config.Config
	log          *logger.Logger
	cache        cache.Cache
	backtestRepo repository.BacktestRepository
	gatewayRepo  repository.GatewayRepository
	aiRepo       repository.AIRepository
	runner       *backtest.Runner
	registry     *strategy.Registry
	notifier     *telegram.Notifier

	workers *semaphore.Weighted

	mu      sync.Mutex
	cancels map[uint]context.CancelFunc
}

func NewBacktestService(
	cfg *config.Config,
	log *logger.Logger,
	inmemoryCache cache.Cache,
	repo *repository.Repository,
	runner *backtest.Runner,
	registry *strategy.Registry,
	notifier *telegram.Notifier,
) BacktestService {
	return &backtestService{
		cfg:          cfg,
		log:          log,
		cache:        inmemoryCache,
		backtestRepo: repo.BacktestRepo,
		gatewayRepo:  repo.GatewayRepo,
		aiRepo:       repo.GeminiAIRepo,
		runner:       runner,
		registry:     registry,
		notifier:     notifier,
		workers:      semaphore.NewWeighted(int64(cfg.Backtest.MaxConcurrentRuns)),
		cancels:      make(map[uint]context.CancelFunc),
	}
}

// Submit validates the request, persists a pending run and hands it to the
// worker pool. Validation failures are returned synchronously as
// backtest.ConfigValidationError; everything after that is reported through
// the run's status.
func (s *backtestService) Submit(ctx context.Context, req dto.BacktestConfigRequest) (*dto.BacktestRunResponse, error) {
	applyDefaults(&req)

	runCfg, err := s.buildRunConfig(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.runner.Validate(runCfg); err != nil {
		return nil, err
	}

	run, err := newRunModel(req, runCfg)
	if err != nil {
		return nil, err
	}
	if err := s.backtestRepo.Create(ctx, run); err != nil {
		s.log.ErrorContext(ctx, "Failed to create backtest run", logger.ErrorField(err))
		return nil, err
	}

	utils.GoSafe(func() {
		s.execute(run.ID, *runCfg)
	})

	s.log.InfoContext(ctx, "Backtest run submitted",
		logger.IntField("run_id", int(run.ID)),
		logger.StringField("strategy", runCfg.StrategyName),
		logger.IntField("pool_size", len(runCfg.Codes)),
	)
	return &dto.BacktestRunResponse{RunID: run.ID, Status: dto.RunStatusPending}, nil
}

// execute is the worker body. It owns the full lifecycle of one run:
// pending -> running -> terminal, including timeout and cancel plumbing.
func (s *backtestService) execute(runID uint, runCfg backtest.RunConfig) {
	bg := context.Background()

	if err := s.workers.Acquire(bg, 1); err != nil {
		return
	}
	defer s.workers.Release(1)

	// The run may have been cancelled while queued.
	moved, err := s.backtestRepo.UpdateStatus(bg, runID, string(dto.RunStatusPending), string(dto.RunStatusRunning))
	if err != nil {
		s.log.Error("Failed to start backtest run", logger.IntField("run_id", int(runID)), logger.ErrorField(err))
		return
	}
	if !moved {
		s.log.Info("Backtest run no longer pending, skipping", logger.IntField("run_id", int(runID)))
		return
	}

	runCtx, cancel := context.WithTimeout(bg, s.cfg.Backtest.RunTimeout)
	runCtx = logger.NewContext(runCtx, s.log.With(logger.IntField("run_id", int(runID))))
	s.registerCancel(runID, cancel)
	defer s.unregisterCancel(runID)

	result, err := s.runner.Run(runCtx, runCfg)
	if err != nil {
		// Validation already passed in Submit, so this is unexpected.
		result = &backtest.Result{Status: dto.RunStatusFailed, Error: err.Error()}
	}

	if err := s.persistResult(bg, runID, result); err != nil {
		s.log.ErrorContextWithAlert(bg, "Failed to persist backtest result",
			logger.IntField("run_id", int(runID)),
			logger.ErrorField(err))
		return
	}

	finishedFields := []zap.Field{
		logger.IntField("run_id", int(runID)),
		logger.StringField("status", string(result.Status)),
		logger.IntField("trades", len(result.Trades)),
	}
	if result.Metrics != nil {
		finishedFields = append(finishedFields,
			logger.Float64Field("total_return", result.Metrics.TotalReturn),
			logger.Float64Field("max_drawdown", result.Metrics.MaxDrawdown))
	}
	s.log.Info("Backtest run finished", finishedFields...)

	s.notifyFinished(bg, runID, runCfg, result)

	if result.Status == dto.RunStatusCompleted && s.aiRepo != nil && result.Metrics != nil {
		s.summarizeRun(bg, runID, runCfg, result.Metrics)
	}
}

func (s *backtestService) persistResult(ctx context.Context, runID uint, result *backtest.Result) error {
	run := &model.BacktestRun{ID: runID, Status: string(result.Status), ErrorMessage: result.Error}

	if result.Metrics != nil {
		summary, err := json.Marshal(result.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal result summary: %w", err)
		}
		run.ResultSummary = summary
	}
	if len(result.EquityCurve) > 0 {
		curve, err := json.Marshal(result.EquityCurve)
		if err != nil {
			return fmt.Errorf("failed to marshal equity curve: %w", err)
		}
		run.EquityCurve = curve
	}

	trades := make([]model.BacktestTrade, 0, len(result.Trades))
	for _, t := range result.Trades {
		row := model.BacktestTrade{
			StockCode:  t.Code,
			Side:       string(t.Side),
			TradeDate:  t.Date,
			Price:      t.Price.InexactFloat64(),
			Quantity:   t.Quantity,
			Amount:     t.Amount.InexactFloat64(),
			Commission: t.Commission.InexactFloat64(),
			ExitReason: t.ExitReason,
		}
		if t.Profit != nil {
			profit := t.Profit.InexactFloat64()
			row.Profit = &profit
		}
		trades = append(trades, row)
	}

	return s.backtestRepo.SaveResult(ctx, run, trades)
}

// Cancel stops a pending or running run. Pending runs flip straight to
// cancelled; running runs get their context cancelled and the worker records
// the terminal state after finishing the current trading day.
func (s *backtestService) Cancel(ctx context.Context, id uint) error {
	moved, err := s.backtestRepo.UpdateStatus(ctx, id, string(dto.RunStatusPending), string(dto.RunStatusCancelled))
	if err != nil {
		return err
	}
	if moved {
		s.log.InfoContext(ctx, "Cancelled queued backtest run", logger.IntField("run_id", int(id)))
		return nil
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
		s.log.InfoContext(ctx, "Cancellation requested for running backtest", logger.IntField("run_id", int(id)))
		return nil
	}

	run, err := s.backtestRepo.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("backtest run %d: %w", id, ErrRunNotFound)
	}
	if dto.RunStatus(run.Status).Terminal() {
		return fmt.Errorf("backtest run %d is already %s: %w", id, run.Status, ErrRunNotCancellable)
	}
	return fmt.Errorf("backtest run %d is %s: %w", id, run.Status, ErrRunNotCancellable)
}

func (s *backtestService) Get(ctx context.Context, id uint, withTrades bool) (*dto.BacktestResultResponse, error) {
	run, err := s.backtestRepo.GetByID(ctx, id, withTrades)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}
	return runToResponse(run, withTrades)
}

func (s *backtestService) List(ctx context.Context, param model.GetBacktestRunParam) ([]dto.BacktestRunListItem, error) {
	runs, err := s.backtestRepo.List(ctx, param)
	if err != nil {
		return nil, err
	}

	items := make([]dto.BacktestRunListItem, 0, len(runs))
	for _, run := range runs {
		item := dto.BacktestRunListItem{
			RunID:        run.ID,
			StrategyName: run.StrategyName,
			StartDate:    utils.FormatDate(run.StartDate),
			EndDate:      utils.FormatDate(run.EndDate),
			Status:       dto.RunStatus(run.Status),
			CreatedAt:    run.CreatedAt,
			CompletedAt:  run.CompletedAt,
		}
		if len(run.ResultSummary) > 0 {
			var metrics dto.PerformanceMetrics
			if err := json.Unmarshal(run.ResultSummary, &metrics); err == nil {
				item.TotalReturn = &metrics.TotalReturn
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *backtestService) ListStrategies(ctx context.Context) []dto.StrategyInfo {
	if infos, ok := cache.GetTyped[[]dto.StrategyInfo](s.cache, common.KEY_STRATEGY_LIST); ok {
		return infos
	}
	infos := s.registry.List()
	s.cache.Set(common.KEY_STRATEGY_LIST, infos, s.cfg.Cache.DefaultExpiration)
	return infos
}

// buildRunConfig parses dates and resolves the stock pool, either from the
// explicit list or by expanding a sector through the gateway.
func (s *backtestService) buildRunConfig(ctx context.Context, req dto.BacktestConfigRequest) (*backtest.RunConfig, error) {
	startDate, err := utils.ParseDate(req.StartDate)
	if err != nil {
		return nil, &backtest.ConfigValidationError{Reason: err.Error()}
	}
	endDate, err := utils.ParseDate(req.EndDate)
	if err != nil {
		return nil, &backtest.ConfigValidationError{Reason: err.Error()}
	}

	codes, err := s.resolvePool(ctx, req)
	if err != nil {
		return nil, err
	}

	return &backtest.RunConfig{
		StrategyName:   req.StrategyName,
		StrategyParams: req.StrategyParams,
		StartDate:      startDate,
		EndDate:        endDate,
		InitialCash:    req.InitialCash,
		CommissionRate: req.CommissionRate,
		Slippage:       req.Slippage,
		MaxPositions:   req.MaxPositions,
		PositionSize:   req.PositionSize,
		HoldDays:       req.HoldDays,
		RebalanceFreq:  req.RebalanceFreq,
		Codes:          codes,
		LookbackDays:   s.cfg.Backtest.LookbackDays,
	}, nil
}

func (s *backtestService) resolvePool(ctx context.Context, req dto.BacktestConfigRequest) ([]string, error) {
	maxPool := s.cfg.Backtest.MaxPoolSize

	if len(req.StockPool) > 0 {
		if len(req.StockPool) > maxPool {
			return nil, &backtest.ConfigValidationError{
				Reason: fmt.Sprintf("stock pool has %d codes, limit is %d", len(req.StockPool), maxPool),
			}
		}
		return req.StockPool, nil
	}

	if req.Sector == "" {
		return nil, &backtest.ConfigValidationError{Reason: "either stock_pool or sector is required"}
	}

	cacheKey := fmt.Sprintf(common.KEY_SECTOR_CODES, req.Sector)
	codes, ok := cache.GetTyped[[]string](s.cache, cacheKey)
	if !ok {
		stocks, err := s.gatewayRepo.GetStockList(ctx, req.Sector)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to resolve sector",
				logger.StringField("sector", req.Sector),
				logger.ErrorField(err))
			return nil, err
		}
		for _, stock := range stocks {
			codes = append(codes, stock.Code)
		}
		s.cache.Set(cacheKey, codes, s.cfg.Cache.DefaultExpiration)
	}

	if len(codes) == 0 {
		return nil, &backtest.ConfigValidationError{
			Reason: fmt.Sprintf("sector %q matched no stocks", req.Sector),
		}
	}
	if len(codes) > maxPool {
		codes = codes[:maxPool]
	}
	return codes, nil
}

func (s *backtestService) notifyFinished(ctx context.Context, runID uint, runCfg backtest.RunConfig, result *backtest.Result) {
	msg := fmt.Sprintf("Backtest #%d (%s) %s", runID, runCfg.StrategyName, result.Status)
	if result.Metrics != nil {
		msg += fmt.Sprintf("\nReturn: %.2f%%  MaxDD: %.2f%%  Trades: %d",
			result.Metrics.TotalReturn*100, result.Metrics.MaxDrawdown*100, result.Metrics.TotalTrades)
	}
	if result.Error != "" {
		msg += "\nError: " + result.Error
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.WarnContext(ctx, "Failed to send run notification", logger.ErrorField(err))
	}
}

func (s *backtestService) summarizeRun(ctx context.Context, runID uint, runCfg backtest.RunConfig, metrics *dto.PerformanceMetrics) {
	summary, err := s.aiRepo.SummarizeRun(ctx, dto.AISummaryParam{
		StrategyName: runCfg.StrategyName,
		StartDate:    utils.FormatDate(runCfg.StartDate),
		EndDate:      utils.FormatDate(runCfg.EndDate),
		Metrics:      *metrics,
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to generate AI run summary",
			logger.IntField("run_id", int(runID)),
			logger.ErrorField(err))
		return
	}
	if err := s.backtestRepo.SetAISummary(ctx, runID, summary); err != nil {
		s.log.WarnContext(ctx, "Failed to store AI run summary",
			logger.IntField("run_id", int(runID)),
			logger.ErrorField(err))
	}
}

func (s *backtestService) registerCancel(id uint, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
}

func (s *backtestService) unregisterCancel(id uint) {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func applyDefaults(req *dto.BacktestConfigRequest) {
	if req.InitialCash == 0 {
		req.InitialCash = defaultInitialCash
	}
	if req.CommissionRate == 0 {
		req.CommissionRate = defaultCommissionRate
	}
	if req.Slippage == 0 {
		req.Slippage = defaultSlippage
	}
	if req.MaxPositions == 0 {
		req.MaxPositions = defaultMaxPositions
	}
	if req.PositionSize == 0 {
		req.PositionSize = defaultPositionSize
	}
	if req.HoldDays == 0 {
		req.HoldDays = defaultHoldDays
	}
	if req.RebalanceFreq == "" {
		req.RebalanceFreq = defaultRebalanceFreq
	}
}

func newRunModel(req dto.BacktestConfigRequest, runCfg *backtest.RunConfig) (*model.BacktestRun, error) {
	params, err := json.Marshal(runCfg.StrategyParams)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal strategy params: %w", err)
	}
	pool, err := json.Marshal(runCfg.Codes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stock pool: %w", err)
	}

	return &model.BacktestRun{
		StrategyName:   runCfg.StrategyName,
		StrategyParams: params,
		StartDate:      runCfg.StartDate,
		EndDate:        runCfg.EndDate,
		InitialCash:    runCfg.InitialCash,
		CommissionRate: runCfg.CommissionRate,
		Slippage:       runCfg.Slippage,
		MaxPositions:   runCfg.MaxPositions,
		PositionSize:   runCfg.PositionSize,
		HoldDays:       runCfg.HoldDays,
		RebalanceFreq:  runCfg.RebalanceFreq,
		StockPool:      pool,
		Sector:         req.Sector,
		Status:         string(dto.RunStatusPending),
	}, nil
}

func runToResponse(run *model.BacktestRun, withTrades bool) (*dto.BacktestResultResponse, error) {
	resp := &dto.BacktestResultResponse{
		RunID:       run.ID,
		Status:      dto.RunStatus(run.Status),
		Error:       run.ErrorMessage,
		AISummary:   run.AISummary,
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}

	resp.Config = dto.BacktestConfigRequest{
		StrategyName:   run.StrategyName,
		StartDate:      utils.FormatDate(run.StartDate),
		EndDate:        utils.FormatDate(run.EndDate),
		InitialCash:    run.InitialCash,
		CommissionRate: run.CommissionRate,
		Slippage:       run.Slippage,
		MaxPositions:   run.MaxPositions,
		PositionSize:   run.PositionSize,
		HoldDays:       run.HoldDays,
		RebalanceFreq:  run.RebalanceFreq,
		Sector:         run.Sector,
	}
	if len(run.StrategyParams) > 0 {
		if err := json.Unmarshal(run.StrategyParams, &resp.Config.StrategyParams); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy params: %w", err)
		}
	}
	if len(run.StockPool) > 0 {
		if err := json.Unmarshal(run.StockPool, &resp.Config.StockPool); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stock pool: %w", err)
		}
	}
	if len(run.ResultSummary) > 0 {
		var metrics dto.PerformanceMetrics
		if err := json.Unmarshal(run.ResultSummary, &metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result summary: %w", err)
		}
		resp.Performance = &metrics
	}
	if len(run.EquityCurve) > 0 {
		if err := json.Unmarshal(run.EquityCurve, &resp.EquityCurve); err != nil {
			return nil, fmt.Errorf("failed to unmarshal equity curve: %w", err)
		}
	}

	if withTrades {
		trades := make([]dto.TradeRecord, 0, len(run.Trades))
		for _, t := range run.Trades {
			record := dto.TradeRecord{
				Date:       t.TradeDate,
				Code:       t.StockCode,
				Side:       dto.TradeSide(t.Side),
				Price:      decimal.NewFromFloat(t.Price),
				Quantity:   t.Quantity,
				Amount:     decimal.NewFromFloat(t.Amount),
				Commission: decimal.NewFromFloat(t.Commission),
				ExitReason: t.ExitReason,
			}
			if t.Profit != nil {
				profit := decimal.NewFromFloat(*t.Profit)
				record.Profit = &profit
			}
			trades = append(trades, record)
		}
		resp.Trades = trades
	}

	return resp, nil
}
