package backtest

import (
	"context"
	"sort"
	"time"

	"sapas/internal/dto"
	"sapas/internal/strategy"
	"sapas/pkg/logger"

	"github.com/shopspring/decimal"
)

// PriceSeriesProvider supplies ordered, gap-free daily bars per instrument.
// Implementations must fail fast with an error when part of the requested
// range is unavailable instead of returning partially empty rows.
type PriceSeriesProvider interface {
	GetSeries(ctx context.Context, codes []string, startDate, endDate time.Time) (map[string][]dto.PriceBar, error)
}

// RunConfig is the fully resolved configuration of one run: dates parsed,
// defaults applied, stock pool expanded.
type RunConfig struct {
	StrategyName   string
	StrategyParams map[string]float64
	StartDate      time.Time
	EndDate        time.Time
	InitialCash    float64
	CommissionRate float64
	Slippage       float64
	MaxPositions   int
	PositionSize   float64
	HoldDays       int
	RebalanceFreq  string
	Codes          []string
	LookbackDays   int
}

// Result is what a finished (or cut-short) run leaves behind. Status is
// always terminal; Error is set only for failed runs.
type Result struct {
	Status      dto.RunStatus
	Error       string
	Metrics     *dto.PerformanceMetrics
	EquityCurve []dto.EquityPoint
	Trades      []dto.TradeRecord
}

// Runner drives the daily loop of a backtest: pull bars, generate signals,
// apply them to the simulator, mark to market, and reduce the outcome into
// metrics. A Runner is stateless and safe to share across concurrent runs;
// all mutable state lives in the per-run simulator.
type Runner struct {
	log      *logger.Logger
	provider PriceSeriesProvider
	registry *strategy.Registry
}

func NewRunner(log *logger.Logger, provider PriceSeriesProvider, registry *strategy.Registry) *Runner {
	return &Runner{
		log:      log,
		provider: provider,
		registry: registry,
	}
}

// Validate checks the config against the chosen strategy's parameter specs
// and resolves defaults into cfg.StrategyParams. It must pass before Run;
// failures are ConfigValidationError and the run never starts.
func (r *Runner) Validate(cfg *RunConfig) error {
	gen, ok := r.registry.Get(cfg.StrategyName)
	if !ok {
		return configErr("unknown strategy %q", cfg.StrategyName)
	}

	resolved, err := strategy.ResolveParams(gen, cfg.StrategyParams)
	if err != nil {
		return &ConfigValidationError{Reason: err.Error()}
	}
	cfg.StrategyParams = resolved

	if !cfg.StartDate.Before(cfg.EndDate) {
		return configErr("start date %s is not before end date %s",
			cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"))
	}
	if cfg.InitialCash <= 0 {
		return configErr("initial cash must be positive")
	}
	if cfg.PositionSize <= 0 || cfg.PositionSize > 1 {
		return configErr("position size must be in (0, 1]")
	}
	if cfg.MaxPositions < 1 {
		return configErr("max positions must be at least 1")
	}
	if len(cfg.Codes) == 0 {
		return configErr("stock pool is empty")
	}
	switch cfg.RebalanceFreq {
	case dto.RebalanceDaily, dto.RebalanceWeekly, dto.RebalanceMonthly:
	default:
		return configErr("unknown rebalance frequency %q", cfg.RebalanceFreq)
	}
	return nil
}

// Run executes the daily loop. The returned Result always has a terminal
// status: completed on success, failed on mid-run data errors, cancelled if
// ctx was cancelled between trading days. The error return is non-nil only
// when validation rejects the config and nothing ran.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if err := r.Validate(&cfg); err != nil {
		return nil, err
	}

	gen, _ := r.registry.Get(cfg.StrategyName)

	series, err := r.provider.GetSeries(ctx, cfg.Codes, cfg.StartDate, cfg.EndDate)
	if err != nil {
		// A cancel or timeout that lands during the fetch is still a
		// cancellation, not a data failure.
		if ctx.Err() != nil {
			return &Result{Status: dto.RunStatusCancelled}, nil
		}
		return &Result{Status: dto.RunStatusFailed, Error: err.Error()}, nil
	}

	days, byDay := indexSeries(series)
	if len(days) == 0 {
		return &Result{
			Status: dto.RunStatusFailed,
			Error:  (&DataIntegrityError{Reason: "no trading days in requested range"}).Error(),
		}, nil
	}

	sim := NewSimulator(SimConfig{
		InitialCash:    decimal.NewFromFloat(cfg.InitialCash),
		CommissionRate: decimal.NewFromFloat(cfg.CommissionRate),
		Slippage:       decimal.NewFromFloat(cfg.Slippage),
		PositionSize:   decimal.NewFromFloat(cfg.PositionSize),
		MaxPositions:   cfg.MaxPositions,
	})

	var lastRebalance time.Time
	for _, day := range days {
		if ctx.Err() != nil {
			return r.finish(sim, dto.RunStatusCancelled, "")
		}

		bars := byDay[day]
		window := buildWindow(series, day, cfg.LookbackDays)
		signals := gen.Evaluate(strategy.EvalContext{
			Window:    window,
			Params:    cfg.StrategyParams,
			Portfolio: sim.Snapshot(),
		})

		if err := r.applyDay(sim, cfg, day, bars, signals, &lastRebalance); err != nil {
			r.log.ErrorContext(ctx, "Backtest day failed",
				logger.TimeField("date", day),
				logger.ErrorField(err),
			)
			return r.finish(sim, dto.RunStatusFailed, err.Error())
		}

		closes := make(map[string]float64, len(bars))
		for code, bar := range bars {
			closes[code] = bar.Close
		}
		if _, err := sim.MarkToMarket(day, closes); err != nil {
			return r.finish(sim, dto.RunStatusFailed, err.Error())
		}

		// Cooperative cancellation: only between trading days, never
		// mid-day, so the curve has no partial-day state.
		if ctx.Err() != nil {
			return r.finish(sim, dto.RunStatusCancelled, "")
		}
	}

	return r.finish(sim, dto.RunStatusCompleted, "")
}

// applyDay executes one trading day's orders. Precedence: explicit sell
// signals first, then holding-period forced exits, then buys while position
// capacity and the rebalance gate allow. Each group is applied in
// lexicographic code order.
func (r *Runner) applyDay(sim *Simulator, cfg RunConfig, day time.Time, bars map[string]dto.PriceBar, signals strategy.SignalSet, lastRebalance *time.Time) error {
	sold := make(map[string]bool)

	for _, sell := range signals.Sells {
		bar, ok := bars[sell.Code]
		if !ok {
			continue // not traded today, exit retried on its next bar
		}
		record, err := sim.ApplySignal(day, sell.Code, dto.TradeSideSell, bar.Close, sell.Reason)
		if err != nil {
			return err
		}
		if record != nil {
			sold[sell.Code] = true
		}
	}

	// An explicit sell signal on the same day wins over the holding cap;
	// expired positions already sold above are skipped here.
	for _, code := range sim.ExpiredPositions(cfg.HoldDays) {
		if sold[code] {
			continue
		}
		bar, ok := bars[code]
		if !ok {
			continue
		}
		if _, err := sim.ApplySignal(day, code, dto.TradeSideSell, bar.Close, dto.ExitReasonMaxHoldDays); err != nil {
			return err
		}
	}

	if !shouldRebalance(cfg.RebalanceFreq, *lastRebalance, day) {
		return nil
	}
	*lastRebalance = day

	for _, code := range signals.Buys {
		bar, ok := bars[code]
		if !ok {
			continue
		}
		if _, err := sim.ApplySignal(day, code, dto.TradeSideBuy, bar.Close, ""); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) finish(sim *Simulator, status dto.RunStatus, errMsg string) (*Result, error) {
	result := &Result{
		Status:      status,
		Error:       errMsg,
		EquityCurve: sim.EquityCurve(),
		Trades:      sim.Trades(),
	}
	if status == dto.RunStatusCompleted {
		result.Metrics = Analyze(sim.EquityCurve(), sim.Trades(), sim.cfg.InitialCash)
	}
	return result, nil
}

// shouldRebalance gates new entries: daily runs every trading day, weekly
// and monthly wait out the calendar interval since the last rebalance.
func shouldRebalance(freq string, last, day time.Time) bool {
	if last.IsZero() {
		return true
	}
	elapsed := int(day.Sub(last).Hours() / 24)
	switch freq {
	case dto.RebalanceDaily:
		return elapsed >= 1
	case dto.RebalanceWeekly:
		return elapsed >= 7
	case dto.RebalanceMonthly:
		return elapsed >= 30
	}
	return false
}

// indexSeries builds the ascending trading-day axis (union across codes) and
// a per-day lookup of that day's bars. Non-trading days are simply absent.
func indexSeries(series map[string][]dto.PriceBar) ([]time.Time, map[time.Time]map[string]dto.PriceBar) {
	byDay := make(map[time.Time]map[string]dto.PriceBar)
	for code, bars := range series {
		for _, bar := range bars {
			day := bar.Date
			if byDay[day] == nil {
				byDay[day] = make(map[string]dto.PriceBar)
			}
			byDay[day][code] = bar
		}
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, byDay
}

// buildWindow slices, per code, the lookback ending at day. Codes without a
// bar on day are left out: a stale window must not produce a tradeable
// signal for an instrument that is not trading.
func buildWindow(series map[string][]dto.PriceBar, day time.Time, lookbackDays int) strategy.Window {
	window := make(strategy.Window, len(series))
	for code, bars := range series {
		idx := -1
		for i, bar := range bars {
			if bar.Date.Equal(day) {
				idx = i
				break
			}
			if bar.Date.After(day) {
				break
			}
		}
		if idx < 0 {
			continue
		}
		from := 0
		if lookbackDays > 0 && idx+1 > lookbackDays {
			from = idx + 1 - lookbackDays
		}
		window[code] = bars[from : idx+1]
	}
	return window
}
