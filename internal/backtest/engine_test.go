package backtest

import (
	"context"
	"testing"
	"time"

	"sapas/internal/dto"
	"sapas/internal/strategy"
	"sapas/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapProvider serves a fixed in-memory series set.
type mapProvider struct {
	series map[string][]dto.PriceBar
}

func (p *mapProvider) GetSeries(_ context.Context, codes []string, _, _ time.Time) (map[string][]dto.PriceBar, error) {
	out := make(map[string][]dto.PriceBar, len(codes))
	for _, code := range codes {
		out[code] = p.series[code]
	}
	return out, nil
}

// blockingProvider stalls until the caller's context ends, like a slow
// gateway fetch outliving a cancel or timeout.
type blockingProvider struct{}

func (p *blockingProvider) GetSeries(ctx context.Context, _ []string, _, _ time.Time) (map[string][]dto.PriceBar, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// scriptedStrategy delegates evaluation to a closure so tests can dictate
// the exact signal sequence.
type scriptedStrategy struct {
	eval func(ec strategy.EvalContext) strategy.SignalSet
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Params() []strategy.ParamSpec { return nil }

func (s *scriptedStrategy) Info() dto.StrategyInfo {
	return dto.StrategyInfo{Name: s.Name()}
}

func (s *scriptedStrategy) Evaluate(ec strategy.EvalContext) strategy.SignalSet {
	return s.eval(ec)
}

func bars(code string, closesByDay map[int]float64) []dto.PriceBar {
	var out []dto.PriceBar
	for d := 1; d <= 31; d++ {
		if close, ok := closesByDay[d]; ok {
			out = append(out, dto.PriceBar{
				Code:  code,
				Date:  day(d),
				Open:  close,
				High:  close,
				Low:   close,
				Close: close,
			})
		}
	}
	return out
}

func testRunner(series map[string][]dto.PriceBar, eval func(ec strategy.EvalContext) strategy.SignalSet) *Runner {
	log, _ := logger.New("error", "console")
	registry := strategy.NewRegistry()
	registry.Register(&scriptedStrategy{eval: eval})
	return NewRunner(log, &mapProvider{series: series}, registry)
}

func testRunConfig(codes ...string) RunConfig {
	return RunConfig{
		StrategyName:   "scripted",
		StartDate:      day(1),
		EndDate:        day(10),
		InitialCash:    100000,
		CommissionRate: 0.0003,
		Slippage:       0.001,
		MaxPositions:   10,
		PositionSize:   0.1,
		HoldDays:       20,
		RebalanceFreq:  dto.RebalanceDaily,
		Codes:          codes,
		LookbackDays:   60,
	}
}

func TestRunner_Validate(t *testing.T) {
	runner := testRunner(nil, nil)

	tests := []struct {
		name   string
		mutate func(cfg *RunConfig)
	}{
		{"unknown strategy", func(cfg *RunConfig) { cfg.StrategyName = "nope" }},
		{"start not before end", func(cfg *RunConfig) { cfg.EndDate = cfg.StartDate }},
		{"non-positive cash", func(cfg *RunConfig) { cfg.InitialCash = 0 }},
		{"position size above one", func(cfg *RunConfig) { cfg.PositionSize = 1.5 }},
		{"no positions allowed", func(cfg *RunConfig) { cfg.MaxPositions = 0 }},
		{"empty pool", func(cfg *RunConfig) { cfg.Codes = nil }},
		{"bad rebalance freq", func(cfg *RunConfig) { cfg.RebalanceFreq = "hourly" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testRunConfig("600519")
			tt.mutate(&cfg)
			err := runner.Validate(&cfg)
			assert.True(t, IsConfigValidation(err), "expected config validation error, got %v", err)
		})
	}

	t.Run("valid config passes", func(t *testing.T) {
		cfg := testRunConfig("600519")
		assert.NoError(t, runner.Validate(&cfg))
	})
}

func TestRunner_CompletedRun(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"600519": bars("600519", map[int]float64{1: 100, 2: 102, 3: 104, 4: 110, 5: 108}),
	}
	runner := testRunner(series, func(ec strategy.EvalContext) strategy.SignalSet {
		w := ec.Window["600519"]
		switch {
		case len(w) == 1 && !ec.Portfolio.Held("600519"):
			return strategy.SignalSet{Buys: []string{"600519"}}
		case len(w) == 4 && ec.Portfolio.Held("600519"):
			return strategy.SignalSet{Sells: []strategy.SellSignal{{Code: "600519", Reason: dto.ExitReasonSignal}}}
		}
		return strategy.SignalSet{}
	})

	result, err := runner.Run(context.Background(), testRunConfig("600519"))
	require.NoError(t, err)

	assert.Equal(t, dto.RunStatusCompleted, result.Status)
	assert.Empty(t, result.Error)
	assert.Len(t, result.EquityCurve, 5)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, dto.TradeSideBuy, result.Trades[0].Side)
	assert.Equal(t, day(1), result.Trades[0].Date)
	assert.Equal(t, dto.TradeSideSell, result.Trades[1].Side)
	assert.Equal(t, day(4), result.Trades[1].Date)
	assert.Equal(t, dto.ExitReasonSignal, result.Trades[1].ExitReason)

	require.NotNil(t, result.Metrics)
	assert.Equal(t, 5, result.Metrics.TradingDays)
	assert.Equal(t, 1, result.Metrics.TotalTrades)
	assert.Equal(t, 1, result.Metrics.ProfitableTrades)
}

func TestRunner_CancelDuringFetch(t *testing.T) {
	log, _ := logger.New("error", "console")
	registry := strategy.NewRegistry()
	registry.Register(&scriptedStrategy{eval: func(strategy.EvalContext) strategy.SignalSet {
		return strategy.SignalSet{}
	}})
	runner := NewRunner(log, &blockingProvider{}, registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.Run(ctx, testRunConfig("600519"))
	require.NoError(t, err)

	assert.Equal(t, dto.RunStatusCancelled, result.Status)
	assert.Empty(t, result.Error)
	assert.Empty(t, result.EquityCurve)
	assert.Nil(t, result.Metrics)
}

func TestRunner_FrictionlessRoundTrip(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"X": bars("X", map[int]float64{1: 10, 2: 11, 3: 9, 4: 9, 5: 12}),
	}
	runner := testRunner(series, func(ec strategy.EvalContext) strategy.SignalSet {
		w := ec.Window["X"]
		switch {
		case len(w) == 1 && !ec.Portfolio.Held("X"):
			return strategy.SignalSet{Buys: []string{"X"}}
		case len(w) == 4 && ec.Portfolio.Held("X"):
			return strategy.SignalSet{Sells: []strategy.SellSignal{{Code: "X", Reason: dto.ExitReasonSignal}}}
		}
		return strategy.SignalSet{}
	})

	cfg := testRunConfig("X")
	cfg.EndDate = day(5)
	cfg.InitialCash = 1000
	cfg.CommissionRate = 0
	cfg.Slippage = 0
	cfg.PositionSize = 1.0

	result, err := runner.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, dto.RunStatusCompleted, result.Status)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, int64(100), result.Trades[0].Quantity)
	assert.Equal(t, "10", result.Trades[0].Price.String())
	assert.Equal(t, "1000", result.Trades[0].Amount.String())
	assert.Equal(t, "900", result.Trades[1].Amount.String())
	require.NotNil(t, result.Trades[1].Profit)
	assert.Equal(t, "-100", result.Trades[1].Profit.String())

	require.Len(t, result.EquityCurve, 5)
	for i, want := range []string{"1000", "1100", "900", "900", "900"} {
		assert.Equal(t, want, result.EquityCurve[i].Equity.String(), "day %d", i+1)
	}

	require.NotNil(t, result.Metrics)
	assert.Equal(t, 1, result.Metrics.TotalTrades)
	assert.Equal(t, 0.0, result.Metrics.WinRate)
	assert.Equal(t, 900.0, result.Metrics.FinalEquity)
	assert.Equal(t, -0.1, result.Metrics.TotalReturn)
}

func TestRunner_CashTooSmallToTrade(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"X": bars("X", map[int]float64{1: 10, 2: 11, 3: 9, 4: 9, 5: 12}),
	}
	runner := testRunner(series, func(ec strategy.EvalContext) strategy.SignalSet {
		if !ec.Portfolio.Held("X") {
			return strategy.SignalSet{Buys: []string{"X"}}
		}
		return strategy.SignalSet{}
	})

	cfg := testRunConfig("X")
	cfg.EndDate = day(5)
	cfg.InitialCash = 5
	cfg.PositionSize = 1.0

	result, err := runner.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, dto.RunStatusCompleted, result.Status)
	assert.Empty(t, result.Trades)
	require.Len(t, result.EquityCurve, 5)
	for _, point := range result.EquityCurve {
		assert.Equal(t, "5", point.Equity.String())
	}
}

func TestRunner_Determinism(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"000001": bars("000001", map[int]float64{1: 10, 2: 11, 3: 9, 4: 12, 5: 13}),
		"000002": bars("000002", map[int]float64{1: 20, 2: 19, 3: 21, 4: 22, 5: 18}),
	}
	eval := func(ec strategy.EvalContext) strategy.SignalSet {
		var set strategy.SignalSet
		for code := range ec.Window {
			if !ec.Portfolio.Held(code) {
				set.Buys = append(set.Buys, code)
			}
		}
		set.Sort()
		return set
	}

	runner := testRunner(series, eval)
	first, err := runner.Run(context.Background(), testRunConfig("000001", "000002"))
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), testRunConfig("000001", "000002"))
	require.NoError(t, err)

	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.Metrics, second.Metrics)
}

func TestRunner_MaxHoldDaysForcesExit(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"600519": bars("600519", map[int]float64{1: 100, 2: 101, 3: 102, 4: 103, 5: 104}),
	}
	runner := testRunner(series, func(ec strategy.EvalContext) strategy.SignalSet {
		if len(ec.Window["600519"]) == 1 {
			return strategy.SignalSet{Buys: []string{"600519"}}
		}
		return strategy.SignalSet{}
	})

	cfg := testRunConfig("600519")
	cfg.HoldDays = 2

	result, err := runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, dto.RunStatusCompleted, result.Status)

	require.Len(t, result.Trades, 2)
	sell := result.Trades[1]
	assert.Equal(t, dto.TradeSideSell, sell.Side)
	assert.Equal(t, day(4), sell.Date)
	assert.Equal(t, dto.ExitReasonMaxHoldDays, sell.ExitReason)
}

func TestRunner_WeeklyRebalanceGatesBuys(t *testing.T) {
	closes := map[int]float64{}
	for d := 1; d <= 10; d++ {
		closes[d] = 100
	}
	series := map[string][]dto.PriceBar{"600519": bars("600519", closes)}

	alwaysBuy := func(ec strategy.EvalContext) strategy.SignalSet {
		return strategy.SignalSet{Buys: []string{"600519"}}
	}

	cfg := testRunConfig("600519")
	cfg.RebalanceFreq = dto.RebalanceWeekly
	result, err := testRunner(series, alwaysBuy).Run(context.Background(), cfg)
	require.NoError(t, err)
	// Days 1 and 8 are rebalance days.
	assert.Len(t, result.Trades, 2)

	cfg.RebalanceFreq = dto.RebalanceDaily
	result, err = testRunner(series, alwaysBuy).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, result.Trades, 10)
}

func TestRunner_CancellationBetweenDays(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"600519": bars("600519", map[int]float64{1: 100, 2: 101, 3: 102, 4: 103, 5: 104}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := testRunner(series, func(ec strategy.EvalContext) strategy.SignalSet {
		if len(ec.Window["600519"]) == 3 {
			cancel()
		}
		return strategy.SignalSet{}
	})

	result, err := runner.Run(ctx, testRunConfig("600519"))
	require.NoError(t, err)

	// Day 3 finishes its mark-to-market before the run stops.
	assert.Equal(t, dto.RunStatusCancelled, result.Status)
	assert.Empty(t, result.Error)
	assert.Len(t, result.EquityCurve, 3)
	assert.Nil(t, result.Metrics)
}

func TestRunner_MissingCloseFailsRun(t *testing.T) {
	series := map[string][]dto.PriceBar{
		"000001": bars("000001", map[int]float64{1: 10, 2: 11, 3: 12, 4: 13}),
		"000002": bars("000002", map[int]float64{1: 20, 2: 21}),
	}
	runner := testRunner(series, func(ec strategy.EvalContext) strategy.SignalSet {
		if len(ec.Window["000002"]) == 1 {
			return strategy.SignalSet{Buys: []string{"000002"}}
		}
		return strategy.SignalSet{}
	})

	result, err := runner.Run(context.Background(), testRunConfig("000001", "000002"))
	require.NoError(t, err)

	// Partial results survive the failure.
	assert.Equal(t, dto.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "no closing price")
	assert.Len(t, result.EquityCurve, 2)
	assert.Len(t, result.Trades, 1)
	assert.Nil(t, result.Metrics)
}
