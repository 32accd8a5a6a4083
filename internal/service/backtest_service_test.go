package service

import (
	"testing"
	"time"

	"sapas/internal/dto"
	"sapas/internal/model"

	"gorm.io/datatypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	req := dto.BacktestConfigRequest{
		StrategyName: "rsi_macd",
		StartDate:    "2023-01-01",
		EndDate:      "2023-12-31",
	}
	applyDefaults(&req)

	assert.Equal(t, 100000.0, req.InitialCash)
	assert.Equal(t, 0.0003, req.CommissionRate)
	assert.Equal(t, 0.001, req.Slippage)
	assert.Equal(t, 10, req.MaxPositions)
	assert.Equal(t, 0.1, req.PositionSize)
	assert.Equal(t, 20, req.HoldDays)
	assert.Equal(t, dto.RebalanceWeekly, req.RebalanceFreq)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	req := dto.BacktestConfigRequest{
		InitialCash:   50000,
		MaxPositions:  3,
		RebalanceFreq: dto.RebalanceDaily,
	}
	applyDefaults(&req)

	assert.Equal(t, 50000.0, req.InitialCash)
	assert.Equal(t, 3, req.MaxPositions)
	assert.Equal(t, dto.RebalanceDaily, req.RebalanceFreq)
}

func TestRunToResponse(t *testing.T) {
	completedAt := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	profit := 42.5
	run := &model.BacktestRun{
		ID:             7,
		StrategyName:   "sma_cross",
		StrategyParams: datatypes.JSON(`{"fast_period":5,"slow_period":20}`),
		StartDate:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		InitialCash:    100000,
		CommissionRate: 0.0003,
		Slippage:       0.001,
		MaxPositions:   10,
		PositionSize:   0.1,
		HoldDays:       20,
		RebalanceFreq:  dto.RebalanceWeekly,
		StockPool:      datatypes.JSON(`["600519","000001"]`),
		Status:         string(dto.RunStatusCompleted),
		ResultSummary:  datatypes.JSON(`{"total_return":0.12,"total_trades":8}`),
		EquityCurve:    datatypes.JSON(`[{"date":"2023-01-03T00:00:00Z","equity":"100000","cash":"100000","positions":0}]`),
		CompletedAt:    &completedAt,
		Trades: []model.BacktestTrade{
			{
				StockCode: "600519",
				Side:      string(dto.TradeSideSell),
				TradeDate: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
				Price:     109.89,
				Quantity:  99,
				Profit:    &profit,
			},
		},
	}

	resp, err := runToResponse(run, true)
	require.NoError(t, err)

	assert.Equal(t, uint(7), resp.RunID)
	assert.Equal(t, dto.RunStatusCompleted, resp.Status)
	assert.Equal(t, "2023-01-01", resp.Config.StartDate)
	assert.Equal(t, "2023-12-31", resp.Config.EndDate)
	assert.Equal(t, 5.0, resp.Config.StrategyParams["fast_period"])
	assert.Equal(t, []string{"600519", "000001"}, resp.Config.StockPool)

	require.NotNil(t, resp.Performance)
	assert.Equal(t, 0.12, resp.Performance.TotalReturn)
	assert.Equal(t, 8, resp.Performance.TotalTrades)
	require.Len(t, resp.EquityCurve, 1)

	require.Len(t, resp.Trades, 1)
	assert.Equal(t, dto.TradeSideSell, resp.Trades[0].Side)
	require.NotNil(t, resp.Trades[0].Profit)
	assert.Equal(t, "42.5", resp.Trades[0].Profit.String())
}

func TestRunToResponse_SkipsTradesWhenNotRequested(t *testing.T) {
	run := &model.BacktestRun{
		ID:        3,
		Status:    string(dto.RunStatusRunning),
		StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
		Trades:    []model.BacktestTrade{{StockCode: "600519"}},
	}

	resp, err := runToResponse(run, false)
	require.NoError(t, err)
	assert.Nil(t, resp.Performance)
	assert.Empty(t, resp.Trades)
}
