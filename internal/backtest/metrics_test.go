package backtest

import (
	"testing"

	"sapas/internal/dto"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func equityCurve(values ...int64) []dto.EquityPoint {
	points := make([]dto.EquityPoint, 0, len(values))
	for i, v := range values {
		points = append(points, dto.EquityPoint{
			Date:   day(i + 1),
			Equity: decimal.NewFromInt(v),
		})
	}
	return points
}

func sellTrade(profit float64) dto.TradeRecord {
	p := decimal.NewFromFloat(profit)
	return dto.TradeRecord{Side: dto.TradeSideSell, Profit: &p}
}

func TestAnalyze_Drawdown(t *testing.T) {
	m := Analyze(equityCurve(100, 120, 90, 95, 130), nil, decimal.NewFromInt(100))

	// Peak 120 to trough 90: 25% over two days below the peak.
	assert.Equal(t, 0.25, m.MaxDrawdown)
	assert.Equal(t, 30.0, m.MaxDrawdownValue)
	assert.Equal(t, 2, m.MaxDrawdownDuration)

	assert.Equal(t, 0.3, m.TotalReturn)
	assert.Greater(t, m.AnnualReturn, 0.0)
	assert.Equal(t, 5, m.TradingDays)
	assert.Equal(t, "2024-01-01", m.StartDate)
	assert.Equal(t, "2024-01-05", m.EndDate)
	assert.NotNil(t, m.SharpeRatio)
}

func TestAnalyze_EmptyCurve(t *testing.T) {
	m := Analyze(nil, nil, decimal.NewFromInt(100000))

	assert.Equal(t, 100000.0, m.InitialCash)
	assert.Equal(t, 100000.0, m.FinalEquity)
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Nil(t, m.SharpeRatio)
	assert.Equal(t, 0, m.TotalTrades)
}

func TestAnalyze_SharpeUndefined(t *testing.T) {
	t.Run("single point has no returns", func(t *testing.T) {
		m := Analyze(equityCurve(100), nil, decimal.NewFromInt(100))
		assert.Nil(t, m.SharpeRatio)
	})

	t.Run("flat curve has zero deviation", func(t *testing.T) {
		m := Analyze(equityCurve(100, 100, 100, 100), nil, decimal.NewFromInt(100))
		assert.Nil(t, m.SharpeRatio)
		assert.Equal(t, 0.0, m.MaxDrawdown)
		assert.Equal(t, 0, m.MaxDrawdownDuration)
	})
}

func TestAnalyze_TradeStats(t *testing.T) {
	trades := []dto.TradeRecord{
		{Side: dto.TradeSideBuy}, // buys never count
		sellTrade(10),
		sellTrade(30),
		sellTrade(-5),
		sellTrade(-15),
	}

	m := Analyze(equityCurve(100, 110), trades, decimal.NewFromInt(100))

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.ProfitableTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.Equal(t, 0.5, m.WinRate)
	assert.Equal(t, 20.0, m.AvgProfit)
	assert.Equal(t, 10.0, m.AvgLoss)
	require.NotNil(t, m.ProfitLossRatio)
	assert.Equal(t, 2.0, *m.ProfitLossRatio)
}

func TestAnalyze_NoLosingTrades(t *testing.T) {
	m := Analyze(equityCurve(100, 110), []dto.TradeRecord{sellTrade(10)}, decimal.NewFromInt(100))

	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1.0, m.WinRate)
	assert.Nil(t, m.ProfitLossRatio)
}
