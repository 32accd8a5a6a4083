package backtest

import (
	"math"

	"sapas/internal/dto"

	"github.com/shopspring/decimal"
)

// Analyze reduces a finished equity curve and trade log into summary
// performance metrics. It is a pure function of its inputs and never mutates
// them; metrics that are undefined (too few returns, no losing trades) are
// reported as nil rather than zero or NaN.
func Analyze(equity []dto.EquityPoint, trades []dto.TradeRecord, initialCash decimal.Decimal) *dto.PerformanceMetrics {
	m := &dto.PerformanceMetrics{
		InitialCash: roundCurrency(initialCash),
	}
	if len(equity) == 0 {
		m.FinalEquity = m.InitialCash
		return m
	}

	finalEquity := equity[len(equity)-1].Equity
	m.FinalEquity = roundCurrency(finalEquity)
	m.StartDate = equity[0].Date.Format("2006-01-02")
	m.EndDate = equity[len(equity)-1].Date.Format("2006-01-02")
	m.TradingDays = len(equity)

	if initialCash.IsPositive() {
		totalReturn, _ := finalEquity.Div(initialCash).Sub(decimal.NewFromInt(1)).Float64()
		m.TotalReturn = roundRatio(totalReturn)
		m.AnnualReturn = roundRatio(annualize(totalReturn, len(equity)))
	}

	dd, ddValue, ddDuration := maxDrawdown(equity)
	m.MaxDrawdown = roundRatio(dd)
	m.MaxDrawdownValue = roundCurrency(ddValue)
	m.MaxDrawdownDuration = ddDuration

	m.SharpeRatio = sharpe(dailyReturns(equity))

	analyzeTrades(m, trades)
	return m
}

// annualize compounds a total return over the observed trading days using
// the 252-day convention.
func annualize(totalReturn float64, tradingDays int) float64 {
	if tradingDays == 0 || totalReturn <= -1 {
		return 0
	}
	return math.Pow(1+totalReturn, float64(dto.TradingDaysPerYear)/float64(tradingDays)) - 1
}

func dailyReturns(equity []dto.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if !prev.IsPositive() {
			continue
		}
		r, _ := equity[i].Equity.Div(prev).Sub(decimal.NewFromInt(1)).Float64()
		returns = append(returns, r)
	}
	return returns
}

// sharpe annualizes mean/stddev of daily returns; nil when fewer than two
// returns exist or the deviation is zero.
func sharpe(returns []float64) *float64 {
	if len(returns) < 2 {
		return nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return nil
	}

	ratio := roundRatio(mean / std * math.Sqrt(float64(dto.TradingDaysPerYear)))
	return &ratio
}

// maxDrawdown returns the largest peak-to-trough decline as a fraction of
// the peak, the same decline in currency, and the longest streak of trading
// days spent below a prior peak.
func maxDrawdown(equity []dto.EquityPoint) (float64, decimal.Decimal, int) {
	if len(equity) == 0 {
		return 0, decimal.Zero, 0
	}

	peak := equity[0].Equity
	maxDD := 0.0
	maxDDValue := decimal.Zero
	maxBelow, curBelow := 0, 0

	for _, point := range equity {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}

		if point.Equity.LessThan(peak) {
			curBelow++
			if curBelow > maxBelow {
				maxBelow = curBelow
			}
		} else {
			curBelow = 0
		}

		if peak.IsPositive() {
			value := peak.Sub(point.Equity)
			dd, _ := value.Div(peak).Float64()
			if dd > maxDD {
				maxDD = dd
			}
			if value.GreaterThan(maxDDValue) {
				maxDDValue = value
			}
		}
	}
	return maxDD, maxDDValue, maxBelow
}

// analyzeTrades fills in the closed-trade statistics. Only sells carry
// realized profit; buys are ignored here.
func analyzeTrades(m *dto.PerformanceMetrics, trades []dto.TradeRecord) {
	profitSum := decimal.Zero
	lossSum := decimal.Zero

	for _, trade := range trades {
		if trade.Side != dto.TradeSideSell || trade.Profit == nil {
			continue
		}
		m.TotalTrades++
		if trade.Profit.IsPositive() {
			m.ProfitableTrades++
			profitSum = profitSum.Add(*trade.Profit)
		} else {
			m.LosingTrades++
			lossSum = lossSum.Add(trade.Profit.Abs())
		}
	}

	if m.TotalTrades == 0 {
		return
	}
	m.WinRate = roundRatio(float64(m.ProfitableTrades) / float64(m.TotalTrades))

	if m.ProfitableTrades > 0 {
		m.AvgProfit = roundCurrency(profitSum.DivRound(decimal.NewFromInt(int64(m.ProfitableTrades)), currencyPlaces))
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = roundCurrency(lossSum.DivRound(decimal.NewFromInt(int64(m.LosingTrades)), currencyPlaces))
	}
	if m.AvgLoss > 0 {
		ratio := roundRatio(m.AvgProfit / m.AvgLoss)
		m.ProfitLossRatio = &ratio
	}
}

func roundCurrency(d decimal.Decimal) float64 {
	f, _ := d.RoundBank(currencyPlaces).Float64()
	return f
}

// roundRatio applies the shared round-half-even convention to dimensionless
// metrics at four decimal places.
func roundRatio(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).RoundBank(4).Float64()
	return v
}
