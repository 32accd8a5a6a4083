package strategy

import (
	"sapas/internal/dto"
)

// MomentumStrategy buys breakouts to a new N-day high and exits on a
// breakdown below the M-day low.
type MomentumStrategy struct{}

func NewMomentumStrategy() *MomentumStrategy {
	return &MomentumStrategy{}
}

func (s *MomentumStrategy) Name() string { return "momentum" }

func (s *MomentumStrategy) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "entry_lookback", DisplayName: "Breakout lookback days", Default: 20, Min: 5, Max: 120},
		{Name: "exit_lookback", DisplayName: "Breakdown lookback days", Default: 10, Min: 2, Max: 60},
	}
}

func (s *MomentumStrategy) Info() dto.StrategyInfo {
	return dto.StrategyInfo{
		Name:        s.Name(),
		DisplayName: "Breakout momentum",
		Description: "Buys a close at a new N-day high and sells a close below the trailing M-day low.",
		Category:    "trend",
		Params:      paramInfos(s.Params()),
	}
}

func (s *MomentumStrategy) Evaluate(ec EvalContext) SignalSet {
	var set SignalSet

	entryLookback := int(ec.Params["entry_lookback"])
	exitLookback := int(ec.Params["exit_lookback"])

	for code, bars := range ec.Window {
		last := len(bars) - 1
		if last < 0 {
			continue
		}
		close := bars[last].Close

		if ec.Portfolio.Held(code) {
			if last >= exitLookback && close < lowestClose(bars, last-exitLookback, last) {
				set.Sells = append(set.Sells, SellSignal{Code: code, Reason: dto.ExitReasonStop})
			}
			continue
		}

		if last >= entryLookback && close > highestClose(bars, last-entryLookback, last) {
			set.Buys = append(set.Buys, code)
		}
	}

	set.Sort()
	return set
}

// highestClose returns the max close over bars[from:to) — the lookback
// excluding the evaluation bar itself.
func highestClose(bars []dto.PriceBar, from, to int) float64 {
	high := bars[from].Close
	for _, b := range bars[from:to] {
		if b.Close > high {
			high = b.Close
		}
	}
	return high
}

func lowestClose(bars []dto.PriceBar, from, to int) float64 {
	low := bars[from].Close
	for _, b := range bars[from:to] {
		if b.Close < low {
			low = b.Close
		}
	}
	return low
}
