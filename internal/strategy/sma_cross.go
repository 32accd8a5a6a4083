package strategy

import (
	"sapas/internal/dto"
	"sapas/internal/indicator"
)

// SMACrossStrategy trades moving-average crossovers: a fast SMA closing above
// the slow SMA buys, crossing back below sells.
type SMACrossStrategy struct{}

func NewSMACrossStrategy() *SMACrossStrategy {
	return &SMACrossStrategy{}
}

func (s *SMACrossStrategy) Name() string { return "sma_cross" }

func (s *SMACrossStrategy) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "fast_period", DisplayName: "Fast SMA period", Default: 5, Min: 2, Max: 30},
		{Name: "slow_period", DisplayName: "Slow SMA period", Default: 20, Min: 5, Max: 120},
	}
}

func (s *SMACrossStrategy) Info() dto.StrategyInfo {
	return dto.StrategyInfo{
		Name:        s.Name(),
		DisplayName: "SMA crossover",
		Description: "Buys when the fast SMA crosses above the slow SMA and sells on the cross back below.",
		Category:    "trend",
		Params:      paramInfos(s.Params()),
	}
}

func (s *SMACrossStrategy) Evaluate(ec EvalContext) SignalSet {
	var set SignalSet

	fastPeriod := int(ec.Params["fast_period"])
	slowPeriod := int(ec.Params["slow_period"])
	if fastPeriod >= slowPeriod {
		return set
	}

	for code, bars := range ec.Window {
		cs := closes(bars)
		last := len(cs) - 1
		if last < 1 {
			continue
		}

		fast := indicator.SMA(cs, fastPeriod)
		slow := indicator.SMA(cs, slowPeriod)
		if !indicator.Valid(slow[last]) || !indicator.Valid(slow[last-1]) {
			continue
		}

		crossedUp := fast[last] > slow[last] && fast[last-1] <= slow[last-1]
		crossedDown := fast[last] < slow[last] && fast[last-1] >= slow[last-1]

		if ec.Portfolio.Held(code) {
			if crossedDown {
				set.Sells = append(set.Sells, SellSignal{Code: code, Reason: dto.ExitReasonSignal})
			}
			continue
		}
		if crossedUp {
			set.Buys = append(set.Buys, code)
		}
	}

	set.Sort()
	return set
}
