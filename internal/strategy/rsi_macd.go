package strategy

import (
	"sapas/internal/dto"
	"sapas/internal/indicator"
)

// RSIMACDStrategy buys instruments whose RSI is oversold while the MACD line
// sits above its signal line, and sells held instruments once RSI recovers
// past the overbought threshold.
type RSIMACDStrategy struct{}

func NewRSIMACDStrategy() *RSIMACDStrategy {
	return &RSIMACDStrategy{}
}

func (s *RSIMACDStrategy) Name() string { return "rsi_macd" }

func (s *RSIMACDStrategy) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "rsi_period", DisplayName: "RSI period", Default: 14, Min: 5, Max: 30},
		{Name: "rsi_threshold", DisplayName: "RSI oversold threshold", Default: 30, Min: 20, Max: 50},
		{Name: "rsi_exit", DisplayName: "RSI overbought exit", Default: 70, Min: 50, Max: 90},
		{Name: "macd_fast", DisplayName: "MACD fast period", Default: 12, Min: 5, Max: 20},
		{Name: "macd_slow", DisplayName: "MACD slow period", Default: 26, Min: 15, Max: 40},
		{Name: "macd_signal", DisplayName: "MACD signal period", Default: 9, Min: 3, Max: 15},
	}
}

func (s *RSIMACDStrategy) Info() dto.StrategyInfo {
	return dto.StrategyInfo{
		Name:        s.Name(),
		DisplayName: "RSI oversold + MACD golden cross",
		Description: "Buys when RSI drops below the oversold threshold while MACD is above its signal line; exits once RSI recovers past the overbought level.",
		Category:    "oscillator",
		Params:      paramInfos(s.Params()),
	}
}

func (s *RSIMACDStrategy) Evaluate(ec EvalContext) SignalSet {
	var set SignalSet

	rsiPeriod := int(ec.Params["rsi_period"])
	rsiThreshold := ec.Params["rsi_threshold"]
	rsiExit := ec.Params["rsi_exit"]
	fast := int(ec.Params["macd_fast"])
	slow := int(ec.Params["macd_slow"])
	signalPeriod := int(ec.Params["macd_signal"])

	for code, bars := range ec.Window {
		cs := closes(bars)
		rsi := indicator.RSI(cs, rsiPeriod)
		macd := indicator.MACD(cs, fast, slow, signalPeriod)

		last := len(cs) - 1
		if last < 0 || !indicator.Valid(rsi[last]) {
			continue
		}

		if ec.Portfolio.Held(code) {
			if rsi[last] >= rsiExit {
				set.Sells = append(set.Sells, SellSignal{Code: code, Reason: dto.ExitReasonSignal})
			}
			continue
		}

		if !indicator.Valid(macd.Signal[last]) {
			continue
		}
		if rsi[last] < rsiThreshold && macd.Line[last] > macd.Signal[last] {
			set.Buys = append(set.Buys, code)
		}
	}

	set.Sort()
	return set
}
