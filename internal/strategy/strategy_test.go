package strategy

import (
	"testing"
	"time"

	"sapas/internal/dto"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(code string, closes ...float64) Window {
	bars := make([]dto.PriceBar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, dto.PriceBar{
			Code:  code,
			Date:  time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		})
	}
	return Window{code: bars}
}

func held(codes ...string) dto.PortfolioSnapshot {
	positions := make(map[string]dto.PositionView, len(codes))
	for _, code := range codes {
		positions[code] = dto.PositionView{Code: code, Quantity: 100, AvgCost: decimal.NewFromInt(10)}
	}
	return dto.PortfolioSnapshot{Positions: positions}
}

func TestResolveParams(t *testing.T) {
	s := NewSMACrossStrategy()

	t.Run("defaults fill missing params", func(t *testing.T) {
		resolved, err := ResolveParams(s, nil)
		require.NoError(t, err)
		assert.Equal(t, 5.0, resolved["fast_period"])
		assert.Equal(t, 20.0, resolved["slow_period"])
	})

	t.Run("explicit values override defaults", func(t *testing.T) {
		resolved, err := ResolveParams(s, map[string]float64{"fast_period": 10})
		require.NoError(t, err)
		assert.Equal(t, 10.0, resolved["fast_period"])
		assert.Equal(t, 20.0, resolved["slow_period"])
	})

	t.Run("unknown param rejected", func(t *testing.T) {
		_, err := ResolveParams(s, map[string]float64{"warp_factor": 9})
		assert.Error(t, err)
	})

	t.Run("out of range rejected", func(t *testing.T) {
		_, err := ResolveParams(s, map[string]float64{"fast_period": 1})
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	_, ok := r.Get("rsi_macd")
	assert.True(t, ok)
	_, ok = r.Get("does_not_exist")
	assert.False(t, ok)

	infos := r.List()
	require.Len(t, infos, 3)
	names := []string{infos[0].Name, infos[1].Name, infos[2].Name}
	assert.Equal(t, []string{"momentum", "rsi_macd", "sma_cross"}, names)
	for _, info := range infos {
		assert.NotEmpty(t, info.Params, "strategy %s has no param specs", info.Name)
	}
}

func TestSMACross_Evaluate(t *testing.T) {
	s := NewSMACrossStrategy()
	params := map[string]float64{"fast_period": 2, "slow_period": 3}

	t.Run("cross up buys unheld code", func(t *testing.T) {
		set := s.Evaluate(EvalContext{
			Window:    window("600519", 10, 9, 8, 7, 12),
			Params:    params,
			Portfolio: held(),
		})
		assert.Equal(t, []string{"600519"}, set.Buys)
		assert.Empty(t, set.Sells)
	})

	t.Run("cross down sells held code", func(t *testing.T) {
		set := s.Evaluate(EvalContext{
			Window:    window("600519", 7, 8, 9, 10, 5),
			Params:    params,
			Portfolio: held("600519"),
		})
		assert.Empty(t, set.Buys)
		require.Len(t, set.Sells, 1)
		assert.Equal(t, "600519", set.Sells[0].Code)
		assert.Equal(t, dto.ExitReasonSignal, set.Sells[0].Reason)
	})

	t.Run("cross up on held code is a hold", func(t *testing.T) {
		set := s.Evaluate(EvalContext{
			Window:    window("600519", 10, 9, 8, 7, 12),
			Params:    params,
			Portfolio: held("600519"),
		})
		assert.Empty(t, set.Buys)
		assert.Empty(t, set.Sells)
	})

	t.Run("warmup window yields no signals", func(t *testing.T) {
		set := s.Evaluate(EvalContext{
			Window:    window("600519", 10, 11),
			Params:    params,
			Portfolio: held(),
		})
		assert.Empty(t, set.Buys)
		assert.Empty(t, set.Sells)
	})
}

func TestSignalSet_Sort(t *testing.T) {
	set := SignalSet{
		Buys:  []string{"000300", "000001", "000100"},
		Sells: []SellSignal{{Code: "z"}, {Code: "a"}},
	}
	set.Sort()
	assert.Equal(t, []string{"000001", "000100", "000300"}, set.Buys)
	assert.Equal(t, "a", set.Sells[0].Code)
	assert.Equal(t, "z", set.Sells[1].Code)
}
