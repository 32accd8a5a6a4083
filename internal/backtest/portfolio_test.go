package backtest

import (
	"testing"
	"time"

	"sapas/internal/dto"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSimConfig() SimConfig {
	return SimConfig{
		InitialCash:    decimal.NewFromInt(100000),
		CommissionRate: decimal.NewFromFloat(0.0003),
		Slippage:       decimal.NewFromFloat(0.001),
		PositionSize:   decimal.NewFromFloat(0.1),
		MaxPositions:   10,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestSimulator_BuyThenSell(t *testing.T) {
	sim := NewSimulator(testSimConfig())

	buy, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, 100, "")
	require.NoError(t, err)
	require.NotNil(t, buy)

	// budget 10000 at exec price 100.1 affords 99 shares
	assert.Equal(t, int64(99), buy.Quantity)
	assert.Equal(t, "100.1", buy.Price.String())
	assert.Equal(t, "9909.9", buy.Amount.String())
	assert.Equal(t, "2.97", buy.Commission.String())
	assert.Equal(t, "90087.13", sim.Cash().String())

	point, err := sim.MarkToMarket(day(1), map[string]float64{"600519": 100})
	require.NoError(t, err)
	assert.Equal(t, "99987.13", point.Equity.String())
	assert.Equal(t, 1, point.Positions)

	sell, err := sim.ApplySignal(day(2), "600519", dto.TradeSideSell, 110, dto.ExitReasonSignal)
	require.NoError(t, err)
	require.NotNil(t, sell)

	assert.Equal(t, int64(99), sell.Quantity)
	assert.Equal(t, "109.89", sell.Price.String())
	assert.Equal(t, "3.26", sell.Commission.String())
	require.NotNil(t, sell.Profit)
	// proceeds 10875.85 minus cost basis 9912.87 (gross + buy commission)
	assert.Equal(t, "962.98", sell.Profit.String())
	assert.Equal(t, dto.ExitReasonSignal, sell.ExitReason)

	assert.Equal(t, 0, sim.OpenPositions())
	assert.Equal(t, "100962.98", sim.Cash().String())

	point, err = sim.MarkToMarket(day(2), nil)
	require.NoError(t, err)
	assert.Equal(t, "100962.98", point.Equity.String())
	assert.Equal(t, 0, point.Positions)
}

func TestSimulator_EquityConservation(t *testing.T) {
	sim := NewSimulator(testSimConfig())

	_, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, 100, "")
	require.NoError(t, err)
	_, err = sim.MarkToMarket(day(1), map[string]float64{"600519": 100})
	require.NoError(t, err)

	// Second fill on the same code exercises the volume-weighted cost update.
	_, err = sim.ApplySignal(day(2), "600519", dto.TradeSideBuy, 104, "")
	require.NoError(t, err)
	_, err = sim.MarkToMarket(day(2), map[string]float64{"600519": 104})
	require.NoError(t, err)

	sell, err := sim.ApplySignal(day(3), "600519", dto.TradeSideSell, 110, dto.ExitReasonSignal)
	require.NoError(t, err)
	require.NotNil(t, sell)
	require.NotNil(t, sell.Profit)

	point, err := sim.MarkToMarket(day(3), nil)
	require.NoError(t, err)

	// With a flat book every commission paid on either leg lives inside
	// realized profit, so equity reconciles against initial cash exactly.
	want := testSimConfig().InitialCash.Add(*sell.Profit)
	assert.True(t, point.Equity.Equal(want), "equity %s != initial + realized %s", point.Equity, want)
	assert.True(t, sim.Cash().Equal(want), "cash %s != initial + realized %s", sim.Cash(), want)
}

func TestSimulator_BuyRejections(t *testing.T) {
	t.Run("zero affordable shares is a no-op", func(t *testing.T) {
		cfg := testSimConfig()
		cfg.InitialCash = decimal.NewFromInt(1000)
		sim := NewSimulator(cfg)

		record, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, 50000, "")
		assert.NoError(t, err)
		assert.Nil(t, record)
		assert.Empty(t, sim.Trades())
		assert.Equal(t, "1000", sim.Cash().String())
	})

	t.Run("position limit blocks new codes but not adds", func(t *testing.T) {
		cfg := testSimConfig()
		cfg.MaxPositions = 1
		sim := NewSimulator(cfg)

		record, err := sim.ApplySignal(day(1), "000001", dto.TradeSideBuy, 10, "")
		require.NoError(t, err)
		require.NotNil(t, record)

		record, err = sim.ApplySignal(day(1), "000002", dto.TradeSideBuy, 10, "")
		assert.NoError(t, err)
		assert.Nil(t, record)

		record, err = sim.ApplySignal(day(1), "000001", dto.TradeSideBuy, 10, "")
		assert.NoError(t, err)
		assert.NotNil(t, record)
		assert.Equal(t, 1, sim.OpenPositions())
	})

	t.Run("malformed price fails the run", func(t *testing.T) {
		sim := NewSimulator(testSimConfig())
		_, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, -5, "")
		var dataErr *DataIntegrityError
		assert.ErrorAs(t, err, &dataErr)
	})
}

func TestSimulator_SellUnheldIsNoOp(t *testing.T) {
	sim := NewSimulator(testSimConfig())

	record, err := sim.ApplySignal(day(1), "600519", dto.TradeSideSell, 100, dto.ExitReasonSignal)
	assert.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, sim.Trades())
}

func TestSimulator_MarkToMarket(t *testing.T) {
	t.Run("missing close for open position", func(t *testing.T) {
		sim := NewSimulator(testSimConfig())
		_, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, 100, "")
		require.NoError(t, err)

		_, err = sim.MarkToMarket(day(1), map[string]float64{})
		var dataErr *DataIntegrityError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, "600519", dataErr.Code)
	})

	t.Run("out of order dates rejected", func(t *testing.T) {
		sim := NewSimulator(testSimConfig())
		_, err := sim.MarkToMarket(day(5), nil)
		require.NoError(t, err)

		_, err = sim.MarkToMarket(day(4), nil)
		var dataErr *DataIntegrityError
		assert.ErrorAs(t, err, &dataErr)
	})
}

func TestSimulator_HeldDaysAndExpiry(t *testing.T) {
	sim := NewSimulator(testSimConfig())

	_, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, 100, "")
	require.NoError(t, err)

	// Entry day does not count as a held day.
	_, err = sim.MarkToMarket(day(1), map[string]float64{"600519": 100})
	require.NoError(t, err)
	assert.Empty(t, sim.ExpiredPositions(1))

	_, err = sim.MarkToMarket(day(2), map[string]float64{"600519": 101})
	require.NoError(t, err)
	assert.Equal(t, []string{"600519"}, sim.ExpiredPositions(1))
	assert.Empty(t, sim.ExpiredPositions(2))
}

func TestSimulator_SnapshotIsDetached(t *testing.T) {
	sim := NewSimulator(testSimConfig())
	_, err := sim.ApplySignal(day(1), "600519", dto.TradeSideBuy, 100, "")
	require.NoError(t, err)

	snap := sim.Snapshot()
	assert.True(t, snap.Held("600519"))

	delete(snap.Positions, "600519")
	assert.Equal(t, 1, sim.OpenPositions())
}
