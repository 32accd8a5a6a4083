package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4}, 2)
	require.Len(t, out, 4)

	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, 1.5, out[1])
	assert.Equal(t, 2.5, out[2])
	assert.Equal(t, 3.5, out[3])
}

func TestSMA_ShortSeries(t *testing.T) {
	out := SMA([]float64{1, 2}, 5)
	for _, v := range out {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEMA(t *testing.T) {
	// period 3 gives alpha 0.5, seeded from the first close
	out := EMA([]float64{2, 4, 4}, 3)
	require.Len(t, out, 3)

	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 3.0, out[1])
	assert.Equal(t, 3.5, out[2])
}

func TestRSI(t *testing.T) {
	t.Run("all gains saturate at 100", func(t *testing.T) {
		out := RSI([]float64{1, 2, 3, 4, 5}, 3)
		assert.True(t, math.IsNaN(out[2]))
		assert.Equal(t, 100.0, out[3])
		assert.Equal(t, 100.0, out[4])
	})

	t.Run("all losses saturate at 0", func(t *testing.T) {
		out := RSI([]float64{5, 4, 3, 2, 1}, 3)
		assert.Equal(t, 0.0, out[3])
	})

	t.Run("wilder smoothing", func(t *testing.T) {
		out := RSI([]float64{1, 2, 3, 2}, 2)
		require.Len(t, out, 4)
		assert.True(t, math.IsNaN(out[0]))
		assert.True(t, math.IsNaN(out[1]))
		assert.Equal(t, 100.0, out[2])
		// avgGain (1*1+0)/2 = 0.5, avgLoss (0*1+1)/2 = 0.5 -> RSI 50
		assert.Equal(t, 50.0, out[3])
	})

	t.Run("series shorter than period", func(t *testing.T) {
		out := RSI([]float64{1, 2}, 5)
		for _, v := range out {
			assert.True(t, math.IsNaN(v))
		}
	})
}

func TestMACD(t *testing.T) {
	t.Run("flat series stays at zero", func(t *testing.T) {
		closes := []float64{5, 5, 5, 5, 5}
		res := MACD(closes, 2, 3, 2)
		require.Len(t, res.Line, 5)

		for i := range closes {
			assert.Equal(t, 0.0, res.Line[i])
		}
		// Signal starts once the slow EMA has a full period.
		assert.True(t, math.IsNaN(res.Signal[1]))
		assert.Equal(t, 0.0, res.Signal[2])
		assert.Equal(t, 0.0, res.Histogram[4])
	})

	t.Run("rising series keeps line positive", func(t *testing.T) {
		res := MACD([]float64{1, 2, 3, 4, 5, 6}, 2, 3, 2)
		last := len(res.Line) - 1
		assert.Greater(t, res.Line[last], 0.0)
		assert.True(t, Valid(res.Signal[last]))
	})

	t.Run("bad periods yield empty result", func(t *testing.T) {
		res := MACD([]float64{1, 2, 3}, 3, 2, 2)
		for _, v := range res.Line {
			assert.True(t, math.IsNaN(v))
		}
	})
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(math.NaN()))
	assert.True(t, Valid(0))
	assert.True(t, Valid(-1.5))
}
